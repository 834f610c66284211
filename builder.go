package bootstrap

// The stage types below expose only the operations that are legal next, so a
// wrong call order does not compile. Each stage wraps the same Application,
// whose runtime phase guard still rejects reuse of an older stage.

// InfrastructureStage accepts services and the context creator.
type InfrastructureStage[C, S any] struct {
	app *Application[C, S]
}

// ContextStage accepts the application-services factory.
type ContextStage[C, S any] struct {
	app *Application[C, S]
}

// ServicesStage accepts handlers or Start.
type ServicesStage[C, S any] struct {
	app *Application[C, S]
}

// HandlerStage accepts more handlers or Start.
type HandlerStage[C, S any] struct {
	app *Application[C, S]
}

// NewBuilder creates an application and returns its first stage.
func NewBuilder[C, S any](host Host, registerServices func(*ServiceRegistry) error, opts ...Option) (*InfrastructureStage[C, S], error) {
	app, err := New[C, S](host, registerServices, opts...)
	if err != nil {
		return nil, err
	}
	return &InfrastructureStage[C, S]{app: app}, nil
}

// Register adds another infrastructure service.
func (s *InfrastructureStage[C, S]) Register(svc Service) (*InfrastructureStage[C, S], error) {
	if err := s.app.RegisterService(svc); err != nil {
		return nil, err
	}
	return s, nil
}

// WithContext stores the context creator.
func (s *InfrastructureStage[C, S]) WithContext(creator ContextCreator[C]) (*ContextStage[C, S], error) {
	if err := s.app.SetContext(creator); err != nil {
		return nil, err
	}
	return &ContextStage[C, S]{app: s.app}, nil
}

// WithApplicationServices stores the application-services factory.
func (s *ContextStage[C, S]) WithApplicationServices(factory ServicesFactory[C, S]) (*ServicesStage[C, S], error) {
	if err := s.app.InitializeApplicationServices(factory); err != nil {
		return nil, err
	}
	return &ServicesStage[C, S]{app: s.app}, nil
}

// HandleRequest queues a request handler.
func (s *ServicesStage[C, S]) HandleRequest(name string, opts RequestOptions, creator RequestHandlerCreator[S]) (*HandlerStage[C, S], error) {
	return handleRequest(s.app, name, opts, creator)
}

// HandleTimer queues a timer handler.
func (s *ServicesStage[C, S]) HandleTimer(name, schedule string, creator TimerHandlerCreator[S]) (*HandlerStage[C, S], error) {
	return handleTimer(s.app, name, schedule, creator)
}

// Start finishes configuration without handlers.
func (s *ServicesStage[C, S]) Start() (*Application[C, S], error) {
	return s.app.Start()
}

// HandleRequest queues another request handler.
func (s *HandlerStage[C, S]) HandleRequest(name string, opts RequestOptions, creator RequestHandlerCreator[S]) (*HandlerStage[C, S], error) {
	return handleRequest(s.app, name, opts, creator)
}

// HandleTimer queues another timer handler.
func (s *HandlerStage[C, S]) HandleTimer(name, schedule string, creator TimerHandlerCreator[S]) (*HandlerStage[C, S], error) {
	return handleTimer(s.app, name, schedule, creator)
}

// Start finishes configuration.
func (s *HandlerStage[C, S]) Start() (*Application[C, S], error) {
	return s.app.Start()
}

func handleRequest[C, S any](app *Application[C, S], name string, opts RequestOptions, creator RequestHandlerCreator[S]) (*HandlerStage[C, S], error) {
	if err := app.RegisterRequestHandler(name, opts, creator); err != nil {
		return nil, err
	}
	return &HandlerStage[C, S]{app: app}, nil
}

func handleTimer[C, S any](app *Application[C, S], name, schedule string, creator TimerHandlerCreator[S]) (*HandlerStage[C, S], error) {
	if err := app.RegisterTimerHandler(name, schedule, creator); err != nil {
		return nil, err
	}
	return &HandlerStage[C, S]{app: app}, nil
}
