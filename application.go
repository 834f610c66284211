// Package bootstrap walks a host process through an ordered set of
// configuration phases and then owns the concurrent start and stop of the
// infrastructure services registered along the way.
//
// The phases are, in order:
//
//	infrastructure -> context -> app-services -> handlers -> started
//
// Basic usage:
//
//	app, err := bootstrap.New[*Shared, *Services](host, func(r *bootstrap.ServiceRegistry) error {
//		_, err := r.Register(store)
//		return err
//	}, bootstrap.WithLogger(logger))
//	...
//	err = app.SetContext(buildShared)
//	err = app.InitializeApplicationServices(buildServices)
//	err = app.RegisterRequestHandler("orders", opts, ordersHandler)
//	_, err = app.Start()
//
// Start only registers handlers and lifecycle hooks with the host; services
// are started when the host runs the ready hook.
package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// ContextCreator builds the shared context from the started services.
type ContextCreator[C any] func(ctx context.Context, services ServiceReader) (C, error)

// ServicesFactory builds the application-services host from the shared context.
type ServicesFactory[C, S any] func(ctx context.Context, shared C) (S, error)

// Application is the phased bootstrap orchestrator. C is the shared context
// type and S the application-services host type.
type Application[C, S any] struct {
	host      Host
	guard     *phaseGuard
	registry  *ServiceRegistry
	logger    Logger
	tracer    trace.Tracer
	metrics   *lifecycleMetrics
	observers []Observer
	source    string

	contextCreator  ContextCreator[C]
	servicesFactory ServicesFactory[C, S]
	requestHandlers []pendingRequest[S]
	timerHandlers   []pendingTimer[S]

	// mu guards the values built by the ready hook, which handler adapters
	// read from host goroutines.
	mu          sync.RWMutex
	readyCalled bool
	shared      C
	hasShared   bool
	services    S
	hasServices bool

	// inflight counts start and stop units still running after runAll returned.
	inflight sync.WaitGroup
}

// New creates an application bound to host and calls registerServices once
// with the registry while in PhaseInfrastructure.
func New[C, S any](host Host, registerServices func(*ServiceRegistry) error, opts ...Option) (*Application[C, S], error) {
	if host == nil {
		return nil, ErrHostNil
	}
	if registerServices == nil {
		return nil, ErrRegisterServicesNil
	}

	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	metrics, err := newLifecycleMetrics(s.registerer)
	if err != nil {
		return nil, err
	}

	guard := newPhaseGuard()
	app := &Application[C, S]{
		host:      host,
		guard:     guard,
		registry:  newServiceRegistry(guard, s.logger),
		logger:    s.logger,
		tracer:    s.tracerProvider.Tracer(tracerName),
		metrics:   metrics,
		observers: s.observers,
		source:    s.eventSource,
	}
	app.metrics.setPhase(guard.current)

	if err := registerServices(app.registry); err != nil {
		return nil, fmt.Errorf("failed to register services: %w", err)
	}
	app.logger.Debug("Registered infrastructure services", "count", app.registry.Len())
	return app, nil
}

// RegisterService adds another infrastructure service. Only valid in
// PhaseInfrastructure.
func (app *Application[C, S]) RegisterService(svc Service) error {
	_, err := app.registry.Register(svc)
	return err
}

// SetContext stores the context creator and advances to PhaseContext.
// The creator runs later, once every service has started.
func (app *Application[C, S]) SetContext(creator ContextCreator[C]) error {
	if err := app.guard.ensure(PhaseInfrastructure); err != nil {
		return err
	}
	if creator == nil {
		return ErrContextCreatorNil
	}
	app.contextCreator = creator
	app.advance(PhaseContext)
	return nil
}

// InitializeApplicationServices stores the services factory and advances to
// PhaseAppServices.
func (app *Application[C, S]) InitializeApplicationServices(factory ServicesFactory[C, S]) error {
	if err := app.guard.ensure(PhaseContext); err != nil {
		return err
	}
	if app.contextCreator == nil {
		return ErrMissingContextCreator
	}
	if factory == nil {
		return ErrServicesFactoryNil
	}
	app.servicesFactory = factory
	app.advance(PhaseAppServices)
	return nil
}

// Context returns the shared context once the ready hook has built it.
func (app *Application[C, S]) Context() (C, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if !app.hasShared {
		var zero C
		return zero, ErrContextNotInitialized
	}
	return app.shared, nil
}

// ApplicationServices returns the services host once the ready hook has built it.
func (app *Application[C, S]) ApplicationServices() (S, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if !app.hasServices {
		var zero S
		return zero, ErrApplicationServicesNotInitialized
	}
	return app.services, nil
}

// InfrastructureService returns the service registered under key.
func (app *Application[C, S]) InfrastructureService(key ServiceKey) (Service, error) {
	return app.registry.Get(key)
}

// Services returns the read-only registry view.
func (app *Application[C, S]) Services() ServiceReader {
	return app.registry
}

// ServicesInitialized reports whether every service started successfully.
func (app *Application[C, S]) ServicesInitialized() bool {
	return app.registry.ServicesInitialized()
}

// Phase returns the current configuration phase.
func (app *Application[C, S]) Phase() Phase {
	return app.guard.current
}

// Logger returns the application logger.
func (app *Application[C, S]) Logger() Logger {
	return app.logger
}

func (app *Application[C, S]) advance(to Phase) {
	from := app.guard.current
	app.guard.advance(to)
	if from != app.guard.current {
		app.metrics.setPhase(app.guard.current)
		app.logger.Debug("Phase advanced", "from", from, "to", app.guard.current)
	}
}

// GetInfrastructureService returns the service registered as T, typed.
//
//	store, err := bootstrap.GetInfrastructureService[*storage.Store](app)
func GetInfrastructureService[T Service, C, S any](app *Application[C, S]) (T, error) {
	return GetService[T](app.registry)
}
