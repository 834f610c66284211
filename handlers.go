package bootstrap

import (
	"context"
	"fmt"
	"net/http"
)

// RequestHandlerCreator resolves the per-call request handler from the
// application-services host. It runs on every request.
type RequestHandlerCreator[S any] func(services S) RequestHandler

// TimerHandlerCreator resolves the per-call timer handler from the
// application-services host. It runs on every firing.
type TimerHandlerCreator[S any] func(services S) TimerHandler

type pendingRequest[S any] struct {
	name   string
	opts   RequestOptions
	create RequestHandlerCreator[S]
}

type pendingTimer[S any] struct {
	name     string
	schedule string
	create   TimerHandlerCreator[S]
}

// RegisterRequestHandler queues a request handler for registration with the
// host at Start and advances to PhaseHandlers.
func (app *Application[C, S]) RegisterRequestHandler(name string, opts RequestOptions, creator RequestHandlerCreator[S]) error {
	if err := app.guard.ensure(PhaseAppServices, PhaseHandlers); err != nil {
		return err
	}
	if creator == nil {
		return fmt.Errorf("%w: request handler %s", ErrHandlerCreatorNil, name)
	}
	app.requestHandlers = append(app.requestHandlers, pendingRequest[S]{name: name, opts: opts, create: creator})
	app.advance(PhaseHandlers)
	return nil
}

// RegisterTimerHandler queues a timer handler for registration with the host
// at Start and advances to PhaseHandlers. The schedule is validated by the host.
func (app *Application[C, S]) RegisterTimerHandler(name, schedule string, creator TimerHandlerCreator[S]) error {
	if err := app.guard.ensure(PhaseAppServices, PhaseHandlers); err != nil {
		return err
	}
	if creator == nil {
		return fmt.Errorf("%w: timer handler %s", ErrHandlerCreatorNil, name)
	}
	app.timerHandlers = append(app.timerHandlers, pendingTimer[S]{name: name, schedule: schedule, create: creator})
	app.advance(PhaseHandlers)
	return nil
}

func (app *Application[C, S]) requestAdapter(p pendingRequest[S]) RequestHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		services, err := app.readyServices(p.name)
		if err != nil {
			return err
		}
		handler := p.create(services)
		if handler == nil {
			return fmt.Errorf("%w: request handler %s", ErrHandlerNil, p.name)
		}
		return handler(w, r)
	}
}

func (app *Application[C, S]) timerAdapter(p pendingTimer[S]) TimerHandler {
	return func(ctx context.Context, tick TimerTick) error {
		services, err := app.readyServices(p.name)
		if err != nil {
			return err
		}
		handler := p.create(services)
		if handler == nil {
			return fmt.Errorf("%w: timer handler %s", ErrHandlerNil, p.name)
		}
		return handler(ctx, tick)
	}
}

func (app *Application[C, S]) readyServices(handler string) (S, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if !app.hasServices {
		var zero S
		return zero, fmt.Errorf("%w: handler %s invoked before application services were built", ErrApplicationNotStarted, handler)
	}
	return app.services, nil
}
