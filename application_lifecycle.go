package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type serviceOperation string

const (
	operationStart serviceOperation = "start"
	operationStop  serviceOperation = "stop"
)

func (op serviceOperation) pastTense() string {
	if op == operationStart {
		return "started"
	}
	return "stopped"
}

// Start registers every queued handler with the host, installs the ready and
// terminate hooks and advances to PhaseStarted. It returns before any service
// is started; that happens when the host runs the ready hook.
func (app *Application[C, S]) Start() (*Application[C, S], error) {
	if err := app.guard.ensure(PhaseHandlers, PhaseAppServices); err != nil {
		return nil, err
	}
	if app.contextCreator == nil {
		return nil, ErrContextNotConfigured
	}

	for _, p := range app.requestHandlers {
		if err := app.host.HandleRequest(p.name, p.opts, app.requestAdapter(p)); err != nil {
			return nil, fmt.Errorf("failed to register request handler %s: %w", p.name, err)
		}
		app.logger.Debug("Registered request handler", "name", p.name, "route", p.opts.Route, "methods", p.opts.Methods)
	}
	for _, p := range app.timerHandlers {
		if err := app.host.HandleTimer(p.name, p.schedule, app.timerAdapter(p)); err != nil {
			return nil, fmt.Errorf("failed to register timer handler %s: %w", p.name, err)
		}
		app.logger.Debug("Registered timer handler", "name", p.name, "schedule", p.schedule)
	}

	app.host.OnReady(app.ready)
	app.host.OnTerminate(app.terminate)
	app.advance(PhaseStarted)
	app.logger.Info("Application configured", "services", app.registry.Len(),
		"requestHandlers", len(app.requestHandlers), "timerHandlers", len(app.timerHandlers))
	return app, nil
}

// ready starts every service concurrently, then builds the shared context and
// the application-services host. Any failure is recorded on the root span and
// returned to the host. It runs at most once; later calls return ErrAlreadyReady.
func (app *Application[C, S]) ready(ctx context.Context) error {
	app.mu.Lock()
	if app.readyCalled {
		app.mu.Unlock()
		return ErrAlreadyReady
	}
	app.readyCalled = true
	app.mu.Unlock()

	err := traceUnit(ctx, app.tracer, spanStartup, "Application ready", func(ctx context.Context) error {
		if err := app.runAll(ctx, operationStart); err != nil {
			return err
		}
		app.registry.markInitialized()

		shared, err := traceValue(ctx, app.tracer, spanContext, func(ctx context.Context) (C, error) {
			return app.contextCreator(ctx, app.registry)
		})
		if err != nil {
			return fmt.Errorf("failed to create context: %w", err)
		}
		app.mu.Lock()
		app.shared, app.hasShared = shared, true
		app.mu.Unlock()

		if app.servicesFactory == nil {
			return ErrMissingFactory
		}
		services, err := traceValue(ctx, app.tracer, spanApplicationServices, func(ctx context.Context) (S, error) {
			return app.servicesFactory(ctx, shared)
		})
		if err != nil {
			return fmt.Errorf("failed to create application services: %w", err)
		}
		app.mu.Lock()
		app.services, app.hasServices = services, true
		app.mu.Unlock()
		return nil
	}, trace.WithNewRoot())

	if err != nil {
		app.logger.Error("Application startup failed", "error", err)
		app.emit(ctx, EventTypeApplicationFailed, map[string]any{"operation": operationStart, "error": err.Error()})
		return err
	}
	app.logger.Info("Application ready", "services", app.registry.Len())
	app.emit(ctx, EventTypeApplicationReady, map[string]any{"services": app.registry.Len()})
	return nil
}

// terminate stops every service concurrently. Start units still running from a
// failed ready are waited for first, bounded by ctx, so no service is stopped
// while it is still starting.
func (app *Application[C, S]) terminate(ctx context.Context) error {
	err := traceUnit(ctx, app.tracer, spanShutdown, "Application terminated", func(ctx context.Context) error {
		app.awaitInflight(ctx)
		return app.runAll(ctx, operationStop)
	}, trace.WithNewRoot())

	if err != nil {
		app.logger.Error("Application shutdown failed", "error", err)
		app.emit(ctx, EventTypeApplicationFailed, map[string]any{"operation": operationStop, "error": err.Error()})
		return err
	}
	app.logger.Info("Application terminated", "services", app.registry.Len())
	app.emit(ctx, EventTypeApplicationTerminated, map[string]any{"services": app.registry.Len()})
	return nil
}

// runAll issues op on every service at once and returns as soon as one fails.
// Siblings still in flight are not cancelled; the buffered channel lets them
// finish without a reader.
func (app *Application[C, S]) runAll(ctx context.Context, op serviceOperation) error {
	keys := app.registry.Keys()
	results := make(chan error, len(keys))

	for _, key := range keys {
		svc := app.registry.services[key]
		app.inflight.Add(1)
		go func() {
			defer app.inflight.Done()
			results <- app.runOne(ctx, key, svc, op)
		}()
	}

	for range keys {
		if err := <-results; err != nil {
			return err
		}
	}
	return nil
}

// awaitInflight blocks until every unit launched by an earlier runAll has
// finished or ctx is done.
func (app *Application[C, S]) awaitInflight(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		app.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		app.logger.Warn("Services still in flight at shutdown deadline", "error", ctx.Err())
	}
}

func (app *Application[C, S]) runOne(ctx context.Context, key ServiceKey, svc Service, op serviceOperation) error {
	name := key.String()
	message := fmt.Sprintf("Service %s %s", name, op.pastTense())
	started := time.Now()

	err := traceUnit(ctx, app.tracer, name+" "+string(op), message, func(ctx context.Context) error {
		var err error
		if op == operationStart {
			err = svc.Start(ctx)
		} else {
			err = svc.Stop(ctx)
		}
		if err != nil {
			return &ServiceOperationError{Service: name, Operation: string(op), Err: err}
		}
		return nil
	}, trace.WithAttributes(attrServiceName.String(name), attrOperation.String(string(op))))

	app.metrics.observe(name, op, started, err)
	if err != nil {
		app.logger.Error("Service operation failed", "service", name, "operation", op, "error", err)
		app.emit(ctx, EventTypeServiceFailed, map[string]any{"service": name, "operation": op, "error": err.Error()})
		return err
	}

	app.logger.Info(message, "duration", time.Since(started))
	eventType := EventTypeServiceStarted
	if op == operationStop {
		eventType = EventTypeServiceStopped
	}
	app.emit(ctx, eventType, map[string]any{"service": name})
	return nil
}

func (app *Application[C, S]) emit(ctx context.Context, eventType string, data map[string]any) {
	if len(app.observers) == 0 {
		return
	}
	extensions := map[string]any{extensionPhase: app.guard.current.String()}
	notifyObservers(ctx, app.observers, NewCloudEvent(eventType, app.source, data, extensions), app.logger)
}
