package bootstrap

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of lifecycle events. Service-level events are emitted
// from the start and stop fan-out, so OnEvent may be called concurrently.
type Observer interface {
	// OnEvent handles one event. Errors are logged and never interrupt the
	// lifecycle operation that emitted the event.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// Event types emitted by the application, in reverse domain notation.
const (
	EventTypeServiceStarted = "com.gocodealone.bootstrap.service.started"
	EventTypeServiceStopped = "com.gocodealone.bootstrap.service.stopped"
	EventTypeServiceFailed  = "com.gocodealone.bootstrap.service.failed"

	EventTypeApplicationReady      = "com.gocodealone.bootstrap.application.ready"
	EventTypeApplicationTerminated = "com.gocodealone.bootstrap.application.terminated"
	EventTypeApplicationFailed     = "com.gocodealone.bootstrap.application.failed"
)

const defaultEventSource = "bootstrap"

// extensionPhase is the CloudEvents extension carrying the configuration
// phase the application was in when the event was emitted.
const extensionPhase = "bootstrapphase"

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{
		id:      id,
		handler: handler,
	}
}

// OnEvent calls the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID returns the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// notifyObservers delivers event to every observer in order. A failing or
// panicking observer is logged and skipped.
func notifyObservers(ctx context.Context, observers []Observer, event cloudevents.Event, logger Logger) {
	for _, o := range observers {
		if err := deliver(ctx, o, event); err != nil {
			logger.Warn("Observer error", "observerID", o.ObserverID(), "event", event.Type(), "error", err)
		}
	}
}

func deliver(ctx context.Context, o Observer, event cloudevents.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrObserverPanicked, r)
		}
	}()
	return o.OnEvent(ctx, event)
}
