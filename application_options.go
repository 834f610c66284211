package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Option configures an Application at construction time.
type Option func(*settings) error

type settings struct {
	logger         Logger
	tracerProvider trace.TracerProvider
	registerer     prometheus.Registerer
	observers      []Observer
	eventSource    string
}

func defaultSettings() *settings {
	return &settings{
		logger:         nopLogger{},
		tracerProvider: otel.GetTracerProvider(),
		eventSource:    defaultEventSource,
	}
}

// WithLogger sets the logger used for lifecycle logging.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("%w: logger", ErrOptionNil)
		}
		s.logger = logger
		return nil
	}
}

// WithTracerProvider sets the provider the lifecycle tracer is taken from.
// The global otel provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) error {
		if tp == nil {
			return fmt.Errorf("%w: tracer provider", ErrOptionNil)
		}
		s.tracerProvider = tp
		return nil
	}
}

// WithMetrics registers lifecycle metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *settings) error {
		if reg == nil {
			return fmt.Errorf("%w: metrics registerer", ErrOptionNil)
		}
		s.registerer = reg
		return nil
	}
}

// WithObservers adds observers notified of lifecycle events.
func WithObservers(observers ...Observer) Option {
	return func(s *settings) error {
		for _, o := range observers {
			if o == nil {
				return fmt.Errorf("%w: observer", ErrOptionNil)
			}
		}
		s.observers = append(s.observers, observers...)
		return nil
	}
}

// WithEventSource sets the CloudEvents source attribute of lifecycle events.
func WithEventSource(source string) Option {
	return func(s *settings) error {
		if source == "" {
			return fmt.Errorf("%w: event source", ErrOptionNil)
		}
		s.eventSource = source
		return nil
	}
}
