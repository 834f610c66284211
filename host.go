package bootstrap

import (
	"context"
	"net/http"
	"time"
)

// Hook is a lifecycle callback installed with the host runtime.
type Hook func(ctx context.Context) error

// RequestOptions describes how the host routes a request handler.
type RequestOptions struct {
	// Methods lists the HTTP methods served; empty means GET.
	Methods []string

	// Route is the path pattern, for example "/orders/{id}".
	Route string

	// AuthLevel is passed through to the host untouched.
	AuthLevel string
}

// RequestHandler serves one request. A returned error is turned into a
// response by the host.
type RequestHandler func(w http.ResponseWriter, r *http.Request) error

// TimerTick carries the details of one timer firing.
type TimerTick struct {
	Name     string
	Schedule string
	FiredAt  time.Time
}

// TimerHandler runs one timer firing.
type TimerHandler func(ctx context.Context, tick TimerTick) error

// Host is the runtime the application registers handlers and hooks with.
// The host decides when requests, timers and hooks actually run.
type Host interface {
	HandleRequest(name string, opts RequestOptions, h RequestHandler) error
	HandleTimer(name, schedule string, h TimerHandler) error
	OnReady(hook Hook)
	OnTerminate(hook Hook)
}

// ServicesHost is the usual shape of an application-services host: it mints
// a bundle per request, optionally from a raw credential, and a bundle for
// background work. The orchestrator never calls it.
type ServicesHost[R, T any] interface {
	ForRequest(ctx context.Context, credential string) (R, error)
	ForSystemTask(ctx context.Context) (T, error)
}
