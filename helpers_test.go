package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakeHost records everything the application hands to it.
type fakeHost struct {
	mu             sync.Mutex
	requests       map[string]RequestHandler
	requestOpts    map[string]RequestOptions
	timers         map[string]TimerHandler
	schedules      map[string]string
	readyHooks     []Hook
	terminateHooks []Hook
	failRequest    error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		requests:    make(map[string]RequestHandler),
		requestOpts: make(map[string]RequestOptions),
		timers:      make(map[string]TimerHandler),
		schedules:   make(map[string]string),
	}
}

func (h *fakeHost) HandleRequest(name string, opts RequestOptions, handler RequestHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failRequest != nil {
		return h.failRequest
	}
	h.requests[name] = handler
	h.requestOpts[name] = opts
	return nil
}

func (h *fakeHost) HandleTimer(name, schedule string, handler TimerHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timers[name] = handler
	h.schedules[name] = schedule
	return nil
}

func (h *fakeHost) OnReady(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readyHooks = append(h.readyHooks, hook)
}

func (h *fakeHost) OnTerminate(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminateHooks = append(h.terminateHooks, hook)
}

func (h *fakeHost) ready(ctx context.Context) error {
	for _, hook := range h.readyHooks {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (h *fakeHost) terminate(ctx context.Context) error {
	for _, hook := range h.terminateHooks {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

// stubService is a configurable Service. Its behaviour is set through funcs so
// each test type below gets a distinct ServiceKey.
type stubService struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	stopErr  error
	onStart  func(ctx context.Context) error
}

func (s *stubService) Start(ctx context.Context) error {
	s.mu.Lock()
	s.starts++
	hook, err := s.onStart, s.startErr
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return err
}

func (s *stubService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return s.stopErr
}

func (s *stubService) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

type databaseService struct{ stubService }
type cacheService struct{ stubService }
type queueService struct{ stubService }

type testShared struct {
	db *databaseService
}

type testServices struct {
	shared *testShared
	label  string
}

// testLogger captures log messages for assertions.
type testLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *testLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (l *testLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args...) }
func (l *testLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args...) }
func (l *testLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args...) }
func (l *testLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args...) }

func (l *testLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func newSpanRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, tp
}

func spansByName(spans []sdktrace.ReadOnlySpan) map[string]sdktrace.ReadOnlySpan {
	out := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, s := range spans {
		out[s.Name()] = s
	}
	return out
}

func dbContext(ctx context.Context, services ServiceReader) (*testShared, error) {
	db, err := GetService[*databaseService](services)
	if err != nil {
		return nil, err
	}
	return &testShared{db: db}, nil
}

func labelledServices(label string) ServicesFactory[*testShared, *testServices] {
	return func(ctx context.Context, shared *testShared) (*testServices, error) {
		return &testServices{shared: shared, label: label}, nil
	}
}

// configuredApp returns an application in PhaseAppServices with db registered.
func configuredApp(t *testing.T, host Host, db *databaseService, opts ...Option) *Application[*testShared, *testServices] {
	t.Helper()
	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		_, err := r.Register(db)
		return err
	}, opts...)
	require.NoError(t, err)
	require.NoError(t, app.SetContext(dbContext))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("svc")))
	return app
}

func okHandler(services *testServices) RequestHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(services.label))
		return err
	}
}

const (
	timeout = time.Second
	tick    = 10 * time.Millisecond
)

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

// hasException reports whether span recorded an exception event whose message
// contains substr.
func hasException(span sdktrace.ReadOnlySpan, substr string) bool {
	for _, ev := range span.Events() {
		if ev.Name != "exception" {
			continue
		}
		for _, kv := range ev.Attributes {
			if kv.Key == "exception.message" && strings.Contains(kv.Value.AsString(), substr) {
				return true
			}
		}
	}
	return false
}
