// Package host is a concrete bootstrap.Host: request handlers are served by a
// chi router, timer handlers run on a cron scheduler, and Run drives the ready
// and terminate hooks around the serving loop.
package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/bootstrap"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// HeaderRequestID carries the request ID assigned to every request.
const HeaderRequestID = "X-Request-ID"

var (
	ErrNameRequired          = errors.New("handler name is required")
	ErrRouteRequired         = errors.New("request route is required")
	ErrDuplicateHandler      = errors.New("handler already registered")
	ErrUnsupportedMethod     = errors.New("unsupported HTTP method")
	ErrInvalidSchedule       = errors.New("invalid timer schedule")
	ErrTimerNotFound         = errors.New("timer not found")
	ErrAlreadyRunning        = errors.New("runtime is already running")
	ErrHandlerRegistryLocked = errors.New("handlers cannot be registered while running")
)

var supportedMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace,
}

type timerJob struct {
	name     string
	spec     string
	schedule cron.Schedule
	handler  bootstrap.TimerHandler
}

// Runtime hosts request handlers, timers and lifecycle hooks.
type Runtime struct {
	cfg      Config
	logger   bootstrap.Logger
	gatherer prometheus.Gatherer
	router   chi.Router
	cron     *cron.Cron

	mu             sync.Mutex
	names          map[string]struct{}
	routes         map[string]string
	timers         map[string]*timerJob
	timerOrder     []string
	readyHooks     []bootstrap.Hook
	terminateHooks []bootstrap.Hook
	running        bool
	addr           net.Addr
	status         HealthStatus
	statusSince    time.Time
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger bootstrap.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithGatherer sets the gatherer served on Config.MetricsPath.
// prometheus.DefaultGatherer is used otherwise.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(r *Runtime) {
		if g != nil {
			r.gatherer = g
		}
	}
}

// New creates a runtime from cfg.
func New(cfg Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, _ := cfg.location()

	r := &Runtime{
		cfg:         cfg,
		logger:      nopLogger{},
		gatherer:    prometheus.DefaultGatherer,
		names:       make(map[string]struct{}),
		routes:      make(map[string]string),
		timers:      make(map[string]*timerJob),
		status:      StatusUnknown,
		statusSince: time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cron = cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{r.logger}))

	router := chi.NewRouter()
	router.Use(requestID)
	if cfg.MetricsPath != "" {
		router.Handle(cfg.MetricsPath, promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.HealthPath != "" {
		router.Get(cfg.HealthPath, r.serveHealth)
	}
	r.router = router
	return r, nil
}

// HandleRequest mounts h on every method of opts at opts.Route.
func (r *Runtime) HandleRequest(name string, opts bootstrap.RequestOptions, h bootstrap.RequestHandler) error {
	if opts.Route == "" {
		return fmt.Errorf("%w: %s", ErrRouteRequired, name)
	}
	methods := opts.Methods
	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}
	normalized := make([]string, len(methods))
	for i, m := range methods {
		normalized[i] = strings.ToUpper(m)
		if !slices.Contains(supportedMethods, normalized[i]) {
			return fmt.Errorf("%w: %s", ErrUnsupportedMethod, m)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range normalized {
		if owner, taken := r.routes[m+" "+opts.Route]; taken {
			return fmt.Errorf("%w: %s %s is served by %s", ErrDuplicateHandler, m, opts.Route, owner)
		}
	}
	if err := r.claimName(name); err != nil {
		return err
	}

	handler := r.serve(name, h)
	for _, m := range normalized {
		r.routes[m+" "+opts.Route] = name
		r.router.MethodFunc(m, opts.Route, handler)
	}
	r.logger.Debug("Mounted request handler", "name", name, "route", opts.Route, "methods", normalized, "authLevel", opts.AuthLevel)
	return nil
}

// HandleTimer parses schedule as a standard cron expression and queues h.
// Timers are scheduled when Run starts.
func (r *Runtime) HandleTimer(name, schedule string, h bootstrap.TimerHandler) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchedule, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.claimName(name); err != nil {
		return err
	}
	r.timers[name] = &timerJob{name: name, spec: schedule, schedule: sched, handler: h}
	r.timerOrder = append(r.timerOrder, name)
	return nil
}

// OnReady appends a hook run by Run before serving.
func (r *Runtime) OnReady(hook bootstrap.Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readyHooks = append(r.readyHooks, hook)
}

// OnTerminate appends a hook run by Run after serving stops.
func (r *Runtime) OnTerminate(hook bootstrap.Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminateHooks = append(r.terminateHooks, hook)
}

// Handler returns the HTTP handler serving every mounted request handler.
func (r *Runtime) Handler() http.Handler {
	return r.router
}

// Addr returns the listen address once Run is serving, nil before.
func (r *Runtime) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addr
}

// Fire runs the named timer immediately on the calling goroutine.
func (r *Runtime) Fire(ctx context.Context, name string) error {
	r.mu.Lock()
	job, ok := r.timers[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, name)
	}
	return r.runTimer(ctx, job, time.Now())
}

// Run executes the ready hooks, then serves HTTP and timers until ctx is
// done, then shuts down and executes the terminate hooks.
//
// When a ready hook fails, the terminate hooks still run so that services
// which did start are stopped, and the ready error is returned.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	ready := slices.Clone(r.readyHooks)
	terminate := slices.Clone(r.terminateHooks)
	timers := make([]*timerJob, 0, len(r.timerOrder))
	for _, name := range r.timerOrder {
		timers = append(timers, r.timers[name])
	}
	r.mu.Unlock()

	if err := runReadyHooks(ctx, ready); err != nil {
		r.setStatus(StatusCritical)
		r.logger.Error("Ready hook failed, running terminate hooks", "error", err)
		if termErr := r.terminateDetached(ctx, terminate); termErr != nil {
			r.logger.Error("Terminate hook failed", "error", termErr)
		}
		return err
	}

	ln, err := net.Listen("tcp", r.cfg.Addr)
	if err != nil {
		r.setStatus(StatusCritical)
		err = fmt.Errorf("failed to listen on %s: %w", r.cfg.Addr, err)
		return errors.Join(err, r.terminateDetached(ctx, terminate))
	}
	r.mu.Lock()
	r.addr = ln.Addr()
	r.mu.Unlock()
	r.setStatus(StatusHealthy)

	for _, job := range timers {
		r.cron.Schedule(job.schedule, r.cronJob(ctx, job))
	}

	server := &http.Server{
		Handler:           r.router,
		ReadHeaderTimeout: r.cfg.ReadHeaderTimeout,
	}

	r.cron.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.setStatus(StatusCritical)
		r.logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		cronDone := r.cron.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		select {
		case <-cronDone.Done():
		case <-shutdownCtx.Done():
			r.logger.Warn("Timers still running at shutdown deadline")
		}
		if err := runTerminateHooks(shutdownCtx, terminate); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func (r *Runtime) claimName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	if r.running {
		return fmt.Errorf("%w: %s", ErrHandlerRegistryLocked, name)
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	r.names[name] = struct{}{}
	return nil
}

func (r *Runtime) serve(name string, h bootstrap.RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, bootstrap.ErrApplicationNotStarted) {
				status = http.StatusServiceUnavailable
			}
			r.logger.Error("Request handler failed", "handler", name, "requestID", req.Header.Get(HeaderRequestID), "status", status, "error", err)
			http.Error(w, http.StatusText(status), status)
		}
	}
}

func (r *Runtime) cronJob(ctx context.Context, job *timerJob) cron.Job {
	return cron.FuncJob(func() {
		if err := r.runTimer(ctx, job, time.Now()); err != nil {
			r.logger.Error("Timer handler failed", "timer", job.name, "error", err)
		}
	})
}

func (r *Runtime) runTimer(ctx context.Context, job *timerJob, firedAt time.Time) error {
	return job.handler(ctx, bootstrap.TimerTick{
		Name:     job.name,
		Schedule: job.spec,
		FiredAt:  firedAt,
	})
}

// runReadyHooks stops at the first failing hook.
func runReadyHooks(ctx context.Context, hooks []bootstrap.Hook) error {
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runTerminateHooks runs every hook and joins their errors.
func runTerminateHooks(ctx context.Context, hooks []bootstrap.Hook) error {
	var errs []error
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) terminateDetached(ctx context.Context, hooks []bootstrap.Hook) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ShutdownTimeout)
	defer cancel()
	return runTerminateHooks(stopCtx, hooks)
}

// requestID assigns an X-Request-ID to requests that arrive without one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
			req.Header.Set(HeaderRequestID, id)
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, req)
	})
}
