package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestReadyStartsServicesAndBuildsContext(t *testing.T) {
	rec, tp := newSpanRecorder(t)
	host := newFakeHost()
	db, cache := &databaseService{}, &cacheService{}

	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		r.MustRegister(db).MustRegister(cache)
		return nil
	}, WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, app.SetContext(dbContext))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("svc")))
	_, err = app.Start()
	require.NoError(t, err)

	require.NoError(t, host.ready(context.Background()))

	starts, _ := db.counts()
	assert.Equal(t, 1, starts)
	starts, _ = cache.counts()
	assert.Equal(t, 1, starts)
	assert.True(t, app.ServicesInitialized())

	shared, err := app.Context()
	require.NoError(t, err)
	assert.Same(t, db, shared.db)

	services, err := app.ApplicationServices()
	require.NoError(t, err)
	assert.Same(t, shared, services.shared)

	spans := spansByName(rec.Ended())
	root, ok := spans["bootstrap.start"]
	require.True(t, ok)
	assert.Equal(t, codes.Ok, root.Status().Code)
	assert.False(t, root.Parent().IsValid())

	for _, name := range []string{
		"*bootstrap.databaseService start",
		"*bootstrap.cacheService start",
		"bootstrap.context",
		"bootstrap.application_services",
	} {
		span, ok := spans[name]
		require.True(t, ok, name)
		assert.Equal(t, codes.Ok, span.Status().Code, name)
		assert.Equal(t, root.SpanContext().SpanID(), span.Parent().SpanID(), name)
	}
	assert.Contains(t, spans["*bootstrap.cacheService start"].Attributes(),
		attribute.String("bootstrap.service.name", "*bootstrap.cacheService"))
}

func TestReadyFailsWhenOneServiceFails(t *testing.T) {
	rec, tp := newSpanRecorder(t)
	host := newFakeHost()
	boom := errors.New("connection refused")

	dbStarted := make(chan struct{})
	db := &databaseService{stubService{onStart: func(context.Context) error {
		close(dbStarted)
		return nil
	}}}
	cache := &cacheService{stubService{onStart: func(context.Context) error {
		<-dbStarted
		return boom
	}}}

	var creatorCalls int
	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		r.MustRegister(db).MustRegister(cache)
		return nil
	}, WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, app.SetContext(func(ctx context.Context, s ServiceReader) (*testShared, error) {
		creatorCalls++
		return dbContext(ctx, s)
	}))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("svc")))
	_, err = app.Start()
	require.NoError(t, err)

	err = host.ready(context.Background())
	require.ErrorIs(t, err, boom)

	var opErr *ServiceOperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "*bootstrap.cacheService", opErr.Service)
	assert.Equal(t, "start", opErr.Operation)

	assert.Zero(t, creatorCalls)
	assert.False(t, app.ServicesInitialized())
	_, err = app.Context()
	assert.ErrorIs(t, err, ErrContextNotInitialized)
	_, err = app.ApplicationServices()
	assert.ErrorIs(t, err, ErrApplicationServicesNotInitialized)

	spans := spansByName(rec.Ended())
	root := spans["bootstrap.start"]
	assert.Equal(t, codes.Error, root.Status().Code)
	assert.True(t, hasException(root, "connection refused"), "root span should record the cache failure")
	assert.Equal(t, codes.Error, spans["*bootstrap.cacheService start"].Status().Code)
	assert.NotEmpty(t, spans["*bootstrap.cacheService start"].Events())
	assert.Equal(t, codes.Ok, spans["*bootstrap.databaseService start"].Status().Code)
	assert.NotContains(t, spans, "bootstrap.context")
}

func TestReadyRunsOnce(t *testing.T) {
	host := newFakeHost()
	db := &databaseService{}
	var creatorCalls, factoryCalls int
	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		r.MustRegister(db)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, app.SetContext(func(ctx context.Context, s ServiceReader) (*testShared, error) {
		creatorCalls++
		return dbContext(ctx, s)
	}))
	require.NoError(t, app.InitializeApplicationServices(func(ctx context.Context, shared *testShared) (*testServices, error) {
		factoryCalls++
		return &testServices{shared: shared}, nil
	}))
	_, err = app.Start()
	require.NoError(t, err)

	require.NoError(t, host.ready(context.Background()))
	assert.ErrorIs(t, host.ready(context.Background()), ErrAlreadyReady)

	starts, _ := db.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, creatorCalls)
	assert.Equal(t, 1, factoryCalls)
}

func TestReadyRunsOnceAfterFailure(t *testing.T) {
	host := newFakeHost()
	db := &databaseService{stubService{startErr: errors.New("down")}}
	app := configuredApp(t, host, db)
	_, err := app.Start()
	require.NoError(t, err)

	require.Error(t, host.ready(context.Background()))
	assert.ErrorIs(t, host.ready(context.Background()), ErrAlreadyReady)
	starts, _ := db.counts()
	assert.Equal(t, 1, starts)
}

func TestTerminateWaitsForPendingStarts(t *testing.T) {
	host := newFakeHost()
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	db := &databaseService{stubService{startErr: errors.New("down")}}
	cache := &cacheService{stubService{onStart: func(context.Context) error {
		<-release
		record("cache started")
		return nil
	}}}
	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		r.MustRegister(db).MustRegister(cache)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, app.SetContext(dbContext))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("x")))
	_, err = app.Start()
	require.NoError(t, err)

	require.Error(t, host.ready(context.Background()))

	stopped := make(chan error, 1)
	go func() {
		stopped <- host.terminate(context.Background())
		record("terminated")
	}()

	select {
	case <-stopped:
		t.Fatal("terminate returned while a start was still running")
	case <-time.After(50 * time.Millisecond):
	}
	_, stops := cache.counts()
	assert.Zero(t, stops)

	close(release)
	require.NoError(t, <-stopped)
	_, stops = cache.counts()
	assert.Equal(t, 1, stops)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, timeout, tick)
	mu.Lock()
	assert.Equal(t, []string{"cache started", "terminated"}, order)
	mu.Unlock()
}

func TestReadyWithNoServices(t *testing.T) {
	rec, tp := newSpanRecorder(t)
	host := newFakeHost()
	app, err := New[*testShared, *testServices](host, func(*ServiceRegistry) error { return nil }, WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, app.SetContext(func(context.Context, ServiceReader) (*testShared, error) {
		return &testShared{}, nil
	}))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("empty")))
	_, err = app.Start()
	require.NoError(t, err)

	require.NoError(t, host.ready(context.Background()))
	assert.True(t, app.ServicesInitialized())

	services, err := app.ApplicationServices()
	require.NoError(t, err)
	assert.Equal(t, "empty", services.label)

	spans := spansByName(rec.Ended())
	assert.Equal(t, codes.Ok, spans["bootstrap.start"].Status().Code)
	assert.Len(t, rec.Ended(), 3)
}

func TestReadyContextAndFactoryFailures(t *testing.T) {
	t.Run("context creator error", func(t *testing.T) {
		rec, tp := newSpanRecorder(t)
		host := newFakeHost()
		boom := errors.New("no tenant")
		app, err := New[*testShared, *testServices](host, func(*ServiceRegistry) error { return nil }, WithTracerProvider(tp))
		require.NoError(t, err)
		require.NoError(t, app.SetContext(func(context.Context, ServiceReader) (*testShared, error) { return nil, boom }))
		require.NoError(t, app.InitializeApplicationServices(labelledServices("x")))
		_, err = app.Start()
		require.NoError(t, err)

		err = host.ready(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to create context")
		assert.True(t, app.ServicesInitialized())

		spans := spansByName(rec.Ended())
		assert.Equal(t, codes.Error, spans["bootstrap.context"].Status().Code)
		assert.Equal(t, codes.Error, spans["bootstrap.start"].Status().Code)
	})

	t.Run("factory error", func(t *testing.T) {
		host := newFakeHost()
		boom := errors.New("bad wiring")
		app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
			r.MustRegister(&databaseService{})
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, app.SetContext(dbContext))
		require.NoError(t, app.InitializeApplicationServices(func(context.Context, *testShared) (*testServices, error) {
			return nil, boom
		}))
		_, err = app.Start()
		require.NoError(t, err)

		err = host.ready(context.Background())
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to create application services")
		_, err = app.Context()
		assert.NoError(t, err)
		_, err = app.ApplicationServices()
		assert.ErrorIs(t, err, ErrApplicationServicesNotInitialized)
	})

	t.Run("missing factory", func(t *testing.T) {
		host := newFakeHost()
		app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
			r.MustRegister(&databaseService{})
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, app.SetContext(dbContext))
		app.guard.advance(PhaseAppServices)
		_, err = app.Start()
		require.NoError(t, err)

		assert.ErrorIs(t, host.ready(context.Background()), ErrMissingFactory)
	})
}

func TestTerminateStopsServices(t *testing.T) {
	rec, tp := newSpanRecorder(t)
	host := newFakeHost()
	db, cache := &databaseService{}, &cacheService{}
	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		r.MustRegister(db).MustRegister(cache)
		return nil
	}, WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, app.SetContext(dbContext))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("x")))
	_, err = app.Start()
	require.NoError(t, err)

	require.NoError(t, host.ready(context.Background()))
	require.NoError(t, host.terminate(context.Background()))

	_, stops := db.counts()
	assert.Equal(t, 1, stops)
	_, stops = cache.counts()
	assert.Equal(t, 1, stops)

	spans := spansByName(rec.Ended())
	root := spans["bootstrap.stop"]
	require.NotNil(t, root)
	assert.Equal(t, codes.Ok, root.Status().Code)
	assert.False(t, root.Parent().IsValid())
	assert.Equal(t, root.SpanContext().SpanID(), spans["*bootstrap.databaseService stop"].Parent().SpanID())
}

func TestTerminateReportsStopFailure(t *testing.T) {
	host := newFakeHost()
	boom := errors.New("flush failed")
	cache := &cacheService{stubService{stopErr: boom}}
	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		r.MustRegister(&databaseService{}).MustRegister(cache)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, app.SetContext(dbContext))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("x")))
	_, err = app.Start()
	require.NoError(t, err)

	err = host.terminate(context.Background())
	require.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "service *bootstrap.cacheService failed to stop: flush failed")
}

func TestLifecycleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	host := newFakeHost()
	cache := &cacheService{stubService{startErr: errors.New("down")}}
	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		r.MustRegister(&databaseService{}).MustRegister(cache)
		return nil
	}, WithMetrics(reg))
	require.NoError(t, err)
	assert.Equal(t, float64(0), testutil.ToFloat64(app.metrics.phase))

	require.NoError(t, app.SetContext(dbContext))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("x")))
	_, err = app.Start()
	require.NoError(t, err)
	assert.Equal(t, float64(PhaseStarted.Index()), testutil.ToFloat64(app.metrics.phase))

	require.Error(t, host.ready(context.Background()))

	// The successful sibling may still be in flight when ready returns.
	assert.Eventually(t, func() bool {
		return testutil.CollectAndCount(app.metrics.duration) == 2
	}, timeout, tick)
	assert.Equal(t, float64(1), testutil.ToFloat64(app.metrics.failures.WithLabelValues("*bootstrap.cacheService", "start")))

	t.Run("duplicate registration", func(t *testing.T) {
		_, err := New[*testShared, *testServices](newFakeHost(), func(*ServiceRegistry) error { return nil }, WithMetrics(reg))
		assert.ErrorContains(t, err, "failed to register lifecycle metrics")
	})
}

func TestLifecycleObservers(t *testing.T) {
	var mu sync.Mutex
	var events []cloudevents.Event
	observer := NewFunctionalObserver("recorder", func(ctx context.Context, e cloudevents.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	})
	panicky := NewFunctionalObserver("panicky", func(context.Context, cloudevents.Event) error {
		panic("observer bug")
	})
	logger := &testLogger{}

	host := newFakeHost()
	app, err := New[*testShared, *testServices](host, func(r *ServiceRegistry) error {
		r.MustRegister(&databaseService{})
		return nil
	}, WithObservers(panicky, observer), WithEventSource("orders-api"), WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, app.SetContext(dbContext))
	require.NoError(t, app.InitializeApplicationServices(labelledServices("x")))
	_, err = app.Start()
	require.NoError(t, err)

	require.NoError(t, host.ready(context.Background()))
	require.NoError(t, host.terminate(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type()
		assert.Equal(t, "orders-api", e.Source())
		assert.Equal(t, "started", e.Extensions()["bootstrapphase"])
		assert.NoError(t, ValidateCloudEvent(e))
	}
	assert.Equal(t, []string{
		EventTypeServiceStarted,
		EventTypeApplicationReady,
		EventTypeServiceStopped,
		EventTypeApplicationTerminated,
	}, types)

	var warned bool
	for _, m := range logger.messages() {
		if containsAll(m, "WARN", "Observer error", "panicky") {
			warned = true
		}
	}
	assert.True(t, warned)
}
