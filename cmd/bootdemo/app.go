package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/GoCodeAlone/bootstrap"
	"github.com/GoCodeAlone/bootstrap/host"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	errStoreClosed  = errors.New("item store is not running")
	errItemNotFound = errors.New("item not found")
	errUnauthorized = errors.New("invalid credential")
)

// ItemStore is an in-memory storage service.
type ItemStore struct {
	seed int

	mu      sync.RWMutex
	running bool
	items   map[string]string
}

func (s *ItemStore) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]string, s.seed)
	for i := 1; i <= s.seed; i++ {
		s.items[fmt.Sprint(i)] = fmt.Sprintf("item-%d", i)
	}
	s.running = true
	return nil
}

func (s *ItemStore) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *ItemStore) Get(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return "", errStoreClosed
	}
	v, ok := s.items[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", errItemNotFound, id)
	}
	return v, nil
}

func (s *ItemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// TokenValidator checks bearer credentials against a static list.
type TokenValidator struct {
	tokens []string
}

func (v *TokenValidator) Start(ctx context.Context) error { return nil }
func (v *TokenValidator) Stop(ctx context.Context) error  { return nil }

// Subject returns the caller identity for a raw Authorization header value.
func (v *TokenValidator) Subject(credential string) (string, error) {
	token, ok := strings.CutPrefix(credential, "Bearer ")
	if !ok || !slices.Contains(v.tokens, token) {
		return "", errUnauthorized
	}
	return "token:" + token[:min(4, len(token))], nil
}

// Shared is the shared context built once every service has started.
type Shared struct {
	Items  *ItemStore
	Tokens *TokenValidator
}

// RequestServices is the per-request service bundle.
type RequestServices struct {
	Subject string
	Items   *ItemStore
}

// TaskServices is the bundle for background work.
type TaskServices struct {
	Items *ItemStore
}

// Services is the application-services host.
type Services struct {
	shared *Shared
}

var _ bootstrap.ServicesHost[*RequestServices, *TaskServices] = (*Services)(nil)

func (s *Services) ForRequest(ctx context.Context, credential string) (*RequestServices, error) {
	subject, err := s.shared.Tokens.Subject(credential)
	if err != nil {
		return nil, err
	}
	return &RequestServices{Subject: subject, Items: s.shared.Items}, nil
}

func (s *Services) ForSystemTask(ctx context.Context) (*TaskServices, error) {
	return &TaskServices{Items: s.shared.Items}, nil
}

func buildApplication(cfg *DemoConfig, logger bootstrap.Logger) (*host.Runtime, *bootstrap.Application[*Shared, *Services], error) {
	reg := prometheus.NewRegistry()
	runtime, err := host.New(cfg.Host, host.WithLogger(logger), host.WithGatherer(reg))
	if err != nil {
		return nil, nil, err
	}

	stage, err := bootstrap.NewBuilder[*Shared, *Services](runtime, func(r *bootstrap.ServiceRegistry) error {
		r.MustRegister(&ItemStore{seed: cfg.SeedItems}).
			MustRegister(&TokenValidator{tokens: cfg.Tokens})
		return nil
	}, bootstrap.WithLogger(logger), bootstrap.WithMetrics(reg))
	if err != nil {
		return nil, nil, err
	}

	ctxStage, err := stage.WithContext(func(ctx context.Context, services bootstrap.ServiceReader) (*Shared, error) {
		items, err := bootstrap.GetService[*ItemStore](services)
		if err != nil {
			return nil, err
		}
		tokens, err := bootstrap.GetService[*TokenValidator](services)
		if err != nil {
			return nil, err
		}
		return &Shared{Items: items, Tokens: tokens}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	svcStage, err := ctxStage.WithApplicationServices(func(ctx context.Context, shared *Shared) (*Services, error) {
		return &Services{shared: shared}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	handlers, err := svcStage.HandleRequest("get-item", bootstrap.RequestOptions{
		Methods: []string{http.MethodGet},
		Route:   "/items/{id}",
	}, getItemHandler)
	if err != nil {
		return nil, nil, err
	}

	handlers, err = handlers.HandleTimer("compact-items", cfg.CompactionCron, func(services *Services) bootstrap.TimerHandler {
		return func(ctx context.Context, tick bootstrap.TimerTick) error {
			task, err := services.ForSystemTask(ctx)
			if err != nil {
				return err
			}
			logger.Info("Compaction pass", "timer", tick.Name, "items", task.Items.Len())
			return nil
		}
	})
	if err != nil {
		return nil, nil, err
	}

	app, err := handlers.Start()
	if err != nil {
		return nil, nil, err
	}
	return runtime, app, nil
}

func getItemHandler(services *Services) bootstrap.RequestHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		rs, err := services.ForRequest(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return nil
		}
		item, err := rs.Items.Get(chi.URLParam(r, "id"))
		if errors.Is(err, errItemNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return nil
		}
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(map[string]string{"id": chi.URLParam(r, "id"), "value": item, "subject": rs.Subject})
	}
}
