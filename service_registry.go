package bootstrap

import (
	"fmt"
	"sync/atomic"
)

// ServiceReader is the read-only view of the registry handed to context creators.
type ServiceReader interface {
	Get(key ServiceKey) (Service, error)
	ServicesInitialized() bool
}

// ServiceRegistry stores infrastructure services keyed by their concrete type.
// It is insert-only during PhaseInfrastructure and read-only afterwards, which
// is why lookups take no lock.
type ServiceRegistry struct {
	guard       *phaseGuard
	logger      Logger
	order       []ServiceKey
	services    map[ServiceKey]Service
	initialized atomic.Bool
}

// NewServiceRegistry creates an empty registry in PhaseInfrastructure.
func NewServiceRegistry(logger Logger) *ServiceRegistry {
	return newServiceRegistry(newPhaseGuard(), logger)
}

func newServiceRegistry(guard *phaseGuard, logger Logger) *ServiceRegistry {
	if logger == nil {
		logger = nopLogger{}
	}
	return &ServiceRegistry{
		guard:    guard,
		logger:   logger,
		services: make(map[ServiceKey]Service),
	}
}

// Register adds svc under its concrete type. It returns the registry so calls
// can be chained.
func (r *ServiceRegistry) Register(svc Service) (*ServiceRegistry, error) {
	if err := r.guard.ensure(PhaseInfrastructure); err != nil {
		return r, err
	}
	if svc == nil {
		return r, ErrServiceNil
	}

	key := KeyOf(svc)
	if _, exists := r.services[key]; exists {
		return r, fmt.Errorf("%w: %s", ErrDuplicateService, key)
	}

	r.services[key] = svc
	r.order = append(r.order, key)
	r.logger.Debug("Registered service", "service", key.String())
	return r, nil
}

// MustRegister is Register that panics on error.
func (r *ServiceRegistry) MustRegister(svc Service) *ServiceRegistry {
	if _, err := r.Register(svc); err != nil {
		panic(err)
	}
	return r
}

// Get returns the service registered under key.
func (r *ServiceRegistry) Get(key ServiceKey) (Service, error) {
	svc, exists := r.services[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, key)
	}
	return svc, nil
}

// ServicesInitialized reports whether every service has started successfully.
func (r *ServiceRegistry) ServicesInitialized() bool {
	return r.initialized.Load()
}

// Len returns the number of registered services.
func (r *ServiceRegistry) Len() int {
	return len(r.order)
}

// Keys returns the registered keys in registration order.
func (r *ServiceRegistry) Keys() []ServiceKey {
	keys := make([]ServiceKey, len(r.order))
	copy(keys, r.order)
	return keys
}

func (r *ServiceRegistry) markInitialized() {
	r.initialized.Store(true)
}

// GetService looks up the service registered as T and returns it typed.
func GetService[T Service](r ServiceReader) (T, error) {
	var zero T
	svc, err := r.Get(Key[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrServiceNotFound, Key[T]())
	}
	return typed, nil
}
