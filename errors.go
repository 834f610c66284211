package bootstrap

import (
	"errors"
	"fmt"
	"strings"
)

// Application errors
var (
	// Phase errors
	ErrPhaseViolation = errors.New("operation not allowed in current phase")

	// Service registry errors
	ErrDuplicateService    = errors.New("service already registered")
	ErrServiceNotFound     = errors.New("service not found")
	ErrServiceNil          = errors.New("service is nil")
	ErrRegisterServicesNil = errors.New("register services function is nil")

	// Configuration errors
	ErrHostNil               = errors.New("host runtime is nil")
	ErrContextNotConfigured  = errors.New("context creator not configured")
	ErrMissingContextCreator = errors.New("context creator is missing")
	ErrMissingFactory        = errors.New("application services factory is missing")
	ErrContextCreatorNil     = errors.New("context creator is nil")
	ErrServicesFactoryNil    = errors.New("application services factory is nil")
	ErrHandlerCreatorNil     = errors.New("handler creator is nil")
	ErrHandlerNil            = errors.New("handler creator returned nil handler")
	ErrOptionNil             = errors.New("option value is nil")

	// Observer errors
	ErrObserverPanicked = errors.New("observer panicked")

	// Accessor errors
	ErrContextNotInitialized             = errors.New("context not initialized")
	ErrApplicationServicesNotInitialized = errors.New("application services not initialized")
	ErrApplicationNotStarted             = errors.New("application not started")
	ErrAlreadyReady                      = errors.New("ready hook already ran")
)

// PhaseViolationError reports an operation invoked outside of its allowed phases.
type PhaseViolationError struct {
	Current Phase
	Allowed []Phase
}

func (e *PhaseViolationError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, p := range e.Allowed {
		allowed[i] = string(p)
	}
	return fmt.Sprintf("Invalid operation in phase '%s'. Allowed phases: %s", e.Current, strings.Join(allowed, ", "))
}

// Is makes errors.Is(err, ErrPhaseViolation) match.
func (e *PhaseViolationError) Is(target error) bool {
	return target == ErrPhaseViolation
}

// ServiceOperationError wraps a failure returned by a service's Start or Stop.
// It unwraps to the original error.
type ServiceOperationError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ServiceOperationError) Error() string {
	return fmt.Sprintf("service %s failed to %s: %v", e.Service, e.Operation, e.Err)
}

func (e *ServiceOperationError) Unwrap() error {
	return e.Err
}
