package bootstrap

import "slices"

// Phase is one of the ordered configuration states an Application passes through.
type Phase string

const (
	// PhaseInfrastructure accepts infrastructure service registrations
	PhaseInfrastructure Phase = "infrastructure"

	// PhaseContext has a context creator and waits for the services factory
	PhaseContext Phase = "context"

	// PhaseAppServices has a services factory and accepts handlers or Start
	PhaseAppServices Phase = "app-services"

	// PhaseHandlers has at least one pending handler registration
	PhaseHandlers Phase = "handlers"

	// PhaseStarted is terminal for configuration purposes
	PhaseStarted Phase = "started"
)

var phaseOrder = []Phase{
	PhaseInfrastructure,
	PhaseContext,
	PhaseAppServices,
	PhaseHandlers,
	PhaseStarted,
}

// Index returns the position of p in the phase order, or -1 for an unknown phase.
func (p Phase) Index() int {
	return slices.Index(phaseOrder, p)
}

func (p Phase) String() string {
	return string(p)
}

// phaseGuard holds the current phase and only ever moves it forward.
type phaseGuard struct {
	current Phase
}

func newPhaseGuard() *phaseGuard {
	return &phaseGuard{current: PhaseInfrastructure}
}

func (g *phaseGuard) ensure(allowed ...Phase) error {
	if slices.Contains(allowed, g.current) {
		return nil
	}
	return &PhaseViolationError{Current: g.current, Allowed: allowed}
}

// advance moves to the given phase. Moving backwards or staying put is a no-op.
func (g *phaseGuard) advance(to Phase) {
	if to.Index() > g.current.Index() {
		g.current = to
	}
}
