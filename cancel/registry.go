package cancel

import (
	"sync"

	"github.com/google/uuid"

	"github.com/CrisisTextLine/asyncbridge/internal/obslog"
)

// State is one of the three states a Registry can occupy. Transitions are
// monotonic: active -> cancelled and active -> deactivated only.
type State int

const (
	StateActive State = iota
	StateCancelled
	StateDeactivated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	case StateDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a logger used for debug-level transition tracing.
func WithLogger(l obslog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry is a three-state, lock-gated, ordered list of cancel Handles.
// It is the arbitration point used by the bridge to decide whether a
// callback completion or a cancellation wins: Add and Cancel/Deactivate
// transitions are mutually exclusive and observed in the same order by
// every caller.
//
// The lock is never held while invoking a stored handle: Cancel snapshots
// the handle list under the lock, releases it, then invokes each handle in
// insertion order. This makes re-entrant calls from within a handle's own
// Cancel (e.g. a handle that itself calls Registry.Add or Registry.Cancel)
// safe rather than deadlocking.
type Registry struct {
	mu      sync.Mutex
	state   State
	handles []Handle

	id     string
	logger obslog.Logger
}

// NewRegistry creates an active Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{id: uuid.NewString(), logger: obslog.NoOp}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the registry's current state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Add appends h to the registry while active. If the registry is already
// cancelled, h.Cancel is invoked synchronously and Add returns false. If
// the registry is already deactivated, h is discarded and Add returns
// false.
func (r *Registry) Add(h Handle) bool {
	r.mu.Lock()
	switch r.state {
	case StateActive:
		r.handles = append(r.handles, h)
		r.mu.Unlock()
		return true
	case StateCancelled:
		r.mu.Unlock()
		r.logger.Debug("registry: late add after cancel, invoking handle immediately", "registry_id", r.id)
		h.Cancel()
		return false
	default: // StateDeactivated
		r.mu.Unlock()
		r.logger.Debug("registry: late add after deactivate, discarding handle", "registry_id", r.id)
		return false
	}
}

// Cancel transitions active -> cancelled and invokes every held handle
// exactly once, in insertion order, after the state transition commits and
// the lock is released. Calling Cancel on an already-terminal registry is a
// no-op.
func (r *Registry) Cancel() {
	r.mu.Lock()
	if r.state != StateActive {
		r.mu.Unlock()
		return
	}
	r.state = StateCancelled
	handles := r.handles
	r.handles = nil
	r.mu.Unlock()

	r.logger.Debug("registry: cancelled", "registry_id", r.id, "handle_count", len(handles))
	for _, h := range handles {
		h.Cancel()
	}
}

// Deactivate transitions active -> deactivated and returns true. It
// returns false if the registry is already cancelled or deactivated. Held
// handles are discarded without being cancelled.
func (r *Registry) Deactivate() bool {
	r.mu.Lock()
	if r.state != StateActive {
		r.mu.Unlock()
		return false
	}
	r.state = StateDeactivated
	r.handles = nil
	r.mu.Unlock()

	r.logger.Debug("registry: deactivated", "registry_id", r.id)
	return true
}
