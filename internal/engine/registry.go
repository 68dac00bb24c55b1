package engine

import (
	"errors"
	"sync"

	"github.com/roach88/ifthen/internal/ir"
)

// ErrNilBehavior is returned when registering a nil behavior.
var ErrNilBehavior = errors.New("nil behavior")

// Behavior is invoked when a handler's condition matches a transition of the
// expression it is registered on.
type Behavior func(expr ir.ExpressionKey, now, last ir.Ternary)

// Handle is a revocable reference to a behavior held by the Registry.
// The zero Handle never resolves.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.generation == 0 }

type slot struct {
	behavior   Behavior
	generation uint32
	live       bool
}

// Registry owns behaviors and hands out generation-checked handles.
//
// Monitors only store handles. Once a handle is revoked it never resolves
// again, even if its slot is reused, so a monitor can never invoke a behavior
// whose owner has let go of it.
//
// Thread-safety: Registry is safe for concurrent use. Owners may revoke
// handles from any goroutine; the dispatcher resolves each handle right
// before invoking it.
type Registry struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	live  int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add stores fn and returns its handle.
func (r *Registry) Add(fn Behavior) (Handle, error) {
	if fn == nil {
		return Handle{}, ErrNilBehavior
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var index uint32
	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		index = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[index]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.behavior = fn
	s.live = true
	r.live++
	return Handle{index: index, generation: s.generation}, nil
}

// Revoke releases h. Returns false if h was already revoked or never issued.
func (r *Registry) Revoke(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slot(h)
	if s == nil {
		return false
	}
	s.behavior = nil
	s.live = false
	r.free = append(r.free, h.index)
	r.live--
	return true
}

// Resolve returns the behavior for h if it is still live.
func (r *Registry) Resolve(h Handle) (Behavior, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slot(h)
	if s == nil {
		return nil, false
	}
	return s.behavior, true
}

// Live reports whether h still resolves.
func (r *Registry) Live(h Handle) bool {
	_, ok := r.Resolve(h)
	return ok
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// slot returns h's slot if h is live. Caller holds mu.
func (r *Registry) slot(h Handle) *slot {
	if h.IsZero() || int(h.index) >= len(r.slots) {
		return nil
	}
	s := &r.slots[h.index]
	if !s.live || s.generation != h.generation {
		return nil
	}
	return s
}
