package engine

import (
	"slices"

	"github.com/roach88/ifthen/internal/ir"
)

// pendingSignal is the dirty state set by change notifications.
type pendingSignal uint8

const (
	signalNone pendingSignal = iota
	// signalValid: a watched status changed or appeared.
	signalValid
	// signalInvalid: a watched status disappeared. Overrides signalValid.
	signalInvalid
)

func (p pendingSignal) String() string {
	switch p {
	case signalValid:
		return "valid"
	case signalInvalid:
		return "invalid"
	default:
		return "none"
	}
}

// handler is one subscription on a monitor.
type handler struct {
	handle    Handle
	condition Condition
	priority  int32
}

// monitor tracks one watched expression's last evaluation and handlers.
type monitor struct {
	pending    pendingSignal
	last       ir.Ternary
	flush      bool // volatile: re-evaluate every tick
	registered bool // linked into the status index
	handlers   []handler
}

func newMonitor() *monitor {
	return &monitor{pending: signalValid, last: ir.Unknown}
}

func (m *monitor) notify(existed bool) {
	switch {
	case !existed:
		m.pending = signalInvalid
	case m.pending == signalNone:
		m.pending = signalValid
	}
}

func (m *monitor) dirty() bool {
	return m.pending != signalNone || m.flush
}

func (m *monitor) find(h Handle) int {
	return slices.IndexFunc(m.handlers, func(x handler) bool { return x.handle == h })
}

// prune drops handlers whose handle no longer resolves and returns how many
// were dropped.
func (m *monitor) prune(r *Registry) int {
	before := len(m.handlers)
	m.handlers = slices.DeleteFunc(m.handlers, func(x handler) bool { return !r.Live(x.handle) })
	return before - len(m.handlers)
}

// statusMonitor links one status key to the expressions that depend on it.
type statusMonitor struct {
	expressions []ir.ExpressionKey // sorted, unique
	existed     bool
}

func (s *statusMonitor) link(expr ir.ExpressionKey) {
	i, found := slices.BinarySearch(s.expressions, expr)
	if !found {
		s.expressions = slices.Insert(s.expressions, i, expr)
	}
}
