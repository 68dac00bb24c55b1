package engine

import (
	"cmp"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/ifthen/internal/archive"
	"github.com/roach88/ifthen/internal/expression"
	"github.com/roach88/ifthen/internal/ir"
)

// Archive is the status archive as seen by the dispatcher.
// Implemented by *archive.Archive.
type Archive interface {
	Get(key ir.StatusKey) (ir.Value, bool)
	Transition(key ir.StatusKey) archive.Transition
	ResetTransitions()
}

// CacheEntry is one pending behavior invocation produced by Collect.
type CacheEntry struct {
	Handle     Handle
	Expression ir.ExpressionKey
	Priority   int32
	Now        ir.Ternary
	Last       ir.Ternary
}

// Dispatcher turns status changes into behavior invocations.
//
// Each tick runs in two phases. Collect links new monitors to the statuses
// they depend on, converts the archive's change flags into monitor signals,
// re-evaluates dirty monitors and caches the handlers whose condition matches
// the observed transition. Drain then invokes the cached behaviors in
// ascending priority order. Writes made by behaviors are seen by the next
// Collect; the cache of the current tick is fixed before draining starts.
//
// Thread-safety: Dispatcher is NOT safe for concurrent use.
type Dispatcher struct {
	evaluator *expression.Evaluator
	registry  *Registry
	metrics   *Metrics

	monitors map[ir.ExpressionKey]*monitor
	statuses map[ir.StatusKey]*statusMonitor
	unlinked []ir.ExpressionKey

	cache       []CacheEntry
	dispatching bool
	pruned      int
}

// NewDispatcher creates a Dispatcher over evaluator's expressions. Handles
// are resolved through registry. metrics may be nil.
func NewDispatcher(evaluator *expression.Evaluator, registry *Registry, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		evaluator: evaluator,
		registry:  registry,
		metrics:   metrics,
		monitors:  make(map[ir.ExpressionKey]*monitor),
		statuses:  make(map[ir.StatusKey]*statusMonitor),
	}
}

// monitor returns expr's monitor, creating it if needed. A new monitor starts
// with a pending Valid signal so its first evaluation runs on the next tick.
func (d *Dispatcher) monitor(expr ir.ExpressionKey) *monitor {
	m := d.monitors[expr]
	if m == nil {
		m = newMonitor()
		d.monitors[expr] = m
		d.unlinked = append(d.unlinked, expr)
		d.metrics.setMonitors(len(d.monitors))
	}
	return m
}

// Watch ensures a monitor exists for expr without registering a handler.
// Returns false if the monitor already existed.
func (d *Dispatcher) Watch(expr ir.ExpressionKey) bool {
	if _, ok := d.monitors[expr]; ok {
		return false
	}
	d.monitor(expr)
	return true
}

// RegisterHandler subscribes handle to transitions of expr that match
// condition. Dead handlers on the monitor are pruned while checking for
// duplicates.
func (d *Dispatcher) RegisterHandler(expr ir.ExpressionKey, condition Condition, handle Handle, priority int32) error {
	key := strconv.FormatUint(uint64(expr), 10)
	if !condition.Valid() {
		return &RegistrationError{
			Code:    ErrCodeInvalidCondition,
			Message: fmt.Sprintf("condition %d is not a valid transition pattern", uint8(condition)),
			Key:     key,
		}
	}
	if !d.registry.Live(handle) {
		return &RegistrationError{
			Code:    ErrCodeDeadHandler,
			Message: "handle does not resolve to a live behavior",
			Key:     key,
		}
	}

	if m, ok := d.monitors[expr]; ok {
		d.metrics.prunedHandlers(m.prune(d.registry))
		if m.find(handle) >= 0 {
			return &RegistrationError{
				Code:    ErrCodeDuplicateHandler,
				Message: "handle already registered on expression",
				Key:     key,
			}
		}
	}

	m := d.monitor(expr)
	m.handlers = append(m.handlers, handler{handle: handle, condition: condition, priority: priority})
	return nil
}

// UnregisterHandler removes handle from every monitor. It is idempotent and
// returns the number of subscriptions removed.
func (d *Dispatcher) UnregisterHandler(handle Handle) int {
	removed := 0
	for _, m := range d.monitors {
		if i := m.find(handle); i >= 0 {
			m.handlers = slices.Delete(m.handlers, i, i+1)
			removed++
		}
	}
	return removed
}

// UnregisterExpressionHandler removes handle from expr's monitor only.
func (d *Dispatcher) UnregisterExpressionHandler(expr ir.ExpressionKey, handle Handle) bool {
	m := d.monitors[expr]
	if m == nil {
		return false
	}
	i := m.find(handle)
	if i < 0 {
		return false
	}
	m.handlers = slices.Delete(m.handlers, i, i+1)
	return true
}

// Relink queues for re-linking every monitor whose expression is one of
// exprs or references one of them through its compounds. Monitors of the
// listed expressions are signalled Invalid when removed is true, so a
// vanished expression is observed as a transition to Unknown; all others are
// signalled Valid. Returns the number of monitors affected.
func (d *Dispatcher) Relink(exprs []ir.ExpressionKey, removed bool) int {
	if len(exprs) == 0 || len(d.monitors) == 0 {
		return 0
	}
	targets := make(map[ir.ExpressionKey]struct{}, len(exprs))
	for _, expr := range exprs {
		targets[expr] = struct{}{}
	}

	affected := 0
	for _, expr := range slices.Sorted(maps.Keys(d.monitors)) {
		_, direct := targets[expr]
		if !direct && !d.references(expr, targets, make(map[ir.ExpressionKey]struct{})) {
			continue
		}
		m := d.monitors[expr]
		m.notify(!(direct && removed))
		m.flush = false
		if !slices.Contains(d.unlinked, expr) {
			d.unlinked = append(d.unlinked, expr)
		}
		m.registered = false
		affected++
	}
	if affected > 0 {
		slog.Debug("monitors relinked", "expressions", len(exprs), "monitors", affected, "removed", removed)
	}
	return affected
}

// references reports whether expr's compound elements reach any of targets.
func (d *Dispatcher) references(expr ir.ExpressionKey, targets, visited map[ir.ExpressionKey]struct{}) bool {
	if _, done := visited[expr]; done {
		return false
	}
	visited[expr] = struct{}{}
	elements, ok := d.evaluator.Compounds(expr)
	if !ok {
		return false
	}
	for _, el := range elements {
		if _, hit := targets[el.Expression]; hit {
			return true
		}
		if d.references(el.Expression, targets, visited) {
			return true
		}
	}
	return false
}

// NotifyTransition signals the monitors of exprs that a watched status
// changed (existed=true) or disappeared (existed=false). Unwatched
// expressions are ignored.
func (d *Dispatcher) NotifyTransition(exprs []ir.ExpressionKey, existed bool) {
	for _, expr := range exprs {
		if m := d.monitors[expr]; m != nil {
			m.notify(existed)
		}
	}
}

// Collect runs the evaluate-and-cache phase and returns the number of
// monitors evaluated. Entries accumulate until Drain.
func (d *Dispatcher) Collect(a Archive) int {
	d.pruned = 0
	d.link(a)
	d.detect(a)

	evaluated := 0
	for _, expr := range slices.Sorted(maps.Keys(d.monitors)) {
		m := d.monitors[expr]
		if !m.dirty() {
			continue
		}

		now := ir.Unknown
		if m.pending != signalInvalid {
			now = d.evaluator.Evaluate(expr, a)
		}
		m.pending = signalNone
		evaluated++
		d.metrics.evaluated(now)

		// A flushed monitor that re-evaluates to its last result does not
		// dispatch again, unlike a flush that resets TRUE to FALSE first.
		if now == m.last {
			continue
		}
		last := m.last
		m.last = now
		slog.Debug("expression transition", "expression", expr, "now", now, "last", last)

		d.scan(expr, m, now, last)
	}
	return evaluated
}

// scan caches m's matching handlers and removes m if none survive.
func (d *Dispatcher) scan(expr ir.ExpressionKey, m *monitor, now, last ir.Ternary) {
	pruned := m.prune(d.registry)
	d.pruned += pruned
	d.metrics.prunedHandlers(pruned)
	for _, h := range m.handlers {
		if h.condition.Matches(now, last) {
			d.cache = append(d.cache, CacheEntry{
				Handle:     h.handle,
				Expression: expr,
				Priority:   h.priority,
				Now:        now,
				Last:       last,
			})
		}
	}
	if len(m.handlers) == 0 {
		delete(d.monitors, expr)
		d.metrics.setMonitors(len(d.monitors))
		slog.Debug("monitor removed", "expression", expr)
	}
}

// link registers newly created monitors with the status index. A monitor
// whose expression is not registered yet stays unlinked and is retried on
// the next tick.
func (d *Dispatcher) link(a Archive) {
	if len(d.unlinked) == 0 {
		return
	}
	var retry []ir.ExpressionKey
	for _, expr := range d.unlinked {
		m := d.monitors[expr]
		if m == nil || m.registered {
			continue
		}
		keys, err := d.evaluator.Statuses(expr)
		if err != nil {
			retry = append(retry, expr)
			continue
		}
		for _, key := range keys {
			s := d.statuses[key]
			if s == nil {
				s = &statusMonitor{existed: a.Transition(key) != archive.Missing}
				d.statuses[key] = s
			}
			s.link(expr)
		}
		if stability, err := d.evaluator.Stability(expr); err == nil {
			m.flush = stability == expression.Volatile
		}
		m.registered = true
	}
	d.unlinked = retry
}

// detect converts archive change flags into monitor signals. Status monitors
// are visited in key order, and links to removed monitors are dropped.
func (d *Dispatcher) detect(a Archive) {
	for _, key := range slices.Sorted(maps.Keys(d.statuses)) {
		s := d.statuses[key]
		s.expressions = slices.DeleteFunc(s.expressions, func(expr ir.ExpressionKey) bool {
			return d.monitors[expr] == nil
		})
		if len(s.expressions) == 0 {
			delete(d.statuses, key)
			continue
		}

		t := a.Transition(key)
		exists := t != archive.Missing
		switch {
		case exists != s.existed:
			s.existed = exists
			d.NotifyTransition(s.expressions, exists)
		case t == archive.Changed:
			d.NotifyTransition(s.expressions, true)
		}
	}
}

// Drain invokes the cached behaviors in ascending priority order and returns
// the entries that were invoked. Ties keep collection order. A handle
// revoked after caching is skipped.
func (d *Dispatcher) Drain() ([]CacheEntry, error) {
	if d.dispatching {
		return nil, ErrReentrantDispatch
	}
	d.dispatching = true
	defer func() { d.dispatching = false }()

	entries := d.cache
	d.cache = nil
	slices.SortStableFunc(entries, func(x, y CacheEntry) int { return cmp.Compare(x.Priority, y.Priority) })

	invoked := entries[:0]
	for _, entry := range entries {
		fn, ok := d.registry.Resolve(entry.Handle)
		if !ok {
			continue
		}
		fn(entry.Expression, entry.Now, entry.Last)
		invoked = append(invoked, entry)
	}
	d.metrics.dispatched(len(invoked))
	return invoked, nil
}

// Dispatch runs one full tick: Collect, reset the archive's change flags,
// then Drain.
func (d *Dispatcher) Dispatch(a Archive) ([]CacheEntry, error) {
	if d.dispatching {
		return nil, ErrReentrantDispatch
	}
	d.Collect(a)
	a.ResetTransitions()
	return d.Drain()
}

// Prune removes dead handlers from every monitor and drops monitors left
// without handlers. Returns the number of handlers removed.
func (d *Dispatcher) Prune() int {
	pruned := 0
	for expr, m := range d.monitors {
		pruned += m.prune(d.registry)
		if len(m.handlers) == 0 {
			delete(d.monitors, expr)
		}
	}
	d.metrics.prunedHandlers(pruned)
	d.metrics.setMonitors(len(d.monitors))
	return pruned
}

// Pruned returns the number of dead handlers dropped by the last Collect.
func (d *Dispatcher) Pruned() int {
	return d.pruned
}

// Pending returns the number of cached entries waiting for Drain.
func (d *Dispatcher) Pending() int {
	return len(d.cache)
}

// Monitors returns the number of active monitors.
func (d *Dispatcher) Monitors() int {
	return len(d.monitors)
}

// Last returns the stored last evaluation of expr's monitor.
func (d *Dispatcher) Last(expr ir.ExpressionKey) (ir.Ternary, bool) {
	m := d.monitors[expr]
	if m == nil {
		return ir.Unknown, false
	}
	return m.last, true
}

// Handlers returns the number of subscriptions on expr's monitor.
func (d *Dispatcher) Handlers(expr ir.ExpressionKey) int {
	if m := d.monitors[expr]; m != nil {
		return len(m.handlers)
	}
	return 0
}
