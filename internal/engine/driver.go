package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/ifthen/internal/archive"
	"github.com/roach88/ifthen/internal/expression"
	"github.com/roach88/ifthen/internal/ir"
	"github.com/roach88/ifthen/internal/mutation"
)

// Tick summarizes one Progress call.
type Tick struct {
	// Seq is the tick's logical clock value.
	Seq int64

	// Entries are the behaviors invoked, in invocation order.
	Entries []CacheEntry

	// Evaluated is the number of monitors re-evaluated.
	Evaluated int

	// Pruned is the number of dead handlers dropped during the scan.
	Pruned int
}

// Driver owns every layer of the engine and advances it one tick at a time.
//
// Each Progress call:
//  1. Flushes the modifier's queued status assignments into the archive
//  2. Collects transitions (Dispatcher.Collect)
//  3. Resets the archive's change flags
//  4. Drains the cache, invoking behaviors in priority order
//
// Behaviors registered from a ChunkSpec queue their assignments on the
// modifier, so their writes are applied at the start of the next tick.
//
// Thread-safety: Driver is NOT safe for concurrent use. Only the Registry may
// be shared with other goroutines.
type Driver struct {
	archive    *archive.Archive
	modifier   *mutation.Modifier
	evaluator  *expression.Evaluator
	registry   *Registry
	dispatcher *Dispatcher
	clock      *Clock
	metrics    *Metrics
	names      *Names

	// Behavior handles owned by each chunk, revoked by RemoveChunk.
	handles map[ir.ChunkKey][]Handle

	maxDepth int
	reserve  int
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithMaxDepth sets the evaluator's compound recursion guard.
//
// Default: 64 (expression.DefaultMaxDepth).
func WithMaxDepth(depth int) DriverOption {
	return func(d *Driver) {
		d.maxDepth = depth
	}
}

// WithReserve pre-sizes the archive for n statuses.
func WithReserve(n int) DriverOption {
	return func(d *Driver) {
		d.reserve = n
	}
}

// WithMetrics records dispatcher activity in m.
func WithMetrics(m *Metrics) DriverOption {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithClock uses c for tick numbering. Used to resume a recorded run.
func WithClock(c *Clock) DriverOption {
	return func(d *Driver) {
		d.clock = c
	}
}

// NewDriver creates an empty Driver.
func NewDriver(opts ...DriverOption) *Driver {
	d := &Driver{
		clock:    NewClock(),
		names:    newNames(),
		handles:  make(map[ir.ChunkKey][]Handle),
		maxDepth: expression.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.archive = archive.New(archive.WithReserve(d.reserve))
	d.modifier = mutation.NewModifier()
	d.evaluator = expression.New(expression.WithMaxDepth(d.maxDepth))
	d.registry = NewRegistry()
	d.dispatcher = NewDispatcher(d.evaluator, d.registry, d.metrics)
	return d
}

// Archive returns the status archive.
func (d *Driver) Archive() *archive.Archive { return d.archive }

// Evaluator returns the expression store.
func (d *Driver) Evaluator() *expression.Evaluator { return d.evaluator }

// Dispatcher returns the dispatcher.
func (d *Driver) Dispatcher() *Dispatcher { return d.dispatcher }

// Registry returns the behavior registry.
func (d *Driver) Registry() *Registry { return d.registry }

// Modifier returns the deferred status modifier.
func (d *Driver) Modifier() *mutation.Modifier { return d.modifier }

// Names returns the key→name map populated by ExtendChunk.
func (d *Driver) Names() *Names { return d.names }

// Clock returns the tick clock.
func (d *Driver) Clock() *Clock { return d.clock }

// Accumulate queues op for the next tick.
func (d *Driver) Accumulate(op mutation.Operation, delay mutation.Delay) int {
	return d.modifier.Accumulate(op, delay)
}

// ExtendChunk registers spec's statuses, then its expressions in authored
// order, then its behaviors. Items that fail are reported together; items
// that succeed stay registered.
func (d *Driver) ExtendChunk(spec ChunkSpec) error {
	chunk := spec.ChunkKey()
	d.names.setChunk(chunk, spec.Name)

	var errs []error
	var registered []ir.ExpressionKey
	for _, s := range spec.Statuses {
		key := s.StatusKey()
		if err := d.archive.Insert(chunk, key, s.Format, s.Value); err != nil {
			errs = append(errs, newRegistrationError(nameOr(s.Name, uint64(key)), err))
			continue
		}
		d.names.setStatus(key, s.Name)
	}

	for _, x := range spec.Expressions {
		key := x.ExpressionKey()
		if err := d.registerExpression(chunk, key, x); err != nil {
			errs = append(errs, newRegistrationError(nameOr(x.Name, uint64(key)), err))
			continue
		}
		d.names.setExpression(key, x.Name)
		registered = append(registered, key)
	}
	d.dispatcher.Relink(registered, false)

	for _, b := range spec.Behaviors {
		if _, err := d.registerAssignment(chunk, b); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		slog.Debug("chunk registered with errors", "chunk", d.names.Chunk(chunk), "errors", len(errs))
	}
	return errors.Join(errs...)
}

func (d *Driver) registerExpression(chunk ir.ChunkKey, key ir.ExpressionKey, x ExpressionSpec) error {
	if x.Kind == expression.KindCompound {
		_, err := d.evaluator.RegisterCompound(chunk, key, x.Logic, x.Compounds)
		return err
	}
	return d.evaluator.RegisterComparison(chunk, key, x.Logic, x.Comparisons)
}

// registerAssignment registers a STATUS_ASSIGNMENT behavior.
func (d *Driver) registerAssignment(chunk ir.ChunkKey, b BehaviorSpec) (Handle, error) {
	name := nameOr(b.Name, uint64(b.Expression))
	if len(b.Operations) == 0 {
		return Handle{}, &RegistrationError{
			Code:    ErrCodeEmptyElements,
			Message: "behavior has no operations",
			Key:     name,
		}
	}
	ops := append([]mutation.Operation(nil), b.Operations...)
	delay := b.Delay
	fn := func(ir.ExpressionKey, ir.Ternary, ir.Ternary) {
		for i, op := range ops {
			dl := mutation.Follow
			if i == 0 {
				dl = delay
			}
			d.modifier.Accumulate(op, dl)
		}
	}
	h, err := d.RegisterBehavior(chunk, b.Expression, b.Condition, b.Priority, fn)
	if err != nil {
		var re *RegistrationError
		if errors.As(err, &re) && re.Key != name {
			re.Key = name
		}
		return Handle{}, err
	}
	return h, nil
}

// RegisterBehavior registers fn on expr and records chunk as its owner.
// On failure nothing stays registered.
func (d *Driver) RegisterBehavior(chunk ir.ChunkKey, expr ir.ExpressionKey, condition Condition, priority int32, fn Behavior) (Handle, error) {
	h, err := d.registry.Add(fn)
	if err != nil {
		return Handle{}, newRegistrationError(d.names.Expression(expr), err)
	}
	if err := d.dispatcher.RegisterHandler(expr, condition, h, priority); err != nil {
		d.registry.Revoke(h)
		return Handle{}, err
	}
	d.handles[chunk] = append(d.handles[chunk], h)
	return h, nil
}

// RemoveChunk tears a chunk down across every layer: its behaviors are
// revoked, its expressions and statuses are removed and the dispatcher is
// pruned. Returns false if nothing was registered under chunk.
func (d *Driver) RemoveChunk(chunk ir.ChunkKey) bool {
	found := false

	if handles, ok := d.handles[chunk]; ok {
		for _, h := range handles {
			d.registry.Revoke(h)
		}
		delete(d.handles, chunk)
		found = true
	}

	var removed []ir.ExpressionKey
	for _, key := range d.evaluator.Keys() {
		if x, ok := d.evaluator.Lookup(key); ok && x.Chunk == chunk {
			delete(d.names.expressions, key)
			removed = append(removed, key)
		}
	}
	if d.evaluator.RemoveChunk(chunk) > 0 {
		found = true
	}
	d.dispatcher.Relink(removed, true)

	for _, key := range d.archive.Keys() {
		if c, ok := d.archive.Chunk(key); ok && c == chunk {
			if err := d.archive.Remove(key); err == nil {
				found = true
			}
			delete(d.names.statuses, key)
		}
	}
	if d.archive.RemoveChunk(chunk) {
		found = true
	}

	pruned := d.dispatcher.Prune()
	delete(d.names.chunks, chunk)
	slog.Debug("chunk removed", "chunk", chunk, "found", found, "pruned", pruned)
	return found
}

// Progress runs one tick. Failed queued assignments are logged and skipped;
// the only error returned is ErrReentrantDispatch.
func (d *Driver) Progress() (Tick, error) {
	if d.dispatcher.dispatching {
		return Tick{}, ErrReentrantDispatch
	}
	seq := d.clock.Next()

	if err := d.modifier.Flush(d.archive); err != nil {
		slog.Warn("status assignments failed", "tick", seq, "error", err)
	}

	evaluated := d.dispatcher.Collect(d.archive)
	pruned := d.dispatcher.Pruned()
	d.archive.ResetTransitions()

	entries, err := d.dispatcher.Drain()
	if err != nil {
		return Tick{}, fmt.Errorf("tick %d: %w", seq, err)
	}
	d.metrics.tick()

	slog.Debug("tick", "seq", seq, "evaluated", evaluated, "dispatched", len(entries), "pruned", pruned)
	return Tick{
		Seq:       seq,
		Entries:   entries,
		Evaluated: evaluated,
		Pruned:    pruned,
	}, nil
}

func nameOr(name string, key uint64) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%d", key)
}
