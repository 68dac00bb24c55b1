package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/ifthen/internal/authoring"
	"github.com/roach88/ifthen/internal/engine"
	"github.com/roach88/ifthen/internal/ir"
	"github.com/roach88/ifthen/internal/mutation"
	"github.com/roach88/ifthen/internal/store"
)

// Harness executes scenarios against a real engine.Driver.
// Each Run builds a fresh driver, so scenarios never share state.
type Harness struct {
	store      *store.Store
	runIDs     engine.RunIDGenerator
	driverOpts []engine.DriverOption
	logger     *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithStore records every run, tick, dispatch and status snapshot to st.
func WithStore(st *store.Store) Option {
	return func(h *Harness) {
		h.store = st
	}
}

// WithRunIDGenerator sets the run ID source used when recording.
//
// Default: engine.UUIDv7Generator.
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(h *Harness) {
		h.runIDs = g
	}
}

// WithDriverOptions passes options to every driver the harness creates.
func WithDriverOptions(opts ...engine.DriverOption) Option {
	return func(h *Harness) {
		h.driverOpts = append(h.driverOpts, opts...)
	}
}

// WithLogger sets the harness logger.
//
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		runIDs: engine.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	return New(opts...).Run(ctx, scenario)
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Load every bundle and register its chunks into a fresh driver
//  2. For each step, queue its status writes and run its ticks
//  3. Compare each step's dispatches against its expect clause
//  4. Evaluate assertions against the trace and final statuses
//
// Failed expectations and assertions are reported in Result.Errors. An error
// is returned only if the scenario could not be executed: a bundle failed to
// load or register, a step wrote an unknown status, the store failed, or ctx
// was cancelled between ticks.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	d := engine.NewDriver(h.driverOpts...)
	if err := h.load(d, scenario.Bundles); err != nil {
		return nil, err
	}

	result := NewResult()
	if h.store != nil {
		result.RunID = h.runIDs.Generate()
		run := ir.RunRecord{
			ID:            result.RunID,
			Scenario:      scenario.Name,
			EngineVersion: ir.EngineVersion,
			TraceVersion:  ir.TraceVersion,
		}
		if err := h.store.WriteRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	for i, step := range scenario.Steps {
		if err := h.queue(d, step); err != nil {
			return nil, fmt.Errorf("%s: %w", step.label(i), err)
		}

		var produced []DispatchEvent
		for range step.ticks() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tick, err := d.Progress()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", step.label(i), err)
			}
			event := tickEvent(d, i, tick)
			if err := h.record(ctx, d, result.RunID, event); err != nil {
				return nil, err
			}
			result.AddTick(event)
			produced = append(produced, event.Dispatches...)
		}

		if step.Expect != nil {
			if err := assertStepDispatches(step.label(i), produced, step.Expect.Dispatches); err != nil {
				result.AddError(err.Error())
			}
		}
		h.logger.Debug("step completed",
			"scenario", scenario.Name,
			"step", i,
			"ticks", step.ticks(),
			"dispatches", len(produced),
		)
	}

	result.Statuses = snapshot(d)
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, d.Archive()) {
		result.AddError(msg)
	}
	return result, nil
}

// load registers every chunk of every bundle.
func (h *Harness) load(d *engine.Driver, bundles []string) error {
	for _, dir := range bundles {
		bundle, errs := authoring.LoadBundle(dir, authoring.LoadModeCollectAll)
		if len(errs) > 0 {
			return fmt.Errorf("failed to load bundle %s: %w", dir, errors.Join(errs...))
		}
		for _, chunk := range bundle.Chunks {
			if err := d.ExtendChunk(chunk); err != nil {
				return fmt.Errorf("failed to register chunk %s: %w", chunk.Name, err)
			}
		}
	}
	return nil
}

// queue accumulates a step's status writes as Copy operations, in status
// name order.
func (h *Harness) queue(d *engine.Driver, step Step) error {
	for _, name := range slices.Sorted(maps.Keys(step.Set)) {
		key := ir.StatusKeyOf(name)
		if _, ok := d.Archive().Format(key); !ok {
			return fmt.Errorf("set %s: unknown status", name)
		}
		value, err := toValue(step.Set[name])
		if err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		op, err := mutation.NewOperation(key, ir.OpCopy, mutation.Constant(value))
		if err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		d.Accumulate(op, mutation.Nonblock)
	}
	return nil
}

// record writes one tick to the store, if recording.
func (h *Harness) record(ctx context.Context, d *engine.Driver, runID string, event TickEvent) error {
	if h.store == nil {
		return nil
	}
	tick := ir.TickRecord{
		RunID:      runID,
		Seq:        event.Seq,
		Evaluated:  event.Evaluated,
		Dispatched: len(event.Dispatches),
		Pruned:     event.Pruned,
	}
	dispatches := make([]ir.DispatchRecord, len(event.Dispatches))
	for i, e := range event.Dispatches {
		dispatches[i] = ir.DispatchRecord{
			RunID:          runID,
			Seq:            e.Seq,
			Ordinal:        e.Ordinal,
			ExpressionKey:  ir.ExpressionKeyOf(e.Expression),
			ExpressionName: e.Expression,
			Priority:       e.Priority,
			Now:            e.Now,
			Last:           e.Last,
		}
	}
	var statuses []ir.StatusSnapshot
	for _, key := range slices.Sorted(slices.Values(d.Archive().Keys())) {
		value, _ := d.Archive().Get(key)
		format, _ := d.Archive().Format(key)
		statuses = append(statuses, ir.StatusSnapshot{
			RunID:  runID,
			Seq:    event.Seq,
			Key:    key,
			Name:   d.Names().Status(key),
			Format: format.String(),
			Value:  value.String(),
		})
	}
	if err := h.store.RecordTick(ctx, tick, dispatches, statuses); err != nil {
		return fmt.Errorf("failed to record tick %d: %w", event.Seq, err)
	}
	return nil
}

// tickEvent converts a driver tick into a trace event with expression names.
func tickEvent(d *engine.Driver, step int, tick engine.Tick) TickEvent {
	event := TickEvent{
		Seq:        tick.Seq,
		Step:       step,
		Evaluated:  tick.Evaluated,
		Pruned:     tick.Pruned,
		Dispatches: make([]DispatchEvent, len(tick.Entries)),
	}
	for i, e := range tick.Entries {
		event.Dispatches[i] = DispatchEvent{
			Seq:        tick.Seq,
			Ordinal:    i,
			Expression: d.Names().Expression(e.Expression),
			Priority:   e.Priority,
			Now:        e.Now,
			Last:       e.Last,
		}
	}
	return event
}

// snapshot returns every status value keyed by name.
func snapshot(d *engine.Driver) map[string]string {
	out := make(map[string]string)
	for _, key := range d.Archive().Keys() {
		if v, ok := d.Archive().Get(key); ok {
			out[d.Names().Status(key)] = v.String()
		}
	}
	return out
}

// toValue converts a YAML-decoded value to an ir.Value. Strings accept the
// authoring cell syntax, including HASH:<text>.
func toValue(v any) (ir.Value, error) {
	switch val := v.(type) {
	case nil:
		return ir.Value{}, fmt.Errorf("value is required")
	case bool:
		return ir.BoolValue(val), nil
	case int:
		return intValue(int64(val)), nil
	case int64:
		return intValue(val), nil
	case uint64:
		return ir.UnsignedValue(val), nil
	case float64:
		return ir.FloatValue(val), nil
	case string:
		return authoring.ParseConstant(val)
	default:
		return ir.Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func intValue(i int64) ir.Value {
	if i < 0 {
		return ir.SignedValue(i)
	}
	return ir.UnsignedValue(uint64(i))
}
