package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifthen/internal/archive"
	"github.com/roach88/ifthen/internal/expression"
	"github.com/roach88/ifthen/internal/ir"
)

const (
	testChunk ir.ChunkKey      = 1
	statusK1  ir.StatusKey     = 11
	statusK2  ir.StatusKey     = 12
	exprE1    ir.ExpressionKey = 101
	exprE2    ir.ExpressionKey = 102
	exprE3    ir.ExpressionKey = 103
)

// fixture wires an archive, evaluator, registry and dispatcher with
// E1 = (K1 > 7) and K1 = 5.
type fixture struct {
	archive    *archive.Archive
	evaluator  *expression.Evaluator
	registry   *Registry
	dispatcher *Dispatcher
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		archive:   archive.New(),
		evaluator: expression.New(),
		registry:  NewRegistry(),
	}
	f.dispatcher = NewDispatcher(f.evaluator, f.registry, nil)

	require.NoError(t, f.archive.Insert(testChunk, statusK1, ir.Unsigned(8), ir.UnsignedValue(5)))
	require.NoError(t, f.evaluator.RegisterComparison(testChunk, exprE1, ir.And, []expression.Comparison{
		{Status: statusK1, Operator: ir.Greater, Value: ir.UnsignedValue(7)},
	}))
	return f
}

// recorder collects invocations in order.
type recorder struct {
	calls []string
}

func (r *recorder) behavior(name string) Behavior {
	return func(expr ir.ExpressionKey, now, last ir.Ternary) {
		r.calls = append(r.calls, name+":"+last.String()+"->"+now.String())
	}
}

func (f *fixture) add(t *testing.T, fn Behavior) Handle {
	t.Helper()
	h, err := f.registry.Add(fn)
	require.NoError(t, err)
	return h
}

func (f *fixture) set(t *testing.T, v uint64) {
	t.Helper()
	require.NoError(t, f.archive.Set(statusK1, ir.UnsignedValue(v)))
}

func (f *fixture) tick(t *testing.T) []CacheEntry {
	t.Helper()
	entries, err := f.dispatcher.Dispatch(f.archive)
	require.NoError(t, err)
	return entries
}

var falseToTrue = MakeCondition(UnitFalse, UnitTrue)

func TestDispatcher_FalseToTrueCachesOneEntry(t *testing.T) {
	f := setupFixture(t)
	h := f.add(t, noop)
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, h, 0))

	// First tick evaluates the new monitor: Unknown -> False, no match.
	assert.Empty(t, f.tick(t))
	last, ok := f.dispatcher.Last(exprE1)
	require.True(t, ok)
	assert.Equal(t, ir.False, last)

	f.set(t, 10)
	evaluated := f.dispatcher.Collect(f.archive)
	assert.Equal(t, 1, evaluated)
	assert.Equal(t, []CacheEntry{{Handle: h, Expression: exprE1, Priority: 0, Now: ir.True, Last: ir.False}}, f.dispatcher.cache)
}

func TestDispatcher_PriorityOrder(t *testing.T) {
	f := setupFixture(t)
	rec := &recorder{}
	h5 := f.add(t, rec.behavior("p5"))
	h1 := f.add(t, rec.behavior("p1"))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, h5, 5))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, h1, 1))
	f.tick(t)

	f.set(t, 10)
	entries := f.tick(t)

	require.Len(t, entries, 2)
	assert.Equal(t, h1, entries[0].Handle)
	assert.Equal(t, h5, entries[1].Handle)
	assert.Equal(t, []string{"p1:FALSE->TRUE", "p5:FALSE->TRUE"}, rec.calls)
}

func TestDispatcher_EqualPriorityKeepsRegistrationOrder(t *testing.T) {
	f := setupFixture(t)
	rec := &recorder{}
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, f.add(t, rec.behavior(name)), 3))
	}
	f.tick(t)
	f.set(t, 9)
	f.tick(t)

	assert.Equal(t, []string{"a:FALSE->TRUE", "b:FALSE->TRUE", "c:FALSE->TRUE"}, rec.calls)
}

func TestDispatcher_AtMostOncePerTransition(t *testing.T) {
	f := setupFixture(t)
	rec := &recorder{}
	h := f.add(t, rec.behavior("h"))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, MakeCondition(UnitAny, UnitAny), h, 0))
	f.tick(t)
	rec.calls = nil

	// Several writes in one tick, plus an explicit notification.
	f.set(t, 8)
	f.set(t, 9)
	f.set(t, 10)
	f.dispatcher.NotifyTransition([]ir.ExpressionKey{exprE1}, true)
	entries := f.tick(t)

	assert.Len(t, entries, 1)
	assert.Equal(t, []string{"h:FALSE->TRUE"}, rec.calls)

	// No change, no dispatch.
	assert.Empty(t, f.tick(t))

	// A write that keeps the result does not dispatch.
	f.set(t, 11)
	assert.Empty(t, f.tick(t))
}

func TestDispatcher_DeadHandlerPrunedAndMonitorRemoved(t *testing.T) {
	f := setupFixture(t)
	rec := &recorder{}
	h := f.add(t, rec.behavior("h"))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, h, 0))
	f.tick(t)
	require.Equal(t, 1, f.dispatcher.Monitors())

	require.True(t, f.registry.Revoke(h))
	f.set(t, 10)
	entries := f.tick(t)

	assert.Empty(t, entries)
	assert.Empty(t, rec.calls, "revoked behavior must not run")
	assert.Equal(t, 1, f.dispatcher.Pruned())
	assert.Equal(t, 0, f.dispatcher.Monitors(), "empty monitor is removed")
}

func TestDispatcher_RevokedBetweenCollectAndDrain(t *testing.T) {
	f := setupFixture(t)
	rec := &recorder{}
	h := f.add(t, rec.behavior("h"))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, h, 0))
	f.tick(t)

	f.set(t, 10)
	f.dispatcher.Collect(f.archive)
	require.Equal(t, 1, f.dispatcher.Pending())
	f.registry.Revoke(h)

	entries, err := f.dispatcher.Drain()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, rec.calls)
}

func TestDispatcher_StatusRemovedForcesUnknown(t *testing.T) {
	f := setupFixture(t)
	rec := &recorder{}
	h := f.add(t, rec.behavior("h"))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, MakeCondition(UnitNotNull, UnitNull), h, 0))
	f.set(t, 10)
	f.tick(t)

	require.NoError(t, f.archive.Remove(statusK1))
	f.tick(t)
	assert.Equal(t, []string{"h:TRUE->NULL"}, rec.calls)

	// The status comes back: Valid signal, re-evaluated.
	require.NoError(t, f.archive.Insert(testChunk, statusK1, ir.Unsigned(8), ir.UnsignedValue(1)))
	f.tick(t)
	last, _ := f.dispatcher.Last(exprE1)
	assert.Equal(t, ir.False, last)
}

func TestDispatcher_RegisterHandlerRejects(t *testing.T) {
	f := setupFixture(t)
	h := f.add(t, noop)

	err := f.dispatcher.RegisterHandler(exprE1, 0, h, 0)
	assert.True(t, IsRegistrationError(err, ErrCodeInvalidCondition))
	assert.Equal(t, 0, f.dispatcher.Monitors(), "rejected registration creates no monitor")

	dead := f.add(t, noop)
	f.registry.Revoke(dead)
	err = f.dispatcher.RegisterHandler(exprE1, falseToTrue, dead, 0)
	assert.True(t, IsRegistrationError(err, ErrCodeDeadHandler))

	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, h, 0))
	err = f.dispatcher.RegisterHandler(exprE1, MakeCondition(UnitAny, UnitAny), h, 2)
	assert.True(t, IsRegistrationError(err, ErrCodeDuplicateHandler))
	assert.Equal(t, 1, f.dispatcher.Handlers(exprE1))
}

func TestDispatcher_DuplicateScanPrunesDead(t *testing.T) {
	f := setupFixture(t)
	dead := f.add(t, noop)
	live := f.add(t, noop)
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, dead, 0))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, live, 0))
	f.registry.Revoke(dead)

	err := f.dispatcher.RegisterHandler(exprE1, falseToTrue, live, 0)
	assert.True(t, IsRegistrationError(err, ErrCodeDuplicateHandler))
	assert.Equal(t, 1, f.dispatcher.Handlers(exprE1), "dead entry pruned during the scan")
}

func TestDispatcher_Unregister(t *testing.T) {
	f := setupFixture(t)
	require.NoError(t, f.evaluator.RegisterComparison(testChunk, exprE2, ir.And, []expression.Comparison{
		{Status: statusK1, Operator: ir.Less, Value: ir.UnsignedValue(3)},
	}))
	h := f.add(t, noop)
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, h, 0))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE2, falseToTrue, h, 0))

	assert.True(t, f.dispatcher.UnregisterExpressionHandler(exprE2, h))
	assert.False(t, f.dispatcher.UnregisterExpressionHandler(exprE2, h))
	assert.Equal(t, 1, f.dispatcher.UnregisterHandler(h))
	assert.Equal(t, 0, f.dispatcher.UnregisterHandler(h), "idempotent")

	assert.Equal(t, 2, f.dispatcher.Monitors(), "monitors go at the next scan or prune")
	f.dispatcher.Prune()
	assert.Equal(t, 0, f.dispatcher.Monitors())
}

func TestDispatcher_ReentrantDispatch(t *testing.T) {
	f := setupFixture(t)
	var inner error
	h := f.add(t, func(ir.ExpressionKey, ir.Ternary, ir.Ternary) {
		_, inner = f.dispatcher.Dispatch(f.archive)
	})
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, h, 0))
	f.tick(t)
	f.set(t, 10)
	f.tick(t)

	assert.ErrorIs(t, inner, ErrReentrantDispatch)

	// The dispatcher recovers for the next tick.
	_, err := f.dispatcher.Dispatch(f.archive)
	assert.NoError(t, err)
}

func TestDispatcher_WritesFromBehaviorSeenNextTick(t *testing.T) {
	f := setupFixture(t)
	require.NoError(t, f.archive.Insert(testChunk, statusK2, ir.FormatBool, ir.BoolValue(false)))
	require.NoError(t, f.evaluator.RegisterComparison(testChunk, exprE2, ir.And, []expression.Comparison{
		{Status: statusK2, Operator: ir.Equal, Value: ir.BoolValue(true)},
	}))

	rec := &recorder{}
	writer := f.add(t, func(ir.ExpressionKey, ir.Ternary, ir.Ternary) {
		require.NoError(t, f.archive.Set(statusK2, ir.BoolValue(true)))
	})
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, writer, 0))
	require.NoError(t, f.dispatcher.RegisterHandler(exprE2, falseToTrue, f.add(t, rec.behavior("e2")), 0))
	f.tick(t)

	f.set(t, 10)
	entries := f.tick(t)
	require.Len(t, entries, 1)
	assert.Empty(t, rec.calls, "the write happened during drain")

	entries = f.tick(t)
	require.Len(t, entries, 1)
	assert.Equal(t, exprE2, entries[0].Expression)
	assert.Equal(t, []string{"e2:FALSE->TRUE"}, rec.calls)
}

func TestDispatcher_VolatileMonitorReevaluatedEveryTick(t *testing.T) {
	f := setupFixture(t)
	_, err := f.evaluator.RegisterCompound(testChunk, exprE2, ir.And, []expression.Compound{{Expression: exprE1, Expected: true}})
	require.NoError(t, err)
	stability, err := f.evaluator.RegisterCompound(testChunk, exprE3, ir.And, []expression.Compound{{Expression: exprE2, Expected: true}})
	require.NoError(t, err)
	require.Equal(t, expression.Volatile, stability)

	rec := &recorder{}
	require.NoError(t, f.dispatcher.RegisterHandler(exprE3, MakeCondition(UnitAny, UnitAny), f.add(t, rec.behavior("e3")), 0))
	f.tick(t)
	assert.Equal(t, []string{"e3:NULL->FALSE"}, rec.calls)

	// Quiet ticks still evaluate the volatile monitor but do not dispatch.
	for range 3 {
		assert.Equal(t, 1, f.dispatcher.Collect(f.archive))
		f.archive.ResetTransitions()
		entries, err := f.dispatcher.Drain()
		require.NoError(t, err)
		assert.Empty(t, entries)
	}

	f.set(t, 10)
	f.tick(t)
	assert.Equal(t, []string{"e3:NULL->FALSE", "e3:FALSE->TRUE"}, rec.calls)

	// Staying TRUE is not a new transition.
	f.tick(t)
	f.tick(t)
	assert.Equal(t, []string{"e3:NULL->FALSE", "e3:FALSE->TRUE"}, rec.calls)
}

func TestDispatcher_StableMonitorSkippedWhenQuiet(t *testing.T) {
	f := setupFixture(t)
	require.NoError(t, f.dispatcher.RegisterHandler(exprE1, falseToTrue, f.add(t, noop), 0))
	assert.Equal(t, 1, f.dispatcher.Collect(f.archive))
	f.archive.ResetTransitions()
	assert.Equal(t, 0, f.dispatcher.Collect(f.archive))
}

func TestDispatcher_LinkRetriedUntilExpressionRegistered(t *testing.T) {
	f := setupFixture(t)
	rec := &recorder{}
	require.NoError(t, f.dispatcher.RegisterHandler(exprE2, MakeCondition(UnitAny, UnitTrue), f.add(t, rec.behavior("e2")), 0))
	f.tick(t)
	assert.Empty(t, rec.calls, "unregistered expression evaluates to Unknown")

	require.NoError(t, f.evaluator.RegisterComparison(testChunk, exprE2, ir.And, []expression.Comparison{
		{Status: statusK1, Operator: ir.GreaterEqual, Value: ir.UnsignedValue(6)},
	}))
	f.tick(t)
	assert.Empty(t, rec.calls, "no signal yet")

	f.set(t, 6)
	f.tick(t)
	assert.Equal(t, []string{"e2:NULL->TRUE"}, rec.calls)
}

func TestDispatcher_Watch(t *testing.T) {
	f := setupFixture(t)
	assert.True(t, f.dispatcher.Watch(exprE1))
	assert.False(t, f.dispatcher.Watch(exprE1))
	assert.Equal(t, 1, f.dispatcher.Monitors())

	// The first transition scan finds no handlers and removes the monitor.
	f.tick(t)
	assert.Equal(t, 0, f.dispatcher.Monitors())
}
