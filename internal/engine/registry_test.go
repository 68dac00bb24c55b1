package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifthen/internal/ir"
)

func noop(ir.ExpressionKey, ir.Ternary, ir.Ternary) {}

func TestRegistry_AddResolveRevoke(t *testing.T) {
	r := NewRegistry()

	h, err := r.Add(noop)
	require.NoError(t, err)
	assert.False(t, h.IsZero())
	assert.True(t, r.Live(h))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Revoke(h))
	assert.False(t, r.Live(h))
	assert.False(t, r.Revoke(h), "revoke is idempotent")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RejectsNil(t *testing.T) {
	_, err := NewRegistry().Add(nil)
	assert.ErrorIs(t, err, ErrNilBehavior)
}

func TestRegistry_ZeroHandleNeverResolves(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add(noop)
	require.NoError(t, err)

	_, ok := r.Resolve(Handle{})
	assert.False(t, ok)
	assert.False(t, r.Revoke(Handle{}))
}

func TestRegistry_ReusedSlotDoesNotResurrect(t *testing.T) {
	r := NewRegistry()
	calls := 0

	old, err := r.Add(noop)
	require.NoError(t, err)
	require.True(t, r.Revoke(old))

	fresh, err := r.Add(func(ir.ExpressionKey, ir.Ternary, ir.Ternary) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, old.index, fresh.index, "slot is reused")
	assert.NotEqual(t, old, fresh)

	_, ok := r.Resolve(old)
	assert.False(t, ok, "stale handle must not resolve to the new behavior")

	fn, ok := r.Resolve(fresh)
	require.True(t, ok)
	fn(1, ir.True, ir.False)
	assert.Equal(t, 1, calls)
}

func TestRegistry_ConcurrentRevoke(t *testing.T) {
	r := NewRegistry()
	const n = 200

	handles := make([]Handle, n)
	for i := range handles {
		h, err := r.Add(noop)
		require.NoError(t, err)
		handles[i] = h
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Revoke(h)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
	for _, h := range handles {
		assert.False(t, r.Live(h))
	}
}
