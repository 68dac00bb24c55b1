// Package archive implements the status archive: a bit-packed key→value store
// with a best-fit free-list allocator per chunk.
//
// Each chunk owns a slice of 64-bit storage words. A status occupies a
// contiguous bit field inside a single word; fields never span two words, so
// a status is at most 64 bits wide. Released fields go back to the owning
// chunk's free list, ordered by (width, position), and are reused best-fit
// before new words are appended.
//
// Thread-safety: Archive is NOT safe for concurrent use. It is owned by a
// single driving loop; callers that share it must synchronize externally.
package archive

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/ifthen/internal/ir"
)

// Sentinel errors returned (wrapped) by archive operations.
var (
	ErrInvalidKey    = errors.New("invalid status key")
	ErrDuplicateKey  = errors.New("status key already registered")
	ErrUnknownStatus = errors.New("unknown status key")
	ErrInvalidFormat = errors.New("invalid status format")
)

// Transition reports how a status changed since the last ResetTransitions.
type Transition int8

const (
	// Missing means the status is not registered.
	Missing Transition = -1
	// Unchanged means the stored bits did not change.
	Unchanged Transition = 0
	// Changed means the stored bits changed at least once.
	Changed Transition = 1
)

// record is the archive-owned location and format of one status.
type record struct {
	chunk    ir.ChunkKey
	position uint32
	format   ir.Format
	changed  bool
}

func (r *record) field() Field {
	return Field{Position: r.position, Width: uint32(r.format.Width)}
}

// Archive stores status values bit-packed into per-chunk word arrays.
type Archive struct {
	chunks  map[ir.ChunkKey]*chunk
	records map[ir.StatusKey]*record
}

// Option configures an Archive.
type Option func(*Archive)

// WithReserve pre-sizes the record table for n statuses.
func WithReserve(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.records = make(map[ir.StatusKey]*record, n)
		}
	}
}

// New creates an empty Archive.
func New(opts ...Option) *Archive {
	a := &Archive{
		chunks:  make(map[ir.ChunkKey]*chunk),
		records: make(map[ir.StatusKey]*record),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Insert registers a new status in chunk with the given format and initial
// value. The value is converted to the format's kind and must fit its width.
// Nothing is mutated on failure.
func (a *Archive) Insert(chunkKey ir.ChunkKey, key ir.StatusKey, format ir.Format, value ir.Value) error {
	if key == ir.NoKey {
		return fmt.Errorf("insert status: %w", ErrInvalidKey)
	}
	if _, exists := a.records[key]; exists {
		return fmt.Errorf("insert status %d: %w", key, ErrDuplicateKey)
	}
	if !format.Valid() {
		return fmt.Errorf("insert status %d (%v): %w", key, format, ErrInvalidFormat)
	}
	bits, err := encode(format, value)
	if err != nil {
		return fmt.Errorf("insert status %d: %w", key, err)
	}

	c := a.chunks[chunkKey]
	if c == nil {
		c = &chunk{}
		a.chunks[chunkKey] = c
	}
	f := c.allocate(uint32(format.Width))
	c.write(f, bits)

	a.records[key] = &record{
		chunk:    chunkKey,
		position: f.Position,
		format:   format,
	}
	return nil
}

// Get returns the current value of key; ok is false if key is unknown.
func (a *Archive) Get(key ir.StatusKey) (ir.Value, bool) {
	r, c := a.lookup(key)
	if r == nil {
		return ir.Value{}, false
	}
	return decode(r.format, c.read(r.field())), true
}

// Format returns the storage format of key; ok is false if key is unknown.
func (a *Archive) Format(key ir.StatusKey) (ir.Format, bool) {
	r := a.records[key]
	if r == nil {
		return ir.Format{}, false
	}
	return r.format, true
}

// Chunk returns the chunk that owns key; ok is false if key is unknown.
func (a *Archive) Chunk(key ir.StatusKey) (ir.ChunkKey, bool) {
	r := a.records[key]
	if r == nil {
		return 0, false
	}
	return r.chunk, true
}

// Set writes value to key. The value is converted to the record's kind; a
// bool is never written to a numeric status or vice versa. The transition
// flag is raised only if the stored bits actually change.
func (a *Archive) Set(key ir.StatusKey, value ir.Value) error {
	r, c := a.lookup(key)
	if r == nil {
		return fmt.Errorf("set status %d: %w", key, ErrUnknownStatus)
	}
	bits, err := encode(r.format, value)
	if err != nil {
		return fmt.Errorf("set status %d: %w", key, err)
	}
	if c.write(r.field(), bits) {
		r.changed = true
	}
	return nil
}

// Transition reports whether key changed since the last ResetTransitions.
func (a *Archive) Transition(key ir.StatusKey) Transition {
	r := a.records[key]
	switch {
	case r == nil:
		return Missing
	case r.changed:
		return Changed
	default:
		return Unchanged
	}
}

// ResetTransitions clears every status's transition flag.
func (a *Archive) ResetTransitions() {
	for _, r := range a.records {
		r.changed = false
	}
}

// Remove releases key's field back to its chunk's free list. The chunk's
// storage stays allocated until RemoveChunk.
func (a *Archive) Remove(key ir.StatusKey) error {
	r, c := a.lookup(key)
	if r == nil {
		return fmt.Errorf("remove status %d: %w", key, ErrUnknownStatus)
	}
	c.write(r.field(), 0)
	c.release(r.field())
	delete(a.records, key)
	return nil
}

// RemoveChunk drops a chunk's storage and every status it owns.
// Returns false if the chunk does not exist.
func (a *Archive) RemoveChunk(chunkKey ir.ChunkKey) bool {
	if _, ok := a.chunks[chunkKey]; !ok {
		return false
	}
	removed := 0
	for key, r := range a.records {
		if r.chunk == chunkKey {
			delete(a.records, key)
			removed++
		}
	}
	delete(a.chunks, chunkKey)
	slog.Debug("archive chunk removed", "chunk", chunkKey, "statuses", removed)
	return true
}

// Len returns the number of registered statuses.
func (a *Archive) Len() int {
	return len(a.records)
}

// Keys returns every registered status key in ascending order.
func (a *Archive) Keys() []ir.StatusKey {
	return slices.Sorted(maps.Keys(a.records))
}

// Chunks returns every chunk key in ascending order.
func (a *Archive) Chunks() []ir.ChunkKey {
	return slices.Sorted(maps.Keys(a.chunks))
}

// Layout describes a chunk's storage: live fields, free fields and the total
// number of allocated bits. Used to verify the allocator's partition invariant.
type Layout struct {
	Live []Field
	Free []Field
	Bits uint32
}

// Layout returns the storage layout of a chunk; ok is false if it does not exist.
func (a *Archive) Layout(chunkKey ir.ChunkKey) (Layout, bool) {
	c := a.chunks[chunkKey]
	if c == nil {
		return Layout{}, false
	}
	var live []Field
	for _, r := range a.records {
		if r.chunk == chunkKey {
			live = append(live, r.field())
		}
	}
	slices.SortFunc(live, func(x, y Field) int { return cmp.Compare(x.Position, y.Position) })
	return Layout{
		Live: live,
		Free: slices.Clone(c.free),
		Bits: uint32(len(c.words)) * wordBits,
	}, true
}

func (a *Archive) lookup(key ir.StatusKey) (*record, *chunk) {
	r := a.records[key]
	if r == nil {
		return nil, nil
	}
	c := a.chunks[r.chunk]
	if c == nil {
		// A record without storage means the tables are corrupted.
		slog.Error("status record without chunk", "status", key, "chunk", r.chunk)
		return nil, nil
	}
	return r, c
}
