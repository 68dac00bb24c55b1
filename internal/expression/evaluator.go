// Package expression implements the expression store and the ternary
// evaluator.
//
// Expressions are registered into chunks. Each chunk owns two append-only
// element arenas (comparisons and compounds); an Expression records the
// [Begin, End) range of its elements in the arena for its kind. Ranges are
// integer indices, so later appends never invalidate earlier expressions.
//
// A compound expression may only reference sub-expressions that are already
// registered. This ordering rule makes cycles unrepresentable.
//
// Thread-safety: Evaluator is NOT safe for concurrent use.
package expression

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/ifthen/internal/ir"
)

// Sentinel errors for expression registration.
var (
	ErrInvalidKey           = errors.New("invalid expression key")
	ErrEmptyElements        = errors.New("expression has no elements")
	ErrDuplicateExpression  = errors.New("expression key already registered")
	ErrUnknownSubExpression = errors.New("sub-expression not registered")
	ErrUnknownExpression    = errors.New("expression not registered")
)

// DefaultMaxDepth bounds compound recursion during evaluation.
const DefaultMaxDepth = 64

// Kind distinguishes the element arena an expression indexes into.
type Kind uint8

const (
	KindComparison Kind = iota
	KindCompound
)

func (k Kind) String() string {
	if k == KindCompound {
		return "SUB_EXPRESSION"
	}
	return "STATUS_COMPARISON"
}

// ParseKind parses STATUS_COMPARISON or SUB_EXPRESSION.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STATUS_COMPARISON":
		return KindComparison, nil
	case "SUB_EXPRESSION":
		return KindCompound, nil
	default:
		return KindComparison, fmt.Errorf("unknown expression kind %q", s)
	}
}

// Stability classifies how a monitor must watch an expression.
type Stability int8

const (
	// Stable expressions depend only on comparisons; status change
	// notifications are enough to detect their transitions.
	Stable Stability = 1
	// Volatile expressions nest other compounds and are re-evaluated every tick.
	Volatile Stability = -1
)

// Comparison compares a status with a constant, or with another status when
// RightStatus is set.
type Comparison struct {
	Status      ir.StatusKey
	Operator    ir.ComparisonOp
	Value       ir.Value
	RightStatus ir.StatusKey
}

// Compound tests whether a sub-expression evaluates to Expected.
type Compound struct {
	Expression ir.ExpressionKey
	Expected   bool
}

// Expression is a registered expression's location in its chunk.
type Expression struct {
	Chunk ir.ChunkKey
	Kind  Kind
	Logic ir.Logic
	Begin int
	End   int
}

// chunk owns the element arenas for one chunk key.
type chunk struct {
	comparisons []Comparison
	compounds   []Compound
}

// StatusReader reads status values. Implemented by *archive.Archive.
type StatusReader interface {
	Get(key ir.StatusKey) (ir.Value, bool)
}

// Evaluator stores expressions and evaluates them against a StatusReader.
type Evaluator struct {
	expressions map[ir.ExpressionKey]Expression
	chunks      map[ir.ChunkKey]*chunk
	maxDepth    int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxDepth sets the compound recursion guard.
//
// Default: 64 (DefaultMaxDepth). Exceeding it evaluates to Unknown.
func WithMaxDepth(depth int) Option {
	return func(e *Evaluator) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// New creates an empty Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		expressions: make(map[ir.ExpressionKey]Expression),
		chunks:      make(map[ir.ChunkKey]*chunk),
		maxDepth:    DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) checkNew(key ir.ExpressionKey, n int) error {
	if key == ir.NoKey {
		return ErrInvalidKey
	}
	if n == 0 {
		return fmt.Errorf("expression %d: %w", key, ErrEmptyElements)
	}
	if _, exists := e.expressions[key]; exists {
		return fmt.Errorf("expression %d: %w", key, ErrDuplicateExpression)
	}
	return nil
}

func (e *Evaluator) chunk(key ir.ChunkKey) *chunk {
	c := e.chunks[key]
	if c == nil {
		c = &chunk{}
		e.chunks[key] = c
	}
	return c
}

// RegisterComparison registers a comparison expression. It fails if elements
// is empty or key is already registered; nothing is mutated on failure.
func (e *Evaluator) RegisterComparison(chunkKey ir.ChunkKey, key ir.ExpressionKey, logic ir.Logic, elements []Comparison) error {
	if err := e.checkNew(key, len(elements)); err != nil {
		return err
	}
	c := e.chunk(chunkKey)
	begin := len(c.comparisons)
	c.comparisons = append(c.comparisons, elements...)
	e.expressions[key] = Expression{
		Chunk: chunkKey,
		Kind:  KindComparison,
		Logic: logic,
		Begin: begin,
		End:   len(c.comparisons),
	}
	return nil
}

// RegisterCompound registers a compound expression. Every sub-expression must
// already be registered, which keeps the expression graph acyclic. The result
// classifies the new expression (see Stability).
func (e *Evaluator) RegisterCompound(chunkKey ir.ChunkKey, key ir.ExpressionKey, logic ir.Logic, elements []Compound) (Stability, error) {
	if err := e.checkNew(key, len(elements)); err != nil {
		return 0, err
	}
	stability := Stable
	for _, el := range elements {
		sub, ok := e.expressions[el.Expression]
		if !ok {
			return 0, fmt.Errorf("expression %d references %d: %w", key, el.Expression, ErrUnknownSubExpression)
		}
		if sub.Kind == KindCompound {
			stability = Volatile
		}
	}

	c := e.chunk(chunkKey)
	begin := len(c.compounds)
	c.compounds = append(c.compounds, elements...)
	e.expressions[key] = Expression{
		Chunk: chunkKey,
		Kind:  KindCompound,
		Logic: logic,
		Begin: begin,
		End:   len(c.compounds),
	}
	return stability, nil
}

// Lookup returns a registered expression.
func (e *Evaluator) Lookup(key ir.ExpressionKey) (Expression, bool) {
	x, ok := e.expressions[key]
	return x, ok
}

// Len returns the number of registered expressions.
func (e *Evaluator) Len() int {
	return len(e.expressions)
}

// Keys returns every registered expression key in ascending order.
func (e *Evaluator) Keys() []ir.ExpressionKey {
	return slices.Sorted(maps.Keys(e.expressions))
}

// Comparisons returns a copy of a comparison expression's elements.
func (e *Evaluator) Comparisons(key ir.ExpressionKey) ([]Comparison, bool) {
	x, c, ok := e.resolve(key, KindComparison)
	if !ok {
		return nil, false
	}
	return slices.Clone(c.comparisons[x.Begin:x.End]), true
}

// Compounds returns a copy of a compound expression's elements.
func (e *Evaluator) Compounds(key ir.ExpressionKey) ([]Compound, bool) {
	x, c, ok := e.resolve(key, KindCompound)
	if !ok {
		return nil, false
	}
	return slices.Clone(c.compounds[x.Begin:x.End]), true
}

// Stability classifies a registered expression.
func (e *Evaluator) Stability(key ir.ExpressionKey) (Stability, error) {
	x, ok := e.expressions[key]
	if !ok {
		return 0, fmt.Errorf("expression %d: %w", key, ErrUnknownExpression)
	}
	if x.Kind == KindComparison {
		return Stable, nil
	}
	elements, _ := e.Compounds(key)
	for _, el := range elements {
		if sub, ok := e.expressions[el.Expression]; ok && sub.Kind == KindCompound {
			return Volatile, nil
		}
	}
	return Stable, nil
}

// Statuses returns the status keys key depends on, transitively through
// compounds, in ascending order without duplicates. These are the keys a
// change-notification index must link to the expression's monitor.
func (e *Evaluator) Statuses(key ir.ExpressionKey) ([]ir.StatusKey, error) {
	if _, ok := e.expressions[key]; !ok {
		return nil, fmt.Errorf("expression %d: %w", key, ErrUnknownExpression)
	}
	seen := make(map[ir.StatusKey]struct{})
	visited := make(map[ir.ExpressionKey]struct{})
	e.collectStatuses(key, seen, visited)
	return slices.Sorted(maps.Keys(seen)), nil
}

func (e *Evaluator) collectStatuses(key ir.ExpressionKey, seen map[ir.StatusKey]struct{}, visited map[ir.ExpressionKey]struct{}) {
	if _, done := visited[key]; done {
		return
	}
	visited[key] = struct{}{}

	if elements, ok := e.Comparisons(key); ok {
		for _, el := range elements {
			seen[el.Status] = struct{}{}
			if el.RightStatus != ir.NoKey {
				seen[el.RightStatus] = struct{}{}
			}
		}
		return
	}
	if elements, ok := e.Compounds(key); ok {
		for _, el := range elements {
			e.collectStatuses(el.Expression, seen, visited)
		}
	}
}

// RemoveChunk drops every expression registered in chunk along with its
// element arenas. Compounds in other chunks that reference a removed
// expression evaluate to Unknown from then on. Returns the number of
// expressions removed.
func (e *Evaluator) RemoveChunk(chunkKey ir.ChunkKey) int {
	removed := 0
	for key, x := range e.expressions {
		if x.Chunk == chunkKey {
			delete(e.expressions, key)
			removed++
		}
	}
	delete(e.chunks, chunkKey)
	if removed > 0 {
		slog.Debug("expression chunk removed", "chunk", chunkKey, "expressions", removed)
	}
	return removed
}

// resolve finds an expression's chunk and validates its element range.
func (e *Evaluator) resolve(key ir.ExpressionKey, kind Kind) (Expression, *chunk, bool) {
	x, ok := e.expressions[key]
	if !ok || x.Kind != kind {
		return Expression{}, nil, false
	}
	c := e.chunks[x.Chunk]
	if c == nil {
		slog.Error("expression without chunk", "expression", key, "chunk", x.Chunk)
		return Expression{}, nil, false
	}
	n := len(c.comparisons)
	if kind == KindCompound {
		n = len(c.compounds)
	}
	if x.Begin < 0 || x.Begin > x.End || x.End > n {
		slog.Error("expression range outside chunk arena",
			"expression", key, "begin", x.Begin, "end", x.End, "len", n)
		return Expression{}, nil, false
	}
	return x, c, true
}
