package engine

import (
	"strconv"

	"github.com/roach88/ifthen/internal/expression"
	"github.com/roach88/ifthen/internal/ir"
	"github.com/roach88/ifthen/internal/mutation"
)

// ChunkSpec is one unit of authored content: statuses, expressions and
// behaviors that are registered and removed together.
//
// Keys left at NoKey are derived from names with the ir.*KeyOf hashes.
type ChunkSpec struct {
	Name        string
	Key         ir.ChunkKey
	Statuses    []StatusSpec
	Expressions []ExpressionSpec
	Behaviors   []BehaviorSpec
}

// ChunkKey returns the chunk's key.
func (c ChunkSpec) ChunkKey() ir.ChunkKey {
	if c.Key != ir.NoKey {
		return c.Key
	}
	return ir.ChunkKeyOf(c.Name)
}

// StatusSpec declares one status and its initial value.
type StatusSpec struct {
	Name   string
	Key    ir.StatusKey
	Format ir.Format
	Value  ir.Value
}

// StatusKey returns the status's key.
func (s StatusSpec) StatusKey() ir.StatusKey {
	if s.Key != ir.NoKey {
		return s.Key
	}
	return ir.StatusKeyOf(s.Name)
}

// ExpressionSpec declares one expression. Kind selects which element list is
// used; the other must be empty.
type ExpressionSpec struct {
	Name        string
	Key         ir.ExpressionKey
	Logic       ir.Logic
	Kind        expression.Kind
	Comparisons []expression.Comparison
	Compounds   []expression.Compound
}

// ExpressionKey returns the expression's key.
func (e ExpressionSpec) ExpressionKey() ir.ExpressionKey {
	if e.Key != ir.NoKey {
		return e.Key
	}
	return ir.ExpressionKeyOf(e.Name)
}

// BehaviorSpec declares a STATUS_ASSIGNMENT behavior: when Expression's
// transition matches Condition, Operations are queued on the modifier. The
// first operation uses Delay and the rest follow it in the same series.
type BehaviorSpec struct {
	Name       string
	Expression ir.ExpressionKey
	Condition  Condition
	Priority   int32
	Delay      mutation.Delay
	Operations []mutation.Operation
}

// Names maps keys back to the names they were authored with.
type Names struct {
	statuses    map[ir.StatusKey]string
	expressions map[ir.ExpressionKey]string
	chunks      map[ir.ChunkKey]string
}

func newNames() *Names {
	return &Names{
		statuses:    make(map[ir.StatusKey]string),
		expressions: make(map[ir.ExpressionKey]string),
		chunks:      make(map[ir.ChunkKey]string),
	}
}

// Status returns key's name, or its decimal value if it has none.
func (n *Names) Status(key ir.StatusKey) string {
	if s, ok := n.statuses[key]; ok {
		return s
	}
	return strconv.FormatUint(uint64(key), 10)
}

// Expression returns key's name, or its decimal value if it has none.
func (n *Names) Expression(key ir.ExpressionKey) string {
	if s, ok := n.expressions[key]; ok {
		return s
	}
	return strconv.FormatUint(uint64(key), 10)
}

// Chunk returns key's name, or its decimal value if it has none.
func (n *Names) Chunk(key ir.ChunkKey) string {
	if s, ok := n.chunks[key]; ok {
		return s
	}
	return strconv.FormatUint(uint64(key), 10)
}

func (n *Names) setStatus(key ir.StatusKey, name string) {
	if name != "" {
		n.statuses[key] = name
	}
}

func (n *Names) setExpression(key ir.ExpressionKey, name string) {
	if name != "" {
		n.expressions[key] = name
	}
}

func (n *Names) setChunk(key ir.ChunkKey, name string) {
	if name != "" {
		n.chunks[key] = name
	}
}
