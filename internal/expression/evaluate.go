package expression

import (
	"log/slog"

	"github.com/roach88/ifthen/internal/ir"
)

// Evaluate computes key's ternary value against the current statuses.
//
// Elements are combined in index order with Kleene semantics: AND yields
// False at the first False element, OR yields True at the first True element;
// otherwise any Unknown element makes the result Unknown, and a clean pass
// yields the identity (True for AND, False for OR).
//
// An unregistered expression, a missing status, or exceeding the depth guard
// all evaluate to Unknown. Evaluate never fails.
func (e *Evaluator) Evaluate(key ir.ExpressionKey, statuses StatusReader) ir.Ternary {
	return e.evaluate(key, statuses, 0)
}

func (e *Evaluator) evaluate(key ir.ExpressionKey, statuses StatusReader, depth int) ir.Ternary {
	if depth >= e.maxDepth {
		slog.Debug("expression depth guard reached", "expression", key, "depth", depth)
		return ir.Unknown
	}
	x, ok := e.expressions[key]
	if !ok {
		return ir.Unknown
	}

	switch x.Kind {
	case KindComparison:
		_, c, ok := e.resolve(key, KindComparison)
		if !ok {
			return ir.Unknown
		}
		return combine(x.Logic, c.comparisons[x.Begin:x.End], func(el Comparison) ir.Ternary {
			return compare(el, statuses)
		})
	case KindCompound:
		_, c, ok := e.resolve(key, KindCompound)
		if !ok {
			return ir.Unknown
		}
		return combine(x.Logic, c.compounds[x.Begin:x.End], func(el Compound) ir.Ternary {
			sub := e.evaluate(el.Expression, statuses, depth+1)
			if sub == ir.Unknown {
				return ir.Unknown
			}
			return ir.TernaryOf((sub == ir.True) == el.Expected)
		})
	default:
		slog.Error("expression with unknown kind", "expression", key, "kind", x.Kind)
		return ir.Unknown
	}
}

// combine folds elements under logic. The short-circuit value is False for
// AND and True for OR.
func combine[T any](logic ir.Logic, elements []T, eval func(T) ir.Ternary) ir.Ternary {
	short, identity := ir.False, ir.True
	if logic == ir.Or {
		short, identity = ir.True, ir.False
	}
	unknown := false
	for _, el := range elements {
		switch eval(el) {
		case short:
			return short
		case ir.Unknown:
			unknown = true
		}
	}
	if unknown {
		return ir.Unknown
	}
	return identity
}

func compare(el Comparison, statuses StatusReader) ir.Ternary {
	left, ok := statuses.Get(el.Status)
	if !ok {
		return ir.Unknown
	}
	right := el.Value
	if el.RightStatus != ir.NoKey {
		right, ok = statuses.Get(el.RightStatus)
		if !ok {
			return ir.Unknown
		}
	}
	return left.Compare(el.Operator, right)
}
