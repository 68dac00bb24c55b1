package authoring

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/ifthen/internal/engine"
	"github.com/roach88/ifthen/internal/expression"
	"github.com/roach88/ifthen/internal/ir"
	"github.com/roach88/ifthen/internal/mutation"
)

// CompileChunks parses every field of the "chunk" struct in v.
//
// The expected layout is:
//
//	chunk: lamp: {
//		status: power: {kind: "UNSIGNED_8", value: 0}
//		expression: on: {
//			logic: "AND"
//			comparisons: [{status: "power", op: ">", value: 0}]
//		}
//		expression: off: {compounds: [{expression: "on", expected: false}]}
//		behavior: [{
//			expression: "on"
//			condition: ["!TRUE", "TRUE"]
//			priority: 1
//			assign: [{status: "power", op: ":=", value: 0}]
//		}]
//	}
//
// logic defaults to AND and delay to NONBLOCK. A value may be a CUE bool or
// number, or a string using the same syntax as a CSV cell.
func CompileChunks(v cue.Value, mode LoadMode) ([]engine.ChunkSpec, []error) {
	chunksVal := v.LookupPath(cue.ParsePath("chunk"))
	if !chunksVal.Exists() {
		return nil, nil
	}
	iter, err := chunksVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	c := &collector{mode: mode}
	var specs []engine.ChunkSpec
	for iter.Next() {
		spec, errs := CompileChunk(iter.Label(), iter.Value(), mode)
		specs = append(specs, spec)
		c.errs = append(c.errs, errs...)
		if mode == LoadModeFailFast && len(c.errs) > 0 {
			break
		}
	}
	return specs, c.errs
}

// CompileChunk parses one chunk struct.
func CompileChunk(name string, v cue.Value, mode LoadMode) (engine.ChunkSpec, []error) {
	spec := engine.ChunkSpec{Name: name}
	if err := v.Err(); err != nil {
		return spec, []error{formatCUEError(err)}
	}
	c := &collector{mode: mode}

	if statuses := v.LookupPath(cue.ParsePath("status")); statuses.Exists() {
		iter, err := statuses.Fields()
		if err != nil {
			return spec, []error{formatCUEError(err)}
		}
		for iter.Next() {
			s, err := compileStatus(iter.Label(), iter.Value())
			if err != nil {
				if c.add(err) {
					return spec, c.errs
				}
				continue
			}
			spec.Statuses = append(spec.Statuses, s)
		}
	}

	if exprs := v.LookupPath(cue.ParsePath("expression")); exprs.Exists() {
		iter, err := exprs.Fields()
		if err != nil {
			return spec, append(c.errs, formatCUEError(err))
		}
		var list []engine.ExpressionSpec
		for iter.Next() {
			x, err := compileExpression(iter.Label(), iter.Value())
			if err != nil {
				if c.add(err) {
					return spec, c.errs
				}
				continue
			}
			list = append(list, x)
		}
		ordered, cycles := OrderExpressions(list)
		spec.Expressions = ordered
		for _, err := range cycles {
			if c.add(err) {
				return spec, c.errs
			}
		}
	}

	if behaviors := v.LookupPath(cue.ParsePath("behavior")); behaviors.Exists() {
		list, err := behaviors.List()
		if err != nil {
			return spec, append(c.errs, formatCUEError(err))
		}
		for i := 0; list.Next(); i++ {
			b, err := compileBehavior(fmt.Sprintf("%s.behavior[%d]", name, i), list.Value())
			if err != nil {
				if c.add(err) {
					return spec, c.errs
				}
				continue
			}
			spec.Behaviors = append(spec.Behaviors, b)
		}
	}
	return spec, c.errs
}

func compileStatus(name string, v cue.Value) (engine.StatusSpec, error) {
	kind, err := lookupString(v, "kind", true)
	if err != nil {
		return engine.StatusSpec{}, err
	}
	value, err := lookupCell(v, "value", true)
	if err != nil {
		return engine.StatusSpec{}, err
	}
	spec, err := buildStatus(name, kind, value)
	if err != nil {
		return spec, &LoadError{Code: ErrCodeInvalidStatus, Message: fmt.Sprintf("status %s: %v", name, err), Pos: v.Pos()}
	}
	return spec, nil
}

func compileExpression(name string, v cue.Value) (engine.ExpressionSpec, error) {
	fail := func(format string, args ...any) (engine.ExpressionSpec, error) {
		return engine.ExpressionSpec{}, &LoadError{
			Code:    ErrCodeInvalidExpression,
			Message: fmt.Sprintf("expression %s: ", name) + fmt.Sprintf(format, args...),
			Pos:     v.Pos(),
		}
	}

	spec := engine.ExpressionSpec{Name: name}
	logic, err := lookupString(v, "logic", false)
	if err != nil {
		return spec, err
	}
	if logic != "" {
		if spec.Logic, err = ir.ParseLogic(logic); err != nil {
			return fail("%v", err)
		}
	}

	comparisons := v.LookupPath(cue.ParsePath("comparisons"))
	compounds := v.LookupPath(cue.ParsePath("compounds"))
	switch {
	case comparisons.Exists() && compounds.Exists():
		return fail("comparisons and compounds are mutually exclusive")
	case comparisons.Exists():
		spec.Kind = expression.KindComparison
		list, err := comparisons.List()
		if err != nil {
			return spec, formatCUEError(err)
		}
		for list.Next() {
			el := list.Value()
			status, op, value, err := triplet(el)
			if err != nil {
				return spec, err
			}
			cmp, err := comparison(status, op, value)
			if err != nil {
				return fail("%v", err)
			}
			spec.Comparisons = append(spec.Comparisons, cmp)
		}
	case compounds.Exists():
		spec.Kind = expression.KindCompound
		list, err := compounds.List()
		if err != nil {
			return spec, formatCUEError(err)
		}
		for list.Next() {
			el := list.Value()
			sub, err := lookupString(el, "expression", true)
			if err != nil {
				return spec, err
			}
			expected := "true"
			if e := el.LookupPath(cue.ParsePath("expected")); e.Exists() {
				b, err := e.Bool()
				if err != nil {
					return spec, formatCUEError(err)
				}
				expected = strconv.FormatBool(b)
			}
			cmp, err := compound(sub, expected)
			if err != nil {
				return fail("%v", err)
			}
			spec.Compounds = append(spec.Compounds, cmp)
		}
	}
	if len(spec.Comparisons) == 0 && len(spec.Compounds) == 0 {
		return fail("no elements")
	}
	return spec, nil
}

func compileBehavior(label string, v cue.Value) (engine.BehaviorSpec, error) {
	fail := func(format string, args ...any) (engine.BehaviorSpec, error) {
		return engine.BehaviorSpec{}, &LoadError{
			Code:    ErrCodeInvalidBehavior,
			Message: label + ": " + fmt.Sprintf(format, args...),
			Pos:     v.Pos(),
		}
	}

	expr, err := lookupString(v, "expression", true)
	if err != nil {
		return engine.BehaviorSpec{}, err
	}
	spec := engine.BehaviorSpec{Name: label, Expression: ir.ExpressionKeyOf(expr)}

	var units []string
	if err := v.LookupPath(cue.ParsePath("condition")).Decode(&units); err != nil {
		return fail("condition must be a [previous, current] list: %v", err)
	}
	if len(units) != 2 {
		return fail("condition must have 2 entries, got %d", len(units))
	}
	if spec.Condition, err = engine.ParseCondition(units[0], units[1]); err != nil {
		return fail("%v", err)
	}

	if p := v.LookupPath(cue.ParsePath("priority")); p.Exists() {
		n, err := p.Int64()
		if err != nil || n < -1<<31 || n >= 1<<31 {
			return fail("priority must be a 32-bit integer")
		}
		spec.Priority = int32(n)
	}

	delay, err := lookupString(v, "delay", false)
	if err != nil {
		return spec, err
	}
	if spec.Delay, err = mutation.ParseDelay(delay); err != nil {
		return fail("%v", err)
	}

	assign := v.LookupPath(cue.ParsePath("assign"))
	if !assign.Exists() {
		return fail("assign is required")
	}
	list, err := assign.List()
	if err != nil {
		return spec, formatCUEError(err)
	}
	for list.Next() {
		status, op, value, err := triplet(list.Value())
		if err != nil {
			return spec, err
		}
		operation, err := assignment(status, op, value)
		if err != nil {
			return fail("%v", err)
		}
		spec.Operations = append(spec.Operations, operation)
	}
	if len(spec.Operations) == 0 {
		return fail("no assignments")
	}
	return spec, nil
}

// triplet reads {status, op, value} from a comparison or assignment element.
func triplet(v cue.Value) (status, op, value string, err error) {
	if status, err = lookupString(v, "status", true); err != nil {
		return
	}
	if op, err = lookupString(v, "op", true); err != nil {
		return
	}
	value, err = lookupCell(v, "value", true)
	return
}

func lookupString(v cue.Value, field string, required bool) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		if required {
			return "", &LoadError{Code: ErrCodeGeneric, Message: field + " is required", Pos: v.Pos()}
		}
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// lookupCell renders a bool, number or string field as a CSV-style cell.
func lookupCell(v cue.Value, field string, required bool) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		if required {
			return "", &LoadError{Code: ErrCodeGeneric, Message: field + " is required", Pos: v.Pos()}
		}
		return "", nil
	}
	switch f.Kind() {
	case cue.BoolKind:
		b, err := f.Bool()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strings.ToUpper(strconv.FormatBool(b)), nil
	case cue.IntKind:
		if i, err := f.Int64(); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		u, err := f.Uint64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatUint(u, 10), nil
	case cue.FloatKind:
		x, err := f.Float64()
		if err != nil {
			return "", formatCUEError(err)
		}
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s, nil
	case cue.StringKind:
		s, err := f.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return s, nil
	default:
		return "", &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s must be a bool, number or string", field), Pos: f.Pos()}
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &LoadError{Code: ErrCodeBuildFailed, Message: first.Error(), Pos: positions[0]}
	}
	return &LoadError{Code: ErrCodeBuildFailed, Message: first.Error()}
}
