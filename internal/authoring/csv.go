package authoring

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/ifthen/internal/engine"
	"github.com/roach88/ifthen/internal/expression"
	"github.com/roach88/ifthen/internal/ir"
	"github.com/roach88/ifthen/internal/mutation"
)

// Table attribute names.
const (
	AttrKey       = "KEY"
	AttrKind      = "KIND"
	AttrValue     = "VALUE"
	AttrLogic     = "LOGIC"
	AttrElement   = "ELEMENT"
	AttrCondition = "CONDITION"
	AttrPriority  = "PRIORITY"
	AttrArgument  = "ARGUMENT"
	AttrDelay     = "DELAY"
)

// Behavior kinds accepted in the KIND column of a behavior table.
const (
	BehaviorStatusAssignment = "STATUS_ASSIGNMENT"
	behaviorStatusShort      = "STATUS"
)

// collector gathers errors according to a LoadMode.
type collector struct {
	mode LoadMode
	errs []error
}

// add records err and reports whether loading should stop.
func (c *collector) add(err error) bool {
	c.errs = append(c.errs, err)
	return c.mode == LoadModeFailFast
}

func requireAttrs(t *Table, attrs ...string) error {
	var missing []string
	for _, a := range attrs {
		if !t.Has(a) {
			missing = append(missing, a)
		}
	}
	if len(missing) > 0 {
		return &LoadError{
			Code:    ErrCodeInvalidTable,
			Message: fmt.Sprintf("missing attributes: %s", strings.Join(missing, ", ")),
			File:    t.File,
			Row:     1,
		}
	}
	return nil
}

// BuildStatuses reads a KEY, KIND, VALUE table.
//
// Initial values are converted to the declared kind; a value that cannot be
// represented exactly is an error. Range is checked at registration.
func BuildStatuses(t *Table, mode LoadMode) ([]engine.StatusSpec, []error) {
	if err := requireAttrs(t, AttrKey, AttrKind, AttrValue); err != nil {
		return nil, []error{err}
	}
	c := &collector{mode: mode}
	var specs []engine.StatusSpec
	for row := range t.Len() {
		name := t.Cell(row, AttrKey)
		if name == "" {
			if c.add(t.errorAt(ErrCodeInvalidStatus, row, AttrKey, 0, "empty status key")) {
				break
			}
			continue
		}
		spec, err := buildStatus(name, t.Cell(row, AttrKind), t.Cell(row, AttrValue))
		if err != nil {
			if c.add(t.errorAt(ErrCodeInvalidStatus, row, AttrValue, 0, "status %s: %v", name, err)) {
				break
			}
			continue
		}
		specs = append(specs, spec)
	}
	return specs, c.errs
}

func buildStatus(name, kind, value string) (engine.StatusSpec, error) {
	format, err := ir.ParseFormat(kind)
	if err != nil {
		return engine.StatusSpec{}, err
	}
	v, err := ParseConstant(value)
	if err != nil {
		return engine.StatusSpec{}, err
	}
	converted, ok := v.Convert(format.Kind)
	if !ok {
		return engine.StatusSpec{}, fmt.Errorf("value %s is not a %s", v, format)
	}
	return engine.StatusSpec{Name: name, Format: format, Value: converted}, nil
}

// BuildExpressions reads a KEY, LOGIC, KIND, ELEMENT table.
//
// STATUS_COMPARISON elements are (status, operator, value) triplets and
// SUB_EXPRESSION elements are (expression, TRUE|FALSE) pairs. An empty cell
// where an element would start ends the list.
func BuildExpressions(t *Table, mode LoadMode) ([]engine.ExpressionSpec, []error) {
	if err := requireAttrs(t, AttrKey, AttrLogic, AttrKind, AttrElement); err != nil {
		return nil, []error{err}
	}
	c := &collector{mode: mode}
	var specs []engine.ExpressionSpec
	for row := range t.Len() {
		spec, err := buildExpression(t, row)
		if err != nil {
			if c.add(err) {
				break
			}
			continue
		}
		specs = append(specs, spec)
	}
	return specs, c.errs
}

func buildExpression(t *Table, row int) (engine.ExpressionSpec, error) {
	name := t.Cell(row, AttrKey)
	if name == "" {
		return engine.ExpressionSpec{}, t.errorAt(ErrCodeInvalidExpression, row, AttrKey, 0, "empty expression key")
	}
	logic, err := ir.ParseLogic(t.Cell(row, AttrLogic))
	if err != nil {
		return engine.ExpressionSpec{}, t.errorAt(ErrCodeInvalidExpression, row, AttrLogic, 0, "expression %s: %v", name, err)
	}
	kind, err := expression.ParseKind(t.Cell(row, AttrKind))
	if err != nil {
		return engine.ExpressionSpec{}, t.errorAt(ErrCodeInvalidExpression, row, AttrKind, 0, "expression %s: %v", name, err)
	}

	spec := engine.ExpressionSpec{Name: name, Logic: logic, Kind: kind}
	cells := t.Cells(row, AttrElement)
	switch kind {
	case expression.KindComparison:
		for i := 0; i < len(cells) && cells[i] != ""; i += 3 {
			if i+2 >= len(cells) || cells[i+1] == "" || cells[i+2] == "" {
				return spec, t.errorAt(ErrCodeInvalidExpression, row, AttrElement, i, "expression %s: incomplete comparison", name)
			}
			cmp, err := comparison(cells[i], cells[i+1], cells[i+2])
			if err != nil {
				return spec, t.errorAt(ErrCodeInvalidExpression, row, AttrElement, i, "expression %s: %v", name, err)
			}
			spec.Comparisons = append(spec.Comparisons, cmp)
		}
	case expression.KindCompound:
		for i := 0; i < len(cells) && cells[i] != ""; i += 2 {
			if i+1 >= len(cells) || cells[i+1] == "" {
				return spec, t.errorAt(ErrCodeInvalidExpression, row, AttrElement, i, "expression %s: incomplete sub-expression", name)
			}
			cmp, err := compound(cells[i], cells[i+1])
			if err != nil {
				return spec, t.errorAt(ErrCodeInvalidExpression, row, AttrElement, i+1, "expression %s: %v", name, err)
			}
			spec.Compounds = append(spec.Compounds, cmp)
		}
	}
	if len(spec.Comparisons) == 0 && len(spec.Compounds) == 0 {
		return spec, t.errorAt(ErrCodeInvalidExpression, row, AttrElement, 0, "expression %s has no elements", name)
	}
	return spec, nil
}

func comparison(status, op, value string) (expression.Comparison, error) {
	operator, err := ir.ParseComparisonOp(op)
	if err != nil {
		return expression.Comparison{}, err
	}
	right, err := parseOperand(value)
	if err != nil {
		return expression.Comparison{}, err
	}
	return expression.Comparison{
		Status:      ir.StatusKeyOf(status),
		Operator:    operator,
		Value:       right.value,
		RightStatus: right.status,
	}, nil
}

func compound(name, expected string) (expression.Compound, error) {
	b, err := strconv.ParseBool(expected)
	if err != nil {
		return expression.Compound{}, fmt.Errorf("expected value %q is not TRUE or FALSE", expected)
	}
	return expression.Compound{Expression: ir.ExpressionKeyOf(name), Expected: b}, nil
}

// BuildBehaviors reads a KEY, CONDITION, PRIORITY, KIND, ARGUMENT table.
//
// KEY names the watched expression. The first two non-empty CONDITION cells
// are the previous and current unit conditions. ARGUMENT holds
// (status, operator, value) triplets. An optional DELAY column sets the delay
// of the first operation.
func BuildBehaviors(t *Table, mode LoadMode) ([]engine.BehaviorSpec, []error) {
	if err := requireAttrs(t, AttrKey, AttrCondition, AttrKind, AttrArgument); err != nil {
		return nil, []error{err}
	}
	c := &collector{mode: mode}
	var specs []engine.BehaviorSpec
	for row := range t.Len() {
		spec, err := buildBehavior(t, row)
		if err != nil {
			if c.add(err) {
				break
			}
			continue
		}
		specs = append(specs, spec)
	}
	return specs, c.errs
}

func buildBehavior(t *Table, row int) (engine.BehaviorSpec, error) {
	name := t.Cell(row, AttrKey)
	if name == "" {
		return engine.BehaviorSpec{}, t.errorAt(ErrCodeInvalidBehavior, row, AttrKey, 0, "empty expression key")
	}
	spec := engine.BehaviorSpec{
		Name:       fmt.Sprintf("%s@%d", name, t.lines[row]),
		Expression: ir.ExpressionKeyOf(name),
	}

	var units []string
	for _, cell := range t.Cells(row, AttrCondition) {
		if cell != "" {
			units = append(units, cell)
		}
	}
	if len(units) < 2 {
		return spec, t.errorAt(ErrCodeInvalidBehavior, row, AttrCondition, 0, "behavior %s: condition needs previous and current", name)
	}
	cond, err := engine.ParseCondition(units[0], units[1])
	if err != nil {
		return spec, t.errorAt(ErrCodeInvalidBehavior, row, AttrCondition, 0, "behavior %s: %v", name, err)
	}
	spec.Condition = cond

	if p := t.Cell(row, AttrPriority); p != "" {
		priority, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return spec, t.errorAt(ErrCodeInvalidBehavior, row, AttrPriority, 0, "behavior %s: invalid priority %q", name, p)
		}
		spec.Priority = int32(priority)
	}

	switch strings.ToUpper(t.Cell(row, AttrKind)) {
	case BehaviorStatusAssignment, behaviorStatusShort:
	default:
		return spec, t.errorAt(ErrCodeInvalidBehavior, row, AttrKind, 0, "behavior %s: unknown kind %q", name, t.Cell(row, AttrKind))
	}

	spec.Delay, err = mutation.ParseDelay(t.Cell(row, AttrDelay))
	if err != nil {
		return spec, t.errorAt(ErrCodeInvalidBehavior, row, AttrDelay, 0, "behavior %s: %v", name, err)
	}

	cells := t.Cells(row, AttrArgument)
	for i := 0; i < len(cells) && cells[i] != ""; i += 3 {
		if i+2 >= len(cells) || cells[i+1] == "" || cells[i+2] == "" {
			return spec, t.errorAt(ErrCodeInvalidBehavior, row, AttrArgument, i, "behavior %s: incomplete assignment", name)
		}
		op, err := assignment(cells[i], cells[i+1], cells[i+2])
		if err != nil {
			return spec, t.errorAt(ErrCodeInvalidBehavior, row, AttrArgument, i, "behavior %s: %v", name, err)
		}
		spec.Operations = append(spec.Operations, op)
	}
	if len(spec.Operations) == 0 {
		return spec, t.errorAt(ErrCodeInvalidBehavior, row, AttrArgument, 0, "behavior %s has no assignments", name)
	}
	return spec, nil
}

func assignment(status, op, value string) (mutation.Operation, error) {
	operator, err := ir.ParseAssignmentOp(op)
	if err != nil {
		return mutation.Operation{}, err
	}
	right, err := parseOperand(value)
	if err != nil {
		return mutation.Operation{}, err
	}
	operand := mutation.Constant(right.value)
	if right.status != ir.NoKey {
		operand = mutation.StatusRef(right.status)
	}
	return mutation.NewOperation(ir.StatusKeyOf(status), operator, operand)
}

// CSVFiles names the three tables of one chunk.
type CSVFiles struct {
	Chunk      string
	Status     string
	Expression string
	Behavior   string
}

// LoadCSVChunk reads a chunk's tables. Empty paths are skipped.
func LoadCSVChunk(files CSVFiles, mode LoadMode) (engine.ChunkSpec, []error) {
	spec := engine.ChunkSpec{Name: files.Chunk}
	c := &collector{mode: mode}

	read := func(path string) *Table {
		if path == "" {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			c.add(&LoadError{Code: ErrCodeNotFound, Message: err.Error(), File: path})
			return nil
		}
		defer f.Close()
		t, err := ReadTable(f, path)
		if err != nil {
			c.add(err)
			return nil
		}
		return t
	}

	if t := read(files.Status); t != nil {
		statuses, errs := BuildStatuses(t, mode)
		spec.Statuses = statuses
		c.errs = append(c.errs, errs...)
	}
	if mode == LoadModeFailFast && len(c.errs) > 0 {
		return spec, c.errs
	}
	if t := read(files.Expression); t != nil {
		exprs, errs := BuildExpressions(t, mode)
		c.errs = append(c.errs, errs...)
		ordered, cycles := OrderExpressions(exprs)
		spec.Expressions = ordered
		c.errs = append(c.errs, cycles...)
	}
	if mode == LoadModeFailFast && len(c.errs) > 0 {
		return spec, c.errs
	}
	if t := read(files.Behavior); t != nil {
		behaviors, errs := BuildBehaviors(t, mode)
		spec.Behaviors = behaviors
		c.errs = append(c.errs, errs...)
	}
	return spec, c.errs
}
