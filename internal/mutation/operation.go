// Package mutation implements status mutation operations and the deferred
// modifier that queues them between ticks.
//
// An Operation is "status op= operand" where the operand is either a constant
// or another status's current value. Operations are validated when they are
// built (NewOperation), so a division by a constant zero never reaches the
// archive.
package mutation

import (
	"errors"
	"fmt"

	"github.com/roach88/ifthen/internal/archive"
	"github.com/roach88/ifthen/internal/ir"
)

// Sentinel errors for building and applying operations.
var (
	ErrInvalidStatus   = errors.New("invalid target status key")
	ErrInvalidOperator = errors.New("invalid assignment operator")
	ErrInvalidOperand  = errors.New("invalid right operand")
)

// Archive is the subset of the status archive an operation needs.
// Implemented by *archive.Archive.
type Archive interface {
	Get(key ir.StatusKey) (ir.Value, bool)
	Set(key ir.StatusKey, value ir.Value) error
	Transition(key ir.StatusKey) archive.Transition
}

// Operand is the right-hand side of an operation: a constant value or a
// reference to another status.
type Operand struct {
	value  ir.Value
	status ir.StatusKey
}

// Constant returns an operand holding v.
func Constant(v ir.Value) Operand { return Operand{value: v} }

// StatusRef returns an operand that reads key's current value when applied.
func StatusRef(key ir.StatusKey) Operand { return Operand{status: key} }

// IsStatus reports whether the operand reads another status.
func (o Operand) IsStatus() bool { return o.status != ir.NoKey }

// Status returns the referenced status key (NoKey for constants).
func (o Operand) Status() ir.StatusKey { return o.status }

// Value returns the constant value (Empty for status references).
func (o Operand) Value() ir.Value { return o.value }

func (o Operand) resolve(a Archive) (ir.Value, error) {
	if !o.IsStatus() {
		return o.value, nil
	}
	v, ok := a.Get(o.status)
	if !ok {
		return ir.Value{}, fmt.Errorf("right operand status %d: %w", o.status, archive.ErrUnknownStatus)
	}
	return v, nil
}

func (o Operand) String() string {
	if o.IsStatus() {
		return fmt.Sprintf("STATUS:%d", o.status)
	}
	return o.value.String()
}

// Operation is a validated "status op= operand" mutation.
type Operation struct {
	status   ir.StatusKey
	operator ir.AssignmentOp
	right    Operand
}

// NewOperation validates and builds an operation.
//
// It rejects a NoKey target, an unknown operator, an Empty constant, and a
// Div or Mod by a constant zero. A status-reference operand that holds zero
// at apply time is rejected by Apply instead.
func NewOperation(status ir.StatusKey, op ir.AssignmentOp, right Operand) (Operation, error) {
	if status == ir.NoKey {
		return Operation{}, ErrInvalidStatus
	}
	if !op.Valid() {
		return Operation{}, fmt.Errorf("%w: %v", ErrInvalidOperator, op)
	}
	if !right.IsStatus() {
		if right.value.IsEmpty() {
			return Operation{}, fmt.Errorf("%w: empty constant", ErrInvalidOperand)
		}
		if (op == ir.OpDiv || op == ir.OpMod) && isZero(right.value) {
			return Operation{}, fmt.Errorf("status %d %s 0: %w", status, op, ir.ErrDivisionByZero)
		}
	}
	return Operation{status: status, operator: op, right: right}, nil
}

// MustOperation is like NewOperation but panics on error. For tests and
// statically known operations only.
func MustOperation(status ir.StatusKey, op ir.AssignmentOp, right Operand) Operation {
	o, err := NewOperation(status, op, right)
	if err != nil {
		panic(err)
	}
	return o
}

func isZero(v ir.Value) bool {
	switch v.Kind() {
	case ir.KindUnsigned:
		u, _ := v.Unsigned()
		return u == 0
	case ir.KindSigned:
		i, _ := v.Signed()
		return i == 0
	case ir.KindFloat:
		f, _ := v.Float()
		return f == 0
	}
	return false
}

// Status returns the target status key.
func (o Operation) Status() ir.StatusKey { return o.status }

// Operator returns the assignment operator.
func (o Operation) Operator() ir.AssignmentOp { return o.operator }

// Right returns the right operand.
func (o Operation) Right() Operand { return o.right }

func (o Operation) String() string {
	return fmt.Sprintf("%d %s %s", o.status, o.operator, o.right)
}

// Apply executes the operation against the archive.
//
// Copy writes the right value unconditionally (converted to the target's
// kind). Every other operator reads the current value first and fails if the
// target is unknown. On any failure the archive is left unchanged.
func (o Operation) Apply(a Archive) error {
	right, err := o.right.resolve(a)
	if err != nil {
		return fmt.Errorf("apply %s: %w", o, err)
	}

	if o.operator == ir.OpCopy {
		if err := a.Set(o.status, right); err != nil {
			return fmt.Errorf("apply %s: %w", o, err)
		}
		return nil
	}

	left, ok := a.Get(o.status)
	if !ok {
		return fmt.Errorf("apply %s: %w", o, archive.ErrUnknownStatus)
	}
	result, err := left.Operate(o.operator, right)
	if err != nil {
		return fmt.Errorf("apply %s: %w", o, err)
	}
	if err := a.Set(o.status, result); err != nil {
		return fmt.Errorf("apply %s: %w", o, err)
	}
	return nil
}
