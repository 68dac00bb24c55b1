package ir

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// Sentinel errors for value conversion and arithmetic.
var (
	ErrKindMismatch        = errors.New("value kind mismatch")
	ErrOutOfRange          = errors.New("value out of range")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrUnsupportedOperator = errors.New("operator not supported for kind")
)

// FloatEpsilon is the tolerance used when comparing floats. It matches four
// single-precision ULPs at 1.0 so float32 storage round-trips compare equal.
const FloatEpsilon = 4 * 1.1920928955078125e-07

// Value is a fixed-width scalar status value.
//
// The zero Value is Empty. Values are immutable and comparable with ==
// (bit-exact); use Compare for the engine's relational semantics.
type Value struct {
	kind Kind
	bits uint64
}

// EmptyValue returns the Empty value.
func EmptyValue() Value { return Value{} }

// BoolValue returns a Bool value.
func BoolValue(b bool) Value {
	if b {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// UnsignedValue returns an Unsigned value.
func UnsignedValue(u uint64) Value { return Value{kind: KindUnsigned, bits: u} }

// SignedValue returns a Signed value.
func SignedValue(i int64) Value { return Value{kind: KindSigned, bits: uint64(i)} }

// FloatValue returns a Float value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

// Kind returns the value's representation tag.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether v is the Empty value.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Bool returns the bool payload; ok is false for other kinds.
func (v Value) Bool() (b bool, ok bool) {
	return v.bits != 0, v.kind == KindBool
}

// Unsigned returns the unsigned payload; ok is false for other kinds.
func (v Value) Unsigned() (u uint64, ok bool) {
	return v.bits, v.kind == KindUnsigned
}

// Signed returns the signed payload; ok is false for other kinds.
func (v Value) Signed() (i int64, ok bool) {
	return int64(v.bits), v.kind == KindSigned
}

// Float returns the float payload; ok is false for other kinds.
func (v Value) Float() (f float64, ok bool) {
	return math.Float64frombits(v.bits), v.kind == KindFloat
}

// String renders the value the way authoring tables spell it.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		if v.bits != 0 {
			return "TRUE"
		}
		return "FALSE"
	case KindUnsigned:
		return strconv.FormatUint(v.bits, 10)
	case KindSigned:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindFloat:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	default:
		return "EMPTY"
	}
}

// ParseValue parses a literal: TRUE/FALSE, an unsigned or signed integer, or
// a float. Non-negative integers parse as Unsigned.
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "TRUE":
		return BoolValue(true), nil
	case "FALSE":
		return BoolValue(false), nil
	}
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		return UnsignedValue(u), nil
	}
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return SignedValue(i), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FloatValue(f), nil
	}
	return Value{}, fmt.Errorf("cannot parse value %q", s)
}

// Convert returns v represented as kind, or false when v cannot be
// represented exactly. Bool never converts to or from numeric kinds.
func (v Value) Convert(kind Kind) (Value, bool) {
	if v.kind == kind {
		return v, kind != KindEmpty
	}
	switch kind {
	case KindUnsigned:
		switch v.kind {
		case KindSigned:
			if i := int64(v.bits); i >= 0 {
				return UnsignedValue(uint64(i)), true
			}
		case KindFloat:
			f := math.Float64frombits(v.bits)
			if f >= 0 && f < 1<<64 && f == math.Trunc(f) {
				return UnsignedValue(uint64(f)), true
			}
		}
	case KindSigned:
		switch v.kind {
		case KindUnsigned:
			if v.bits <= math.MaxInt64 {
				return SignedValue(int64(v.bits)), true
			}
		case KindFloat:
			f := math.Float64frombits(v.bits)
			if f >= math.MinInt64 && f < math.MaxInt64 && f == math.Trunc(f) {
				return SignedValue(int64(f)), true
			}
		}
	case KindFloat:
		switch v.kind {
		case KindUnsigned:
			// Integers above 2^53 may round.
			if f := float64(v.bits); f < 1<<64 && uint64(f) == v.bits {
				return FloatValue(f), true
			}
		case KindSigned:
			i := int64(v.bits)
			if f := float64(i); f < math.MaxInt64 && int64(f) == i {
				return FloatValue(f), true
			}
		}
	}
	return Value{}, false
}

// Fits reports whether v can be stored in format f without loss of range.
// The value kind must already match the format kind.
func (v Value) Fits(f Format) bool {
	if v.kind != f.Kind || !f.Valid() {
		return false
	}
	switch f.Kind {
	case KindBool:
		return true
	case KindUnsigned:
		return f.Width == 64 || v.bits < uint64(1)<<f.Width
	case KindSigned:
		if f.Width == 64 {
			return true
		}
		i := int64(v.bits)
		limit := int64(1) << (f.Width - 1)
		return -limit <= i && i < limit
	case KindFloat:
		x := math.Float64frombits(v.bits)
		if f.Width == 32 && !math.IsInf(x, 0) && !math.IsNaN(x) {
			return math.Abs(x) <= math.MaxFloat32
		}
		return true
	}
	return false
}

// order is the relation of a left value to a right value.
type order int8

const (
	orderNone order = iota
	orderLess
	orderEqual
	orderGreater
)

func compareOrdered[T int64 | uint64 | float64](l, r T) order {
	switch {
	case l < r:
		return orderLess
	case r < l:
		return orderGreater
	default:
		return orderEqual
	}
}

func compareFloat(l, r float64) order {
	if math.IsNaN(l) || math.IsNaN(r) {
		return orderNone
	}
	diff := l - r
	switch {
	case diff < -FloatEpsilon:
		return orderLess
	case FloatEpsilon < diff:
		return orderGreater
	default:
		return orderEqual
	}
}

// orderOf compares v with right across kinds. Negative signed values are less
// than every unsigned value; any float operand promotes the comparison to
// float; bool only compares with bool.
func (v Value) orderOf(right Value) order {
	if v.kind == KindBool || right.kind == KindBool {
		if v.kind != right.kind {
			return orderNone
		}
		return compareOrdered(v.bits, right.bits)
	}
	if v.kind == KindEmpty || right.kind == KindEmpty {
		return orderNone
	}
	if v.kind == KindFloat || right.kind == KindFloat {
		l, lok := v.Convert(KindFloat)
		r, rok := right.Convert(KindFloat)
		if !lok || !rok {
			return orderNone
		}
		lf, _ := l.Float()
		rf, _ := r.Float()
		return compareFloat(lf, rf)
	}
	switch {
	case v.kind == KindUnsigned && right.kind == KindUnsigned:
		return compareOrdered(v.bits, right.bits)
	case v.kind == KindSigned && right.kind == KindSigned:
		return compareOrdered(int64(v.bits), int64(right.bits))
	case v.kind == KindUnsigned:
		if int64(right.bits) < 0 {
			return orderGreater
		}
		return compareOrdered(v.bits, right.bits)
	default:
		if int64(v.bits) < 0 {
			return orderLess
		}
		return compareOrdered(v.bits, right.bits)
	}
}

// Compare evaluates "v op right". Incomparable operands yield Unknown.
func (v Value) Compare(op ComparisonOp, right Value) Ternary {
	o := v.orderOf(right)
	if o == orderNone {
		return Unknown
	}
	switch op {
	case Equal:
		return TernaryOf(o == orderEqual)
	case NotEqual:
		return TernaryOf(o != orderEqual)
	case Less:
		return TernaryOf(o == orderLess)
	case LessEqual:
		return TernaryOf(o != orderGreater)
	case Greater:
		return TernaryOf(o == orderGreater)
	case GreaterEqual:
		return TernaryOf(o != orderLess)
	default:
		return Unknown
	}
}

// Operate returns "v op right", keeping v's kind. The right operand is
// converted to v's kind first; Copy returns the converted right operand.
//
// Integer kinds support every operator. Float supports Copy, Add, Sub, Mul and
// Div. Bool supports Copy, Or, Xor and And. Overflow is an error, never a wrap.
func (v Value) Operate(op AssignmentOp, right Value) (Value, error) {
	if v.kind == KindEmpty {
		return Value{}, ErrKindMismatch
	}
	r, ok := right.Convert(v.kind)
	if !ok {
		if (v.kind == KindBool) != (right.kind == KindBool) || right.kind == KindEmpty {
			return Value{}, fmt.Errorf("%s %s %s: %w", v.kind, op, right.kind, ErrKindMismatch)
		}
		return Value{}, fmt.Errorf("%s %s %s: %w", v.kind, op, right, ErrOutOfRange)
	}
	if op == OpCopy {
		return r, nil
	}

	switch v.kind {
	case KindBool:
		return operateBool(v.bits != 0, op, r.bits != 0)
	case KindUnsigned:
		return operateUnsigned(v.bits, op, r.bits)
	case KindSigned:
		return operateSigned(int64(v.bits), op, int64(r.bits))
	case KindFloat:
		return operateFloat(math.Float64frombits(v.bits), op, math.Float64frombits(r.bits))
	}
	return Value{}, ErrKindMismatch
}

func operateBool(l bool, op AssignmentOp, r bool) (Value, error) {
	switch op {
	case OpOr:
		return BoolValue(l || r), nil
	case OpXor:
		return BoolValue(l != r), nil
	case OpAnd:
		return BoolValue(l && r), nil
	default:
		return Value{}, fmt.Errorf("BOOL %s: %w", op, ErrUnsupportedOperator)
	}
}

func operateUnsigned(l uint64, op AssignmentOp, r uint64) (Value, error) {
	switch op {
	case OpAdd:
		sum, carry := bits.Add64(l, r, 0)
		if carry != 0 {
			return Value{}, fmt.Errorf("%d + %d: %w", l, r, ErrOutOfRange)
		}
		return UnsignedValue(sum), nil
	case OpSub:
		if r > l {
			return Value{}, fmt.Errorf("%d - %d: %w", l, r, ErrOutOfRange)
		}
		return UnsignedValue(l - r), nil
	case OpMul:
		hi, lo := bits.Mul64(l, r)
		if hi != 0 {
			return Value{}, fmt.Errorf("%d * %d: %w", l, r, ErrOutOfRange)
		}
		return UnsignedValue(lo), nil
	case OpDiv:
		if r == 0 {
			return Value{}, ErrDivisionByZero
		}
		return UnsignedValue(l / r), nil
	case OpMod:
		if r == 0 {
			return Value{}, ErrDivisionByZero
		}
		return UnsignedValue(l % r), nil
	case OpOr:
		return UnsignedValue(l | r), nil
	case OpXor:
		return UnsignedValue(l ^ r), nil
	case OpAnd:
		return UnsignedValue(l & r), nil
	}
	return Value{}, fmt.Errorf("UNSIGNED %s: %w", op, ErrUnsupportedOperator)
}

func operateSigned(l int64, op AssignmentOp, r int64) (Value, error) {
	switch op {
	case OpAdd:
		sum := l + r
		if (r > 0 && sum < l) || (r < 0 && sum > l) {
			return Value{}, fmt.Errorf("%d + %d: %w", l, r, ErrOutOfRange)
		}
		return SignedValue(sum), nil
	case OpSub:
		diff := l - r
		if (r < 0 && diff < l) || (r > 0 && diff > l) {
			return Value{}, fmt.Errorf("%d - %d: %w", l, r, ErrOutOfRange)
		}
		return SignedValue(diff), nil
	case OpMul:
		if l == 0 || r == 0 {
			return SignedValue(0), nil
		}
		product := l * r
		if product/r != l || (l == -1 && r == math.MinInt64) || (r == -1 && l == math.MinInt64) {
			return Value{}, fmt.Errorf("%d * %d: %w", l, r, ErrOutOfRange)
		}
		return SignedValue(product), nil
	case OpDiv:
		if r == 0 {
			return Value{}, ErrDivisionByZero
		}
		if l == math.MinInt64 && r == -1 {
			return Value{}, fmt.Errorf("%d / %d: %w", l, r, ErrOutOfRange)
		}
		return SignedValue(l / r), nil
	case OpMod:
		if r == 0 {
			return Value{}, ErrDivisionByZero
		}
		if r == -1 {
			return SignedValue(0), nil
		}
		return SignedValue(l % r), nil
	case OpOr:
		return SignedValue(l | r), nil
	case OpXor:
		return SignedValue(l ^ r), nil
	case OpAnd:
		return SignedValue(l & r), nil
	}
	return Value{}, fmt.Errorf("SIGNED %s: %w", op, ErrUnsupportedOperator)
}

func operateFloat(l float64, op AssignmentOp, r float64) (Value, error) {
	var out float64
	switch op {
	case OpAdd:
		out = l + r
	case OpSub:
		out = l - r
	case OpMul:
		out = l * r
	case OpDiv:
		if r == 0 {
			return Value{}, ErrDivisionByZero
		}
		out = l / r
	default:
		return Value{}, fmt.Errorf("FLOAT %s: %w", op, ErrUnsupportedOperator)
	}
	if math.IsInf(out, 0) || math.IsNaN(out) {
		return Value{}, fmt.Errorf("%g %s %g: %w", l, op, r, ErrOutOfRange)
	}
	return FloatValue(out), nil
}
