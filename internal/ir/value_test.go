package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAccessors(t *testing.T) {
	b, ok := BoolValue(true).Bool()
	assert.True(t, ok)
	assert.True(t, b)

	u, ok := UnsignedValue(42).Unsigned()
	assert.True(t, ok)
	assert.Equal(t, uint64(42), u)

	i, ok := SignedValue(-7).Signed()
	assert.True(t, ok)
	assert.Equal(t, int64(-7), i)

	f, ok := FloatValue(1.25).Float()
	assert.True(t, ok)
	assert.Equal(t, 1.25, f)

	_, ok = UnsignedValue(1).Bool()
	assert.False(t, ok, "accessor must reject other kinds")
	assert.True(t, EmptyValue().IsEmpty())
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{"TRUE", BoolValue(true)},
		{"false", BoolValue(false)},
		{"10", UnsignedValue(10)},
		{"-20", SignedValue(-20)},
		{"1.25", FloatValue(1.25)},
		{"0x20", UnsignedValue(32)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseValue("ten")
	assert.Error(t, err)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "TRUE", BoolValue(true).String())
	assert.Equal(t, "10", UnsignedValue(10).String())
	assert.Equal(t, "-20", SignedValue(-20).String())
	assert.Equal(t, "1.25", FloatValue(1.25).String())
	assert.Equal(t, "EMPTY", EmptyValue().String())
}

func TestValueConvert(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		kind Kind
		want Value
		ok   bool
	}{
		{"signed to unsigned", SignedValue(5), KindUnsigned, UnsignedValue(5), true},
		{"negative to unsigned", SignedValue(-1), KindUnsigned, Value{}, false},
		{"unsigned to signed", UnsignedValue(5), KindSigned, SignedValue(5), true},
		{"huge unsigned to signed", UnsignedValue(math.MaxUint64), KindSigned, Value{}, false},
		{"integral float to unsigned", FloatValue(3), KindUnsigned, UnsignedValue(3), true},
		{"fractional float to signed", FloatValue(3.5), KindSigned, Value{}, false},
		{"signed to float", SignedValue(-2), KindFloat, FloatValue(-2), true},
		{"2^53 unsigned to float", UnsignedValue(1 << 53), KindFloat, FloatValue(1 << 53), true},
		{"inexact unsigned to float", UnsignedValue(1<<53 + 1), KindFloat, Value{}, false},
		{"max unsigned to float", UnsignedValue(math.MaxUint64), KindFloat, Value{}, false},
		{"inexact signed to float", SignedValue(-(1<<53 + 1)), KindFloat, Value{}, false},
		{"min signed to float", SignedValue(math.MinInt64), KindFloat, FloatValue(math.MinInt64), true},
		{"bool to unsigned", BoolValue(true), KindUnsigned, Value{}, false},
		{"unsigned to bool", UnsignedValue(1), KindBool, Value{}, false},
		{"empty to empty", EmptyValue(), KindEmpty, Value{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Convert(tt.kind)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValueFits(t *testing.T) {
	assert.True(t, UnsignedValue(127).Fits(Unsigned(7)))
	assert.False(t, UnsignedValue(128).Fits(Unsigned(7)))
	assert.True(t, UnsignedValue(math.MaxUint64).Fits(Unsigned(64)))

	assert.True(t, SignedValue(-4096).Fits(Signed(13)))
	assert.True(t, SignedValue(4095).Fits(Signed(13)))
	assert.False(t, SignedValue(4096).Fits(Signed(13)))
	assert.False(t, SignedValue(-4097).Fits(Signed(13)))

	assert.True(t, FloatValue(1.25).Fits(FormatFloat))
	assert.False(t, FloatValue(math.MaxFloat64).Fits(FormatFloat))
	assert.True(t, FloatValue(math.MaxFloat64).Fits(FormatDouble))

	assert.False(t, UnsignedValue(1).Fits(FormatBool), "kind must match")
}

func TestValueCompare(t *testing.T) {
	tests := []struct {
		name  string
		left  Value
		op    ComparisonOp
		right Value
		want  Ternary
	}{
		{"unsigned greater", UnsignedValue(10), Greater, UnsignedValue(7), True},
		{"unsigned not less", UnsignedValue(10), Less, UnsignedValue(7), False},
		{"negative below unsigned", SignedValue(-1), Less, UnsignedValue(0), True},
		{"unsigned above negative", UnsignedValue(0), Greater, SignedValue(-20), True},
		{"signed vs unsigned equal", SignedValue(10), Equal, UnsignedValue(10), True},
		{"signed ge", SignedValue(-20), GreaterEqual, UnsignedValue(10), False},
		{"float epsilon equal", FloatValue(1.25), Equal, FloatValue(1.25 + FloatEpsilon/2), True},
		{"float vs integer", FloatValue(1.5), Greater, UnsignedValue(1), True},
		{"bool equal", BoolValue(true), Equal, BoolValue(true), True},
		{"bool not equal", BoolValue(false), NotEqual, BoolValue(true), True},
		{"bool vs integer", BoolValue(true), Equal, UnsignedValue(1), Unknown},
		{"integer vs bool", UnsignedValue(1), Equal, BoolValue(true), Unknown},
		{"empty", EmptyValue(), Equal, EmptyValue(), Unknown},
		{"nan", FloatValue(math.NaN()), Equal, FloatValue(0), Unknown},
		{"le equal", UnsignedValue(10), LessEqual, UnsignedValue(10), True},
		{"ne", UnsignedValue(10), NotEqual, UnsignedValue(10), False},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.left.Compare(tt.op, tt.right))
		})
	}
}

func TestValueOperate(t *testing.T) {
	tests := []struct {
		name  string
		left  Value
		op    AssignmentOp
		right Value
		want  Value
	}{
		{"copy converts", UnsignedValue(10), OpCopy, SignedValue(3), UnsignedValue(3)},
		{"add", UnsignedValue(10), OpAdd, UnsignedValue(1), UnsignedValue(11)},
		{"sub", UnsignedValue(10), OpSub, UnsignedValue(1), UnsignedValue(9)},
		{"mul", UnsignedValue(10), OpMul, UnsignedValue(3), UnsignedValue(30)},
		{"div", UnsignedValue(10), OpDiv, UnsignedValue(3), UnsignedValue(3)},
		{"mod", UnsignedValue(10), OpMod, UnsignedValue(3), UnsignedValue(1)},
		{"or", UnsignedValue(10), OpOr, UnsignedValue(1), UnsignedValue(11)},
		{"xor", UnsignedValue(10), OpXor, UnsignedValue(2), UnsignedValue(8)},
		{"and", UnsignedValue(10), OpAnd, UnsignedValue(2), UnsignedValue(2)},
		{"signed add negative", SignedValue(-20), OpAdd, SignedValue(-5), SignedValue(-25)},
		{"signed sub unsigned", SignedValue(0), OpSub, UnsignedValue(5), SignedValue(-5)},
		{"float add", FloatValue(1.25), OpAdd, UnsignedValue(1), FloatValue(2.25)},
		{"bool xor", BoolValue(true), OpXor, BoolValue(true), BoolValue(false)},
		{"bool copy", BoolValue(true), OpCopy, BoolValue(false), BoolValue(false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.left.Operate(tt.op, tt.right)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueOperateErrors(t *testing.T) {
	tests := []struct {
		name  string
		left  Value
		op    AssignmentOp
		right Value
		want  error
	}{
		{"div by zero", UnsignedValue(10), OpDiv, UnsignedValue(0), ErrDivisionByZero},
		{"mod by zero", SignedValue(10), OpMod, SignedValue(0), ErrDivisionByZero},
		{"float div by zero", FloatValue(1), OpDiv, FloatValue(0), ErrDivisionByZero},
		{"unsigned underflow", UnsignedValue(0), OpSub, UnsignedValue(1), ErrOutOfRange},
		{"unsigned overflow", UnsignedValue(math.MaxUint64), OpAdd, UnsignedValue(1), ErrOutOfRange},
		{"signed overflow", SignedValue(math.MaxInt64), OpAdd, SignedValue(1), ErrOutOfRange},
		{"signed mul overflow", SignedValue(math.MinInt64), OpMul, SignedValue(-1), ErrOutOfRange},
		{"negative into unsigned", UnsignedValue(1), OpAdd, SignedValue(-1), ErrOutOfRange},
		{"bool with number", BoolValue(true), OpOr, UnsignedValue(1), ErrKindMismatch},
		{"number with bool", UnsignedValue(1), OpCopy, BoolValue(true), ErrKindMismatch},
		{"bool add", BoolValue(true), OpAdd, BoolValue(true), ErrUnsupportedOperator},
		{"float mod", FloatValue(1), OpMod, FloatValue(1), ErrUnsupportedOperator},
		{"empty left", EmptyValue(), OpCopy, UnsignedValue(1), ErrKindMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.left.Operate(tt.op, tt.right)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
