package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifthen/internal/ir"
)

func TestUnitCondition_Values(t *testing.T) {
	assert.Equal(t, UnitCondition(1), UnitNull)
	assert.Equal(t, UnitCondition(2), UnitFalse)
	assert.Equal(t, UnitCondition(3), UnitNotTrue)
	assert.Equal(t, UnitCondition(4), UnitTrue)
	assert.Equal(t, UnitCondition(5), UnitNotFalse)
	assert.Equal(t, UnitCondition(6), UnitNotNull)
	assert.Equal(t, UnitCondition(7), UnitAny)
}

func TestUnitCondition_Accepts(t *testing.T) {
	tests := []struct {
		unit    UnitCondition
		unknown bool
		isFalse bool
		isTrue  bool
	}{
		{UnitNull, true, false, false},
		{UnitFalse, false, true, false},
		{UnitTrue, false, false, true},
		{UnitNotTrue, true, true, false},
		{UnitNotFalse, true, false, true},
		{UnitNotNull, false, true, true},
		{UnitAny, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.unit.String(), func(t *testing.T) {
			assert.Equal(t, tt.unknown, tt.unit.Accepts(ir.Unknown))
			assert.Equal(t, tt.isFalse, tt.unit.Accepts(ir.False))
			assert.Equal(t, tt.isTrue, tt.unit.Accepts(ir.True))
		})
	}
}

func TestParseUnitCondition(t *testing.T) {
	tests := []struct {
		token   string
		want    UnitCondition
		wantErr bool
	}{
		{"TRUE", UnitTrue, false},
		{"false", UnitFalse, false},
		{" NULL ", UnitNull, false},
		{"ANY", UnitAny, false},
		{"!TRUE", UnitNotTrue, false},
		{"!FALSE", UnitNotFalse, false},
		{"!NULL", UnitNotNull, false},
		{"!ANY", 0, true},
		{"MAYBE", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseUnitCondition(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_Matches(t *testing.T) {
	c := MakeCondition(UnitFalse, UnitTrue)
	require.True(t, c.Valid())
	assert.Equal(t, UnitFalse, c.Last())
	assert.Equal(t, UnitTrue, c.Now())
	assert.Equal(t, "FALSE->TRUE", c.String())

	assert.True(t, c.Matches(ir.True, ir.False))
	assert.False(t, c.Matches(ir.False, ir.True), "reverse transition")
	assert.False(t, c.Matches(ir.True, ir.Unknown))

	loose := MakeCondition(UnitAny, UnitNotNull)
	assert.True(t, loose.Matches(ir.True, ir.Unknown))
	assert.True(t, loose.Matches(ir.False, ir.True))
	assert.False(t, loose.Matches(ir.Unknown, ir.True))
}

func TestCondition_Invalid(t *testing.T) {
	assert.False(t, Condition(0).Valid())
	assert.False(t, MakeCondition(0, UnitTrue).Valid())
	assert.False(t, MakeCondition(UnitTrue, 8).Valid())
	assert.False(t, Condition(0).Matches(ir.True, ir.False))
	assert.Equal(t, "INVALID", Condition(0).String())
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition("!TRUE", "TRUE")
	require.NoError(t, err)
	assert.Equal(t, MakeCondition(UnitNotTrue, UnitTrue), c)

	_, err = ParseCondition("TRUE", "!ANY")
	assert.ErrorContains(t, err, "current")
}
