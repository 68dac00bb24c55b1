package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/ifthen/internal/ir"
)

// UnitCondition is a set of accepted ternary values, one bit per value.
type UnitCondition uint8

const (
	UnitNull     UnitCondition = 1 << iota // accepts Unknown
	UnitFalse                              // accepts False
	UnitTrue                               // accepts True
	UnitNotTrue  = UnitNull | UnitFalse
	UnitNotFalse = UnitNull | UnitTrue
	UnitNotNull  = UnitFalse | UnitTrue
	UnitAny      = UnitNull | UnitFalse | UnitTrue
)

func unitOf(t ir.Ternary) UnitCondition {
	switch t {
	case ir.True:
		return UnitTrue
	case ir.False:
		return UnitFalse
	default:
		return UnitNull
	}
}

// Valid reports whether u accepts at least one value and nothing else.
func (u UnitCondition) Valid() bool {
	return u != 0 && u&^UnitAny == 0
}

// Accepts reports whether t is in u.
func (u UnitCondition) Accepts(t ir.Ternary) bool {
	return u&unitOf(t) != 0
}

var unitTokens = map[UnitCondition]string{
	UnitNull:     "NULL",
	UnitFalse:    "FALSE",
	UnitTrue:     "TRUE",
	UnitNotTrue:  "!TRUE",
	UnitNotFalse: "!FALSE",
	UnitNotNull:  "!NULL",
	UnitAny:      "ANY",
}

func (u UnitCondition) String() string {
	if s, ok := unitTokens[u]; ok {
		return s
	}
	return fmt.Sprintf("UnitCondition(%d)", uint8(u))
}

// ParseUnitCondition parses TRUE, FALSE, NULL or ANY, each optionally
// negated with a leading "!". "!ANY" accepts nothing and is rejected.
func ParseUnitCondition(s string) (UnitCondition, error) {
	token := strings.ToUpper(strings.TrimSpace(s))
	negate := strings.HasPrefix(token, "!")
	token = strings.TrimSpace(strings.TrimPrefix(token, "!"))

	var u UnitCondition
	switch token {
	case "TRUE":
		u = UnitTrue
	case "FALSE":
		u = UnitFalse
	case "NULL":
		u = UnitNull
	case "ANY":
		u = UnitAny
	default:
		return 0, fmt.Errorf("unknown condition token %q", s)
	}
	if negate {
		u = UnitAny &^ u
	}
	if !u.Valid() {
		return 0, fmt.Errorf("condition %q accepts nothing", s)
	}
	return u, nil
}

// Condition pairs a unit condition on the previous evaluation (low bits) with
// one on the current evaluation (high bits). The zero Condition is invalid.
type Condition uint8

const unitBits = 3

// MakeCondition builds a Condition; it returns the invalid zero Condition if
// either half is invalid.
func MakeCondition(last, now UnitCondition) Condition {
	if !last.Valid() || !now.Valid() {
		return 0
	}
	return Condition(last) | Condition(now)<<unitBits
}

// ParseCondition parses a previous/current token pair.
func ParseCondition(last, now string) (Condition, error) {
	l, err := ParseUnitCondition(last)
	if err != nil {
		return 0, fmt.Errorf("previous: %w", err)
	}
	n, err := ParseUnitCondition(now)
	if err != nil {
		return 0, fmt.Errorf("current: %w", err)
	}
	return MakeCondition(l, n), nil
}

// Last returns the previous-evaluation half.
func (c Condition) Last() UnitCondition { return UnitCondition(c) & UnitAny }

// Now returns the current-evaluation half.
func (c Condition) Now() UnitCondition { return UnitCondition(c>>unitBits) & UnitAny }

// Valid reports whether both halves are valid.
func (c Condition) Valid() bool {
	return c>>(2*unitBits) == 0 && c.Last().Valid() && c.Now().Valid()
}

// Matches reports whether the transition last → now satisfies c.
func (c Condition) Matches(now, last ir.Ternary) bool {
	return c.Valid() && c.Now().Accepts(now) && c.Last().Accepts(last)
}

func (c Condition) String() string {
	if !c.Valid() {
		return "INVALID"
	}
	return c.Last().String() + "->" + c.Now().String()
}
