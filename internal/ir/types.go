package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// StatusKey identifies one stored status value.
type StatusKey uint64

// ExpressionKey identifies one condition expression.
type ExpressionKey uint64

// ChunkKey identifies a lifetime grouping of statuses, expressions and behaviors.
type ChunkKey uint64

// NoKey is the reserved "no key" handle shared by all key types.
const NoKey = 0

// Ternary is a three-valued (Kleene) evaluation result.
type Ternary int8

const (
	// Unknown means the evaluation failed (missing status, type mismatch, ...).
	Unknown Ternary = -1
	// False is a successful false evaluation.
	False Ternary = 0
	// True is a successful true evaluation.
	True Ternary = 1
)

// TernaryOf converts a bool to True or False.
func TernaryOf(b bool) Ternary {
	if b {
		return True
	}
	return False
}

// String returns "TRUE", "FALSE" or "NULL".
func (t Ternary) String() string {
	switch t {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	default:
		return "NULL"
	}
}

// MarshalText encodes t as its String form so JSON output reads TRUE/FALSE/NULL.
func (t Ternary) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts TRUE, FALSE or NULL, case-insensitively.
func (t *Ternary) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "TRUE":
		*t = True
	case "FALSE":
		*t = False
	case "NULL":
		*t = Unknown
	default:
		return fmt.Errorf("invalid ternary %q", b)
	}
	return nil
}

// Kind is the representation tag of a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindBool
	KindUnsigned
	KindSigned
	KindFloat
)

var kindNames = [...]string{"EMPTY", "BOOL", "UNSIGNED", "SIGNED", "FLOAT"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// MaxWidth is the widest field a status may occupy. Fields never span two
// storage words.
const MaxWidth = 64

// Format describes how a status is stored: its kind and bit width.
// Float formats are either 32 bits (single) or 64 bits (double).
type Format struct {
	Kind  Kind
	Width uint8
}

// Common formats.
var (
	FormatBool   = Format{Kind: KindBool, Width: 1}
	FormatFloat  = Format{Kind: KindFloat, Width: 32}
	FormatDouble = Format{Kind: KindFloat, Width: 64}
)

// Unsigned returns an unsigned integer format of the given width.
func Unsigned(width uint8) Format { return Format{Kind: KindUnsigned, Width: width} }

// Signed returns a signed integer format of the given width.
func Signed(width uint8) Format { return Format{Kind: KindSigned, Width: width} }

// Valid reports whether the format can be stored in the archive.
func (f Format) Valid() bool {
	switch f.Kind {
	case KindBool:
		return f.Width == 1
	case KindUnsigned, KindSigned:
		return f.Width >= 1 && f.Width <= MaxWidth
	case KindFloat:
		return f.Width == 32 || f.Width == 64
	default:
		return false
	}
}

// String renders the format the way authoring tables spell it.
func (f Format) String() string {
	switch f.Kind {
	case KindBool:
		return "BOOL"
	case KindUnsigned:
		return "UNSIGNED_" + strconv.Itoa(int(f.Width))
	case KindSigned:
		return "SIGNED_" + strconv.Itoa(int(f.Width))
	case KindFloat:
		if f.Width == 64 {
			return "DOUBLE"
		}
		return "FLOAT"
	default:
		return "EMPTY"
	}
}

// DefaultIntegerWidth is used when an authored integer kind has no width suffix.
const DefaultIntegerWidth = 8

// ParseFormat parses BOOL, FLOAT, DOUBLE, UNSIGNED[_N] and SIGNED[_N].
func ParseFormat(s string) (Format, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "BOOL":
		return FormatBool, nil
	case "FLOAT":
		return FormatFloat, nil
	case "DOUBLE":
		return FormatDouble, nil
	}

	var kind Kind
	var rest string
	switch {
	case strings.HasPrefix(s, "UNSIGNED"):
		kind, rest = KindUnsigned, strings.TrimPrefix(s, "UNSIGNED")
	case strings.HasPrefix(s, "SIGNED"):
		kind, rest = KindSigned, strings.TrimPrefix(s, "SIGNED")
	default:
		return Format{}, fmt.Errorf("unknown status kind %q", s)
	}

	width := DefaultIntegerWidth
	if rest != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(rest, "_"))
		if err != nil || !strings.HasPrefix(rest, "_") {
			return Format{}, fmt.Errorf("invalid width in status kind %q", s)
		}
		width = n
	}
	if width < 1 || width > MaxWidth {
		return Format{}, fmt.Errorf("status kind %q: width %d out of range [1,%d]", s, width, MaxWidth)
	}
	return Format{Kind: kind, Width: uint8(width)}, nil
}

// Logic combines the elements of an expression.
type Logic uint8

const (
	And Logic = iota
	Or
)

func (l Logic) String() string {
	if l == Or {
		return "OR"
	}
	return "AND"
}

// ParseLogic parses "AND" or "OR".
func ParseLogic(s string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND":
		return And, nil
	case "OR":
		return Or, nil
	default:
		return And, fmt.Errorf("unknown logic %q", s)
	}
}

// ComparisonOp is a relational operator used by comparison expressions.
type ComparisonOp uint8

const (
	Equal ComparisonOp = iota
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
)

var comparisonTokens = [...]string{"==", "!=", "<", "<=", ">", ">="}

func (op ComparisonOp) String() string {
	if int(op) < len(comparisonTokens) {
		return comparisonTokens[op]
	}
	return fmt.Sprintf("ComparisonOp(%d)", op)
}

// ParseComparisonOp parses == != < <= > >=.
func ParseComparisonOp(s string) (ComparisonOp, error) {
	s = strings.TrimSpace(s)
	for i, tok := range comparisonTokens {
		if tok == s {
			return ComparisonOp(i), nil
		}
	}
	return Equal, fmt.Errorf("unknown comparison operator %q", s)
}

// AssignmentOp is an operator used by status mutation operations.
type AssignmentOp uint8

const (
	OpCopy AssignmentOp = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpOr
	OpXor
	OpAnd
)

var assignmentTokens = [...]string{":=", "+=", "-=", "*=", "/=", "%=", "|=", "^=", "&="}

func (op AssignmentOp) String() string {
	if int(op) < len(assignmentTokens) {
		return assignmentTokens[op]
	}
	return fmt.Sprintf("AssignmentOp(%d)", op)
}

// Valid reports whether op is a known assignment operator.
func (op AssignmentOp) Valid() bool {
	return int(op) < len(assignmentTokens)
}

// ParseAssignmentOp parses := += -= *= /= %= |= ^= &=.
func ParseAssignmentOp(s string) (AssignmentOp, error) {
	s = strings.TrimSpace(s)
	for i, tok := range assignmentTokens {
		if tok == s {
			return AssignmentOp(i), nil
		}
	}
	return OpCopy, fmt.Errorf("unknown assignment operator %q", s)
}
