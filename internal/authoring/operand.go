package authoring

import (
	"fmt"
	"strings"

	"github.com/roach88/ifthen/internal/ir"
)

// Right-hand cell prefixes.
const (
	PrefixStatus = "STATUS:"
	PrefixHash   = "HASH:"
)

// operand is a parsed right-hand cell: a constant, or another status.
type operand struct {
	value  ir.Value
	status ir.StatusKey
}

// parseOperand parses a right-hand cell: STATUS:<name>, HASH:<text>, or a
// literal accepted by ir.ParseValue.
func parseOperand(cell string) (operand, error) {
	cell = strings.TrimSpace(cell)
	switch {
	case strings.HasPrefix(cell, PrefixStatus):
		name := strings.TrimSpace(strings.TrimPrefix(cell, PrefixStatus))
		if name == "" {
			return operand{}, fmt.Errorf("empty status name in %q", cell)
		}
		return operand{status: ir.StatusKeyOf(name)}, nil
	case strings.HasPrefix(cell, PrefixHash):
		return operand{value: ir.UnsignedValue(ir.HashKey(strings.TrimPrefix(cell, PrefixHash)))}, nil
	default:
		v, err := ir.ParseValue(cell)
		if err != nil {
			return operand{}, err
		}
		return operand{value: v}, nil
	}
}

// ParseConstant parses a constant cell: HASH:<text> or a literal. STATUS:
// is not allowed.
func ParseConstant(cell string) (ir.Value, error) {
	op, err := parseOperand(cell)
	if err != nil {
		return ir.Value{}, err
	}
	if op.status != ir.NoKey {
		return ir.Value{}, fmt.Errorf("initial value %q cannot reference a status", cell)
	}
	return op.value, nil
}
