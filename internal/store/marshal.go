package store

import (
	"fmt"

	"github.com/roach88/ifthen/internal/ir"
)

// SQLite INTEGER is signed, and go-sqlite3 rejects uint64 values with the
// high bit set. Keys are stored as their two's-complement int64.

func keyToDB[K ~uint64](k K) int64 { return int64(k) }

func keyFromDB[K ~uint64](v int64) K { return K(uint64(v)) }

// unmarshalTernary validates a stored ternary. The schema CHECK constraint
// makes anything else a corrupt database.
func unmarshalTernary(v int64) (ir.Ternary, error) {
	switch t := ir.Ternary(v); t {
	case ir.Unknown, ir.False, ir.True:
		return t, nil
	default:
		return ir.Unknown, fmt.Errorf("invalid ternary %d", v)
	}
}
