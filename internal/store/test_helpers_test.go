package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/ifthen/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record with version fields filled in.
func createTestRun(id, scenario string) ir.RunRecord {
	return ir.RunRecord{
		ID:            id,
		Scenario:      scenario,
		EngineVersion: ir.EngineVersion,
		TraceVersion:  ir.TraceVersion,
	}
}

// createTestDispatch creates a FALSE->TRUE dispatch of the named expression.
func createTestDispatch(runID string, seq int64, ordinal int, name string, priority int32) ir.DispatchRecord {
	return ir.DispatchRecord{
		RunID:          runID,
		Seq:            seq,
		Ordinal:        ordinal,
		ExpressionKey:  ir.ExpressionKeyOf(name),
		ExpressionName: name,
		Priority:       priority,
		Now:            ir.True,
		Last:           ir.False,
	}
}

// seedRun writes a run and one empty tick per seq.
func seedRun(t *testing.T, s *Store, id string, seqs ...int64) {
	t.Helper()
	ctx := context.Background()
	if err := s.WriteRun(ctx, createTestRun(id, "scenario-"+id)); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	for _, seq := range seqs {
		if err := s.WriteTick(ctx, ir.TickRecord{RunID: id, Seq: seq}); err != nil {
			t.Fatalf("WriteTick() failed: %v", err)
		}
	}
}
