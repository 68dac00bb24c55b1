package store

import (
	"context"
	"math"
	"testing"

	"github.com/roach88/ifthen/internal/ir"
)

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", "lamp")
	for i := 0; i < 2; i++ {
		if err := s.WriteRun(ctx, run); err != nil {
			t.Fatalf("WriteRun() call %d failed: %v", i, err)
		}
	}

	// A conflicting row with the same ID is ignored, not merged.
	if err := s.WriteRun(ctx, createTestRun("run-1", "other")); err != nil {
		t.Fatalf("WriteRun() conflict failed: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if count != 1 {
		t.Errorf("runs = %d, want 1", count)
	}

	got, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if got.Scenario != "lamp" {
		t.Errorf("Scenario = %q, want first write to win", got.Scenario)
	}
}

func TestWriteTick_ForeignKeyViolation(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteTick(context.Background(), ir.TickRecord{RunID: "missing", Seq: 1})
	if err == nil {
		t.Error("expected foreign key error for tick without run")
	}
}

func TestWriteDispatch_ForeignKeyViolation(t *testing.T) {
	s := createTestStore(t)
	seedRun(t, s, "run-1", 1)

	err := s.WriteDispatch(context.Background(), createTestDispatch("run-1", 2, 0, "armed", 0))
	if err == nil {
		t.Error("expected foreign key error for dispatch without tick")
	}
}

func TestWriteDispatch_HighBitKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", 1)

	d := createTestDispatch("run-1", 1, 0, "wide", 5)
	d.ExpressionKey = ir.ExpressionKey(math.MaxUint64 - 7)
	d.Now, d.Last = ir.Unknown, ir.True
	if err := s.WriteDispatch(ctx, d); err != nil {
		t.Fatalf("WriteDispatch() failed: %v", err)
	}

	got, err := s.ReadDispatches(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadDispatches() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(got))
	}
	if got[0] != d {
		t.Errorf("round trip = %+v, want %+v", got[0], d)
	}
}

func TestWriteStatus_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", 1)

	st := ir.StatusSnapshot{RunID: "run-1", Seq: 1, Key: ir.StatusKeyOf("power"), Name: "power", Format: "UNSIGNED_8", Value: "3"}
	for i := 0; i < 2; i++ {
		if err := s.WriteStatus(ctx, st); err != nil {
			t.Fatalf("WriteStatus() call %d failed: %v", i, err)
		}
	}

	got, err := s.ReadStatuses(ctx, "run-1", 1)
	if err != nil {
		t.Fatalf("ReadStatuses() failed: %v", err)
	}
	if len(got) != 1 || got[0] != st {
		t.Errorf("ReadStatuses() = %+v, want [%+v]", got, st)
	}
}

func TestRecordTick_Atomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1")

	tick := ir.TickRecord{RunID: "run-1", Seq: 1, Evaluated: 2, Dispatched: 2}
	dispatches := []ir.DispatchRecord{
		createTestDispatch("run-1", 1, 0, "a", 1),
		// Wrong seq: violates the foreign key and rolls back the whole tick.
		createTestDispatch("run-1", 9, 1, "b", 2),
	}
	if err := s.RecordTick(ctx, tick, dispatches, nil); err == nil {
		t.Fatal("expected RecordTick() to fail")
	}

	ticks, err := s.ReadTicks(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadTicks() failed: %v", err)
	}
	if len(ticks) != 0 {
		t.Errorf("ticks = %d after rollback, want 0", len(ticks))
	}

	dispatches[1].Seq = 1
	statuses := []ir.StatusSnapshot{{RunID: "run-1", Seq: 1, Key: 7, Name: "x", Format: "BOOL", Value: "TRUE"}}
	if err := s.RecordTick(ctx, tick, dispatches, statuses); err != nil {
		t.Fatalf("RecordTick() failed: %v", err)
	}
	got, err := s.ReadDispatches(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadDispatches() failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("dispatches = %d, want 2", len(got))
	}
}
