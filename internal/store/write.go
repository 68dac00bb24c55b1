package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ifthen/internal/ir"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteRun inserts a run record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run ir.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, engine_version, trace_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Scenario,
		run.EngineVersion,
		run.TraceVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteTick inserts a tick summary.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteTick(ctx context.Context, tick ir.TickRecord) error {
	return writeTick(ctx, s.db, tick)
}

func writeTick(ctx context.Context, db execer, tick ir.TickRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ticks (run_id, seq, evaluated, dispatched, pruned)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		tick.RunID,
		tick.Seq,
		tick.Evaluated,
		tick.Dispatched,
		tick.Pruned,
	)
	if err != nil {
		return fmt.Errorf("write tick: %w", err)
	}
	return nil
}

// WriteDispatch inserts one dispatch of a tick.
//
// Note: The tick referenced by (RunID, Seq) must exist (foreign key constraint).
func (s *Store) WriteDispatch(ctx context.Context, d ir.DispatchRecord) error {
	return writeDispatch(ctx, s.db, d)
}

func writeDispatch(ctx context.Context, db execer, d ir.DispatchRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO dispatches
		(run_id, seq, ordinal, expression_key, expression_name, priority, now, last)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq, ordinal) DO NOTHING
	`,
		d.RunID,
		d.Seq,
		d.Ordinal,
		keyToDB(d.ExpressionKey),
		d.ExpressionName,
		d.Priority,
		int64(d.Now),
		int64(d.Last),
	)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	return nil
}

// WriteStatus inserts a status snapshot.
//
// Note: The tick referenced by (RunID, Seq) must exist (foreign key constraint).
func (s *Store) WriteStatus(ctx context.Context, st ir.StatusSnapshot) error {
	return writeStatus(ctx, s.db, st)
}

func writeStatus(ctx context.Context, db execer, st ir.StatusSnapshot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO statuses (run_id, seq, key, name, format, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq, key) DO NOTHING
	`,
		st.RunID,
		st.Seq,
		keyToDB(st.Key),
		st.Name,
		st.Format,
		st.Value,
	)
	if err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// RecordTick writes a tick with its dispatches and status snapshots in one
// transaction. Either everything is written or nothing is.
func (s *Store) RecordTick(ctx context.Context, tick ir.TickRecord, dispatches []ir.DispatchRecord, statuses []ir.StatusSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record tick: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := writeTick(ctx, tx, tick); err != nil {
		return fmt.Errorf("record tick: %w", err)
	}
	for _, d := range dispatches {
		if err := writeDispatch(ctx, tx, d); err != nil {
			return fmt.Errorf("record tick: %w", err)
		}
	}
	for _, st := range statuses {
		if err := writeStatus(ctx, tx, st); err != nil {
			return fmt.Errorf("record tick: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record tick: commit: %w", err)
	}
	return nil
}
