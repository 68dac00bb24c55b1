package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ifthen/internal/ir"
)

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.RunRecord, error) {
	var run ir.RunRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, engine_version, trace_version
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Scenario, &run.EngineVersion, &run.TraceVersion)
	if err != nil {
		return ir.RunRecord{}, err
	}
	return run, nil
}

// ReadRuns returns all runs ordered by ID. UUIDv7 IDs sort by creation time.
//
// Returns an empty slice (not nil) if the store has no runs.
func (s *Store) ReadRuns(ctx context.Context) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, engine_version, trace_version
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		var run ir.RunRecord
		if err := rows.Scan(&run.ID, &run.Scenario, &run.EngineVersion, &run.TraceVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadTicks returns a run's ticks ordered by seq.
func (s *Store) ReadTicks(ctx context.Context, runID string) ([]ir.TickRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, evaluated, dispatched, pruned
		FROM ticks
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []ir.TickRecord{}
	for rows.Next() {
		var t ir.TickRecord
		if err := rows.Scan(&t.RunID, &t.Seq, &t.Evaluated, &t.Dispatched, &t.Pruned); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}

// ReadDispatches returns a run's dispatches in execution order:
// ORDER BY seq ASC, ordinal ASC.
func (s *Store) ReadDispatches(ctx context.Context, runID string) ([]ir.DispatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, ordinal, expression_key, expression_name, priority, now, last
		FROM dispatches
		WHERE run_id = ?
		ORDER BY seq ASC, ordinal ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()
	return scanDispatches(rows)
}

// ReadExpressionHistory returns one expression's dispatches within a run,
// ordered by seq and ordinal.
func (s *Store) ReadExpressionHistory(ctx context.Context, runID string, key ir.ExpressionKey) ([]ir.DispatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, ordinal, expression_key, expression_name, priority, now, last
		FROM dispatches
		WHERE run_id = ? AND expression_key = ?
		ORDER BY seq ASC, ordinal ASC
	`, runID, keyToDB(key))
	if err != nil {
		return nil, fmt.Errorf("query expression history: %w", err)
	}
	defer rows.Close()
	return scanDispatches(rows)
}

func scanDispatches(rows *sql.Rows) ([]ir.DispatchRecord, error) {
	dispatches := []ir.DispatchRecord{}
	for rows.Next() {
		var (
			d         ir.DispatchRecord
			key       int64
			now, last int64
		)
		if err := rows.Scan(&d.RunID, &d.Seq, &d.Ordinal, &key, &d.ExpressionName, &d.Priority, &now, &last); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		d.ExpressionKey = keyFromDB[ir.ExpressionKey](key)
		var err error
		if d.Now, err = unmarshalTernary(now); err != nil {
			return nil, fmt.Errorf("scan dispatch now: %w", err)
		}
		if d.Last, err = unmarshalTernary(last); err != nil {
			return nil, fmt.Errorf("scan dispatch last: %w", err)
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return dispatches, nil
}

// ReadStatuses returns the status snapshots of one tick ordered by name,
// then key.
func (s *Store) ReadStatuses(ctx context.Context, runID string, seq int64) ([]ir.StatusSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, key, name, format, value
		FROM statuses
		WHERE run_id = ? AND seq = ?
		ORDER BY name COLLATE BINARY ASC, key ASC
	`, runID, seq)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	statuses := []ir.StatusSnapshot{}
	for rows.Next() {
		var (
			st  ir.StatusSnapshot
			key int64
		)
		if err := rows.Scan(&st.RunID, &st.Seq, &key, &st.Name, &st.Format, &st.Value); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		st.Key = keyFromDB[ir.StatusKey](key)
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return statuses, nil
}
