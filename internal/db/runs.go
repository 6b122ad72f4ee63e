package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/radar-licitacoes/internal/models"
)

// RunStore records scan metadata in scan_runs.
type RunStore struct {
	pool *pgxpool.Pool
}

func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Kind   string
	Status string
	Caller string
	Limit  int
}

const runCols = `run_id, kind, term, caller, status, windows, pages_scanned, records_scanned,
	matched, found, error, params, started_at, completed_at`

// StartRun inserts run in the running state.
func (s *RunStore) StartRun(ctx context.Context, run models.ScanRun) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to encode run params: %w", err)
	}
	if run.Params == nil {
		params = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO scan_runs (run_id, kind, term, caller, status, params, started_at)
		VALUES ($1, $2, $3, $4, 'running', $5, $6)
	`, run.ID, run.Kind, run.Term, run.Caller, params, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scan run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and counters of run.
func (s *RunStore) FinishRun(ctx context.Context, run models.ScanRun) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scan_runs
		SET status = $2, windows = $3, pages_scanned = $4, records_scanned = $5,
			matched = $6, found = $7, error = $8, completed_at = COALESCE($9, NOW())
		WHERE run_id = $1
	`, run.ID, run.Status, run.Windows, run.PagesScanned, run.RecordsScanned,
		run.Matched, run.Found, run.Error, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update scan run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan run %s not found", run.ID)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.ScanRun, error) {
	query, args := buildRunsQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs failed: %w", err)
	}
	defer rows.Close()

	runs := []models.ScanRun{}
	for rows.Next() {
		var r models.ScanRun
		var paramsRaw []byte
		if err := rows.Scan(
			&r.ID, &r.Kind, &r.Term, &r.Caller, &r.Status, &r.Windows, &r.PagesScanned, &r.RecordsScanned,
			&r.Matched, &r.Found, &r.Error, &paramsRaw, &r.StartedAt, &r.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if len(paramsRaw) > 0 {
			_ = json.Unmarshal(paramsRaw, &r.Params)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func buildRunsQuery(filter RunFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	argIdx := 1

	if filter.Kind != "" {
		conds = append(conds, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, filter.Kind)
		argIdx++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Caller != "" {
		conds = append(conds, fmt.Sprintf("caller = $%d", argIdx))
		args = append(args, filter.Caller)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	query := "SELECT " + runCols + " FROM scan_runs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	return query, args
}
