package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"curvrank/internal/services"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, command, config_fingerprint, status, started_at, finished_at, error_message`

// BeginRun inserts a run in the running state.
func (s *Store) BeginRun(ctx context.Context, id, command, fingerprint string) (*Run, error) {
	run := &Run{
		ID:                id,
		Command:           command,
		ConfigFingerprint: fingerprint,
		Status:            StatusRunning,
		StartedAt:         time.Now().UTC(),
	}
	_, err := s.exec(ctx,
		`INSERT INTO runs (id, command, config_fingerprint, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.ConfigFingerprint, run.Status, run.StartedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the terminal status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status Status, message string) error {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		status, time.Now().UTC().Format(timeLayout), nullString(message), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "ledger", "finish run", id, nil)
	}
	return nil
}

// RecordStage stores or replaces the counts of one stage.
func (s *Store) RecordStage(ctx context.Context, runID string, c StageCount) error {
	_, err := s.exec(ctx,
		`INSERT INTO stage_counts (run_id, stage, device, items, done, failed, cached, cached_failed, duration_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(run_id, stage) DO UPDATE SET
            device = excluded.device, items = excluded.items, done = excluded.done,
            failed = excluded.failed, cached = excluded.cached,
            cached_failed = excluded.cached_failed, duration_ms = excluded.duration_ms`,
		runID, c.Stage, c.Device, c.Items, c.Done, c.Failed, c.Cached, c.CachedFailed, c.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record stage %s: %w", c.Stage, err)
	}
	return nil
}

// RecordAccuracy stores the top-k accuracies of one method on one split.
func (s *Store) RecordAccuracy(ctx context.Context, runID, method string, split int, topK map[int]float64) error {
	for k, value := range topK {
		_, err := s.exec(ctx,
			`INSERT OR REPLACE INTO accuracy (run_id, method, split, k, value) VALUES (?, ?, ?, ?, ?)`,
			runID, method, split, k, value,
		)
		if err != nil {
			return fmt.Errorf("record accuracy: %w", err)
		}
	}
	return nil
}

// MarkInterrupted moves runs still marked running to interrupted. It is
// called while holding the workspace lock, so no such run is alive.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE status = ?`,
		StatusInterrupted, time.Now().UTC().Format(timeLayout), InterruptedReason, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Runs lists the newest runs first; limit <= 0 lists all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, services.Wrap(services.ErrNotFound, "ledger", "get run", id, nil)
	}
	return run, err
}

// Latest returns the most recently started run.
func (s *Store) Latest(ctx context.Context) (Run, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, services.Wrap(services.ErrNotFound, "ledger", "latest run", "no runs recorded", nil)
	}
	return runs[0], nil
}

// Stages returns a run's stage counts in insertion order.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, device, items, done, failed, cached, cached_failed, duration_ms
         FROM stage_counts WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var out []StageCount
	for rows.Next() {
		var c StageCount
		var ms int64
		if err := rows.Scan(&c.Stage, &c.Device, &c.Items, &c.Done, &c.Failed, &c.Cached, &c.CachedFailed, &ms); err != nil {
			return nil, err
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// Accuracies returns a run's recorded accuracies ordered by method, split
// and k.
func (s *Store) Accuracies(ctx context.Context, runID string) ([]Accuracy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method, split, k, value FROM accuracy WHERE run_id = ? ORDER BY method, split, k`, runID)
	if err != nil {
		return nil, fmt.Errorf("list accuracy: %w", err)
	}
	defer rows.Close()

	var out []Accuracy
	for rows.Next() {
		var a Accuracy
		if err := rows.Scan(&a.Method, &a.Split, &a.K, &a.Value); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		status   string
		started  string
		finished sql.NullString
		message  sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Command, &run.ConfigFingerprint, &status, &started, &finished, &message); err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	run.ErrorMessage = message.String
	if t, err := time.Parse(timeLayout, started); err == nil {
		run.StartedAt = t
	}
	if finished.Valid {
		if t, err := time.Parse(timeLayout, finished.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return run, nil
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
