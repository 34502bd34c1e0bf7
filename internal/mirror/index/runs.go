package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoRuns is returned by LatestRunID on an empty ledger
var ErrNoRuns = errors.New("no runs recorded")

func (d *DB) BeginRun(ctx context.Context, runID string, shares []string, startedAt time.Time) error {
	encoded, err := json.Marshal(shares)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, shares, status) VALUES (?, ?, ?, ?)
	`, runID, startedAt.UnixMilli(), string(encoded), RunStatusRunning)
	return err
}

func (d *DB) FinishRun(ctx context.Context, runID, status string, finishedAt time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ? WHERE id = ?
	`, status, finishedAt.UnixMilli(), runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

func (d *DB) RecordShare(ctx context.Context, rec ShareRecord) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO share_results (run_id, share_id, status, files, bytes, error_code, error_message, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, share_id) DO UPDATE SET
			status=excluded.status,
			files=excluded.files,
			bytes=excluded.bytes,
			error_code=excluded.error_code,
			error_message=excluded.error_message,
			finished_at=excluded.finished_at
	`, rec.RunID, rec.ShareID, rec.Status, rec.Files, rec.Bytes, nullString(rec.ErrorCode), nullString(rec.ErrorMessage), rec.FinishedAt.UnixMilli())
	return err
}

// RecordResults stores the task results of one share in a single transaction
func (d *DB) RecordResults(ctx context.Context, records []TaskRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO task_results (
			run_id, share_id, item_id, rel_path, target_path, size, outcome, bytes, error_code, error, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, share_id, item_id) DO UPDATE SET
			rel_path=excluded.rel_path,
			target_path=excluded.target_path,
			size=excluded.size,
			outcome=excluded.outcome,
			bytes=excluded.bytes,
			error_code=excluded.error_code,
			error=excluded.error,
			finished_at=excluded.finished_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err = stmt.ExecContext(ctx,
			rec.RunID, rec.ShareID, rec.ItemID, rec.RelPath, rec.TargetPath, rec.Size, rec.Outcome, rec.Bytes,
			nullString(rec.ErrorCode), nullString(rec.ErrorMessage), rec.FinishedAt.UnixMilli(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first
func (d *DB) ListRuns(ctx context.Context, limit int) (runs []RunSummary, err error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, r.finished_at, r.shares, r.status,
		       COALESCE(SUM(CASE WHEN t.outcome = 'downloaded' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN t.outcome = 'skipped' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN t.outcome = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(t.bytes), 0)
		FROM runs r
		LEFT JOIN task_results t ON t.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var run RunSummary
		var started int64
		var finished sql.NullInt64
		var shares string
		if err := rows.Scan(&run.ID, &started, &finished, &shares, &run.Status,
			&run.Downloaded, &run.Skipped, &run.Failed, &run.Bytes); err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(started).UTC()
		if finished.Valid {
			t := time.UnixMilli(finished.Int64).UTC()
			run.FinishedAt = &t
		}
		if err := json.Unmarshal([]byte(shares), &run.Shares); err != nil {
			return nil, fmt.Errorf("run %s: decode shares: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// LatestRunID returns the ID of the most recently started run
func (d *DB) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx, `
		SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	return id, err
}

// ListFailures returns the failed tasks of a run
func (d *DB) ListFailures(ctx context.Context, runID string) (records []TaskRecord, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT run_id, share_id, item_id, rel_path, target_path, size, outcome, bytes, error_code, error, finished_at
		FROM task_results
		WHERE run_id = ? AND outcome = 'failed'
		ORDER BY share_id, rel_path
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var rec TaskRecord
		var code, msg sql.NullString
		var finished int64
		if err := rows.Scan(&rec.RunID, &rec.ShareID, &rec.ItemID, &rec.RelPath, &rec.TargetPath, &rec.Size,
			&rec.Outcome, &rec.Bytes, &code, &msg, &finished); err != nil {
			return nil, err
		}
		rec.ErrorCode = code.String
		rec.ErrorMessage = msg.String
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ListShareResults returns the per-share outcomes of a run
func (d *DB) ListShareResults(ctx context.Context, runID string) (records []ShareRecord, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT run_id, share_id, status, files, bytes, error_code, error_message, finished_at
		FROM share_results WHERE run_id = ? ORDER BY share_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var rec ShareRecord
		var code, msg sql.NullString
		var finished int64
		if err := rows.Scan(&rec.RunID, &rec.ShareID, &rec.Status, &rec.Files, &rec.Bytes, &code, &msg, &finished); err != nil {
			return nil, err
		}
		rec.ErrorCode = code.String
		rec.ErrorMessage = msg.String
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
