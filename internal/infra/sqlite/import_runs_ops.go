package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Import run lifecycle mirrors the usual RUNNING → SUCCESS / FAILED shape.
const (
	importRunRunning = "RUNNING"
	importRunSuccess = "SUCCESS"
	importRunFailed  = "FAILED"
)

// StartImportRun records the start of a CSV import and returns its run ID.
func (s *Store) StartImportRun(ctx context.Context, fileName string) (string, error) {
	runID := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (import_run_id, file_name, started_ts, status)
		VALUES (?, ?, ?, ?)
	`, runID, fileName, time.Now().Format(time.RFC3339), importRunRunning)
	if err != nil {
		return "", fmt.Errorf("StartImportRun: insert: %w", err)
	}
	return runID, nil
}

// MarkImportRunSucceeded finishes an import run with its row counters.
func (s *Store) MarkImportRunSucceeded(ctx context.Context, runID string, imported, skipped, errorCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_runs
		SET status = ?, finished_ts = ?, imported = ?, skipped = ?, error_count = ?
		WHERE import_run_id = ?
	`, importRunSuccess, time.Now().Format(time.RFC3339), imported, skipped, errorCount, runID)
	if err != nil {
		return fmt.Errorf("MarkImportRunSucceeded: update: %w", err)
	}
	return nil
}

// MarkImportRunFailed finishes an import run with an error message.
func (s *Store) MarkImportRunFailed(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
		const maxLen = 2000
		if len(msg) > maxLen {
			msg = msg[:maxLen]
		}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE import_runs
		SET status = ?, finished_ts = ?, error_message = ?
		WHERE import_run_id = ?
	`, importRunFailed, time.Now().Format(time.RFC3339), msg, runID)
	if err != nil {
		return fmt.Errorf("MarkImportRunFailed: update: %w", err)
	}
	return nil
}
