package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recordColumns = "unit_id, status, attempt, infra_attempt, verdict, feedback, fingerprint, error_message, run_id, created_at, updated_at"

// Upsert inserts or replaces the checkpoint for a unit in a single statement.
// The write is the checkpoint boundary: once it returns, a restart will see
// exactly this state.
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return errors.New("record is nil")
	}
	if record.UnitID == "" {
		return errors.New("record unit id is empty")
	}
	if _, ok := statusSet[record.Status]; !ok {
		return fmt.Errorf("unknown status %q", record.Status)
	}

	now := time.Now().UTC()
	record.UpdatedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO unit_checkpoints (
            unit_id, status, attempt, infra_attempt, verdict, feedback,
            fingerprint, error_message, run_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(unit_id) DO UPDATE SET
            status = excluded.status,
            attempt = excluded.attempt,
            infra_attempt = excluded.infra_attempt,
            verdict = excluded.verdict,
            feedback = excluded.feedback,
            fingerprint = excluded.fingerprint,
            error_message = excluded.error_message,
            run_id = excluded.run_id,
            updated_at = excluded.updated_at`,
		record.UnitID,
		record.Status,
		record.Attempt,
		record.InfraAttempt,
		nullableString(record.Verdict),
		nullableString(record.Feedback),
		nullableString(record.Fingerprint),
		nullableString(record.ErrorMessage),
		nullableString(record.RunID),
		record.CreatedAt.Format(time.RFC3339Nano),
		record.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Get fetches the checkpoint for a unit. A missing unit returns (nil, nil).
func (s *Store) Get(ctx context.Context, unitID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM unit_checkpoints WHERE unit_id = ?`, unitID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return record, nil
}

// List returns all checkpoints ordered by unit ID.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM unit_checkpoints ORDER BY unit_id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return records, nil
}

// RollbackInFlight rewinds any record left in an in-flight status by a
// previous run back to unstarted, keeping its attempt counters and feedback.
// It returns the unit IDs that were rewound.
func (s *Store) RollbackInFlight(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT unit_id FROM unit_checkpoints WHERE status IN (?, ?) ORDER BY unit_id`,
		StatusGenerating,
		StatusValidating,
	)
	if err != nil {
		return nil, fmt.Errorf("find in-flight checkpoints: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan in-flight unit: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate in-flight units: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.execWithRetry(
		ctx,
		`UPDATE unit_checkpoints SET status = ?, updated_at = ? WHERE status IN (?, ?)`,
		StatusUnstarted,
		now,
		StatusGenerating,
		StatusValidating,
	)
	if err != nil {
		return nil, fmt.Errorf("rollback in-flight checkpoints: %w", err)
	}
	return ids, nil
}

// ResetUnit deletes the checkpoint for a unit so it will be reprocessed.
func (s *Store) ResetUnit(ctx context.Context, unitID string) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM unit_checkpoints WHERE unit_id = ?`, unitID)
	if err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	return nil
}

// ResetAll deletes every checkpoint.
func (s *Store) ResetAll(ctx context.Context) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM unit_checkpoints`)
	if err != nil {
		return fmt.Errorf("reset checkpoints: %w", err)
	}
	return nil
}

// Summarize aggregates checkpoint counts per status.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM unit_checkpoints GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize checkpoints: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var statusStr string
		var count int
		if err := rows.Scan(&statusStr, &count); err != nil {
			return Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		summary.Total += count
		switch Status(statusStr) {
		case StatusUnstarted:
			summary.Unstarted = count
		case StatusGenerating:
			summary.Generating = count
		case StatusValidating:
			summary.Validating = count
		case StatusVerified:
			summary.Verified = count
		case StatusFailed:
			summary.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate summary rows: %w", err)
	}
	return summary, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		unitID       string
		statusStr    string
		attempt      int
		infraAttempt int
		verdict      sql.NullString
		feedback     sql.NullString
		fingerprint  sql.NullString
		errorMessage sql.NullString
		runID        sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&unitID,
		&statusStr,
		&attempt,
		&infraAttempt,
		&verdict,
		&feedback,
		&fingerprint,
		&errorMessage,
		&runID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		UnitID:       unitID,
		Status:       Status(statusStr),
		Attempt:      attempt,
		InfraAttempt: infraAttempt,
		Verdict:      verdict.String,
		Feedback:     feedback.String,
		Fingerprint:  fingerprint.String,
		ErrorMessage: errorMessage.String,
		RunID:        runID.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
