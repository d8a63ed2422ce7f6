package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// EnqueueJob adds a pending job. MaxAttempts defaults to 3 and RunAfter to now.
func (s *Store) EnqueueJob(ctx context.Context, job Job) error {
	now := s.timestamp()
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = formatTime(job.RunAfter)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob marks the oldest runnable job of one of the given types as
// running and returns it. It returns nil when nothing is due.
func (s *Store) ClaimNextJob(ctx context.Context, types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := s.timestamp()
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	var claimed *Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var j Job
		var runAfter, createdAt, updatedAt string
		var lastError sql.NullString
		err := tx.QueryRowContext(ctx, query, args...).Scan(
			&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
			&runAfter, &createdAt, &updatedAt, &lastError,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("selecting next job: %w", err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
		if err != nil {
			return fmt.Errorf("updating job status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking updated job rows: %w", err)
		}
		if n != 1 {
			return nil
		}

		j.Status = "running"
		j.LastError = lastError.String
		if j.RunAfter, err = parseTime(runAfter); err != nil {
			return fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
		}
		if j.CreatedAt, err = parseTime(createdAt); err != nil {
			return fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
		}
		if j.UpdatedAt, err = parseTime(now); err != nil {
			return fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
		}
		claimed = &j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) CompleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, s.timestamp(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. The job is retried with exponential
// backoff until MaxAttempts is reached, then parked as failed.
func (s *Store) FailJob(ctx context.Context, id string, errMsg string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var attempts, maxAttempts int
		err := tx.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		attempts++

		if attempts >= maxAttempts {
			_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
				attempts, errMsg, formatTime(now), id)
		} else {
			backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
			_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
				attempts, errMsg, formatTime(now.Add(backoff)), formatTime(now), id)
		}
		return err
	})
}

// CountJobs returns the number of jobs in the given status.
func (s *Store) CountJobs(ctx context.Context, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = ?`, status).Scan(&n)
	return n, err
}
