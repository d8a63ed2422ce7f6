package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxLabelLength is the longest accepted snapshot label, in characters.
const MaxLabelLength = 100

const snapshotColumns = `id, tool_id, html_content, snapshot_type, name, created_at`

func scanSnapshot(r rowScanner) (Snapshot, error) {
	var sn Snapshot
	var kind, createdAt string
	var label sql.NullString
	if err := r.Scan(&sn.ID, &sn.ToolID, &sn.Content, &kind, &label, &createdAt); err != nil {
		return Snapshot{}, err
	}
	k, err := ParseSnapshotKind(kind)
	if err != nil {
		return Snapshot{}, err
	}
	sn.Kind = k
	if label.Valid {
		v := label.String
		sn.Label = &v
	}
	if sn.CreatedAt, err = parseTime(createdAt); err != nil {
		return Snapshot{}, fmt.Errorf("parsing created_at for snapshot %s: %w", sn.ID, err)
	}
	return sn, nil
}

// NormalizeLabel trims the label and maps empty to nil.
func NormalizeLabel(label *string) (*string, error) {
	if label == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*label)
	if v == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(v) > MaxLabelLength {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidLabel, MaxLabelLength)
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return nil, fmt.Errorf("%w: contains control characters", ErrInvalidLabel)
		}
	}
	return &v, nil
}

// CreateSnapshot records content as a new snapshot of the tool. Retention is
// enforced in the same transaction before the insert, so the tool never has
// more than MaxSnapshots snapshots once the call returns.
func (s *Store) CreateSnapshot(ctx context.Context, toolID string, content string, kind SnapshotKind, label *string) (Snapshot, error) {
	if kind != KindAuto && kind != KindManual {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrInvalidKind, int(kind))
	}
	if len(content) > s.maxSnapshotBytes {
		return Snapshot{}, &PayloadTooLargeError{Size: len(content), Limit: s.maxSnapshotBytes}
	}
	label, err := NormalizeLabel(label)
	if err != nil {
		return Snapshot{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Snapshot{}, fmt.Errorf("generating snapshot id: %w", err)
	}

	now := s.now()
	sn := Snapshot{
		ID:        id.String(),
		ToolID:    toolID,
		Content:   content,
		Kind:      kind,
		Label:     label,
		CreatedAt: now.UTC(),
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTool(ctx, tx, toolID); err != nil {
			return err
		}
		if _, err := enforceRetention(ctx, tx, toolID, s.maxSnapshots-1); err != nil {
			return err
		}
		var labelArg any
		if label != nil {
			labelArg = *label
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tool_snapshots (id, tool_id, html_content, snapshot_type, name, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sn.ID, toolID, content, kind.String(), labelArg, formatTime(now),
		)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return sn, nil
}

// enforceRetention deletes the oldest snapshots of toolID until at most keep
// remain. Ties on created_at are broken by insertion order.
func enforceRetention(ctx context.Context, tx *sql.Tx, toolID string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_snapshots WHERE tool_id = ?`, toolID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	excess := count - keep
	if excess <= 0 {
		return 0, nil
	}
	_, err := tx.ExecContext(ctx, `
		DELETE FROM tool_snapshots WHERE seq IN (
			SELECT seq FROM tool_snapshots WHERE tool_id = ?
			ORDER BY created_at ASC, seq ASC LIMIT ?
		)`, toolID, excess,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return excess, nil
}

// EnforceRetention prunes the tool's snapshots down to the configured limit
// and reports how many were removed.
func (s *Store) EnforceRetention(ctx context.Context, toolID string) (int, error) {
	var removed int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = enforceRetention(ctx, tx, toolID, s.maxSnapshots)
		return err
	})
	return removed, err
}

// ListSnapshots returns up to limit snapshots of the tool, newest first.
// A limit of zero or less means 100.
func (s *Store) ListSnapshots(ctx context.Context, toolID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM tool_snapshots
		WHERE tool_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, toolID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Snapshot{}
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sn)
	}
	return results, rows.Err()
}

// GetSnapshot returns the snapshot only if it belongs to toolID. A snapshot
// owned by another tool is reported as ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, toolID, snapshotID string) (Snapshot, error) {
	sn, err := scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM tool_snapshots WHERE id = ? AND tool_id = ?`,
		snapshotID, toolID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	return sn, err
}

// DeleteSnapshot removes one snapshot, subject to the same ownership check
// as GetSnapshot, and returns what was deleted.
func (s *Store) DeleteSnapshot(ctx context.Context, toolID, snapshotID string) (Snapshot, error) {
	var deleted Snapshot
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sn, err := scanSnapshot(tx.QueryRowContext(ctx,
			`SELECT `+snapshotColumns+` FROM tool_snapshots WHERE id = ? AND tool_id = ?`,
			snapshotID, toolID,
		))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tool_snapshots WHERE id = ?`, snapshotID); err != nil {
			return err
		}
		deleted = sn
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return deleted, nil
}

// DeleteAllSnapshots removes every snapshot of the tool and returns the count.
func (s *Store) DeleteAllSnapshots(ctx context.Context, toolID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_snapshots WHERE tool_id = ?`, toolID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// CountSnapshots returns how many snapshots the tool has.
func (s *Store) CountSnapshots(ctx context.Context, toolID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tool_snapshots WHERE tool_id = ?`, toolID).Scan(&n)
	return n, err
}
