package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const toolColumns = `id, name, description, tags, tool_type, filepath, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTool(r rowScanner) (Tool, error) {
	var t Tool
	var tags, createdAt, updatedAt string
	if err := r.Scan(&t.ID, &t.Name, &t.Description, &tags, &t.ToolType, &t.Filepath, &t.Version, &createdAt, &updatedAt); err != nil {
		return Tool{}, err
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return Tool{}, fmt.Errorf("parsing tags for tool %s: %w", t.ID, err)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Tool{}, fmt.Errorf("parsing created_at for tool %s: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Tool{}, fmt.Errorf("parsing updated_at for tool %s: %w", t.ID, err)
	}
	return t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateTool inserts a new tool row at version 1. ID and Filepath must be
// set by the caller.
func (s *Store) CreateTool(ctx context.Context, t Tool) (Tool, error) {
	if t.ID == "" || t.Filepath == "" {
		return Tool{}, errors.New("tool id and filepath are required")
	}
	if t.ToolType == "" {
		t.ToolType = ToolTypeHTML
	}
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return Tool{}, fmt.Errorf("encoding tags: %w", err)
	}
	now := s.now()
	t.Version = 1
	t.CreatedAt = now.UTC()
	t.UpdatedAt = now.UTC()
	if t.Tags == nil {
		t.Tags = []string{}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tools (id, name, description, tags, tool_type, filepath, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, tags, t.ToolType, t.Filepath, t.Version,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return Tool{}, err
	}
	return t, nil
}

func (s *Store) GetTool(ctx context.Context, id string) (Tool, error) {
	return getTool(ctx, s.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTool(ctx context.Context, q queryRower, id string) (Tool, error) {
	t, err := scanTool(q.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Tool{}, ErrNotFound
	}
	return t, err
}

// ListOptions filters and pages ListTools and SearchTools.
type ListOptions struct {
	Tag    string
	Limit  int
	Offset int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return 100
	}
	if o.Limit > 500 {
		return 500
	}
	return o.Limit
}

// ListTools returns tools, most recently updated first.
func (s *Store) ListTools(ctx context.Context, opts ListOptions) ([]Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools`
	var args []any
	if opts.Tag != "" {
		query += ` WHERE EXISTS (SELECT 1 FROM json_each(tools.tags) WHERE json_each.value = ?)`
		args = append(args, opts.Tag)
	}
	query += ` ORDER BY updated_at DESC, seq DESC LIMIT ? OFFSET ?`
	args = append(args, opts.limit(), opts.Offset)
	return s.queryTools(ctx, query, args...)
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (s *Store) queryTools(ctx context.Context, query string, args ...any) ([]Tool, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Tool{}
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// TagCount is a tag together with the number of tools carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// SuggestTags returns tags starting with prefix, most used first.
func (s *Store) SuggestTags(ctx context.Context, prefix string, limit int) ([]TagCount, error) {
	if limit <= 0 {
		limit = 10
	}
	escaped := escapeLike(prefix)
	rows, err := s.db.QueryContext(ctx, `
		SELECT json_each.value AS tag, COUNT(*) AS n
		FROM tools, json_each(tools.tags)
		WHERE json_each.value LIKE ? ESCAPE '\'
		GROUP BY tag
		ORDER BY n DESC, tag ASC
		LIMIT ?`, escaped+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []TagCount{}
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, err
		}
		results = append(results, tc)
	}
	return results, rows.Err()
}

// ApplyUpdate loads the tool, checks expectedVersion against the stored
// version, applies mutate to a copy and persists it with version+1. ID,
// Filepath, Version and the timestamps are not writable through mutate.
func (s *Store) ApplyUpdate(ctx context.Context, id string, expectedVersion int, mutate func(*Tool) error) (Tool, error) {
	var updated Tool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getTool(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return &OptimisticLockError{CurrentVersion: current.Version, ExpectedVersion: expectedVersion}
		}

		next := current
		next.Tags = append([]string(nil), current.Tags...)
		if mutate != nil {
			if err := mutate(&next); err != nil {
				return err
			}
		}
		next.ID = current.ID
		next.Filepath = current.Filepath
		next.CreatedAt = current.CreatedAt
		next.Version = current.Version + 1
		now := s.now()
		next.UpdatedAt = now.UTC()
		if next.ToolType == "" {
			next.ToolType = current.ToolType
		}
		if next.Tags == nil {
			next.Tags = []string{}
		}

		tags, err := encodeTags(next.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE tools SET name = ?, description = ?, tags = ?, tool_type = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			next.Name, next.Description, tags, next.ToolType, next.Version, formatTime(now),
			id, expectedVersion,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			var version int
			if err := tx.QueryRowContext(ctx, `SELECT version FROM tools WHERE id = ?`, id).Scan(&version); err != nil {
				return fmt.Errorf("re-reading version of tool %s: %w", id, err)
			}
			if version != expectedVersion {
				return &OptimisticLockError{CurrentVersion: version, ExpectedVersion: expectedVersion}
			}
			return fmt.Errorf("updating tool %s: no row changed at version %d", id, version)
		}
		updated = next
		return nil
	})
	if err != nil {
		return Tool{}, err
	}
	return updated, nil
}

// BumpVersion increments the tool's version without checking it. It is for
// writes that do not come from a caller's copy of the tool, such as a
// snapshot restore.
func (s *Store) BumpVersion(ctx context.Context, id string) (Tool, error) {
	var updated Tool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getTool(ctx, tx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE tools SET version = version + 1, updated_at = ? WHERE id = ?`,
			formatTime(now), id,
		); err != nil {
			return err
		}
		current.Version++
		current.UpdatedAt = now.UTC()
		updated = current
		return nil
	})
	if err != nil {
		return Tool{}, err
	}
	return updated, nil
}

// DeleteTool removes the tool row and all of its snapshots in one
// transaction. It returns the deleted row and how many snapshots went with it.
func (s *Store) DeleteTool(ctx context.Context, id string) (Tool, int, error) {
	var deleted Tool
	var snapshots int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getTool(ctx, tx, id)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tool_snapshots WHERE tool_id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting snapshots: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting tool: %w", err)
		}
		deleted = t
		snapshots = int(n)
		return nil
	})
	if err != nil {
		return Tool{}, 0, err
	}
	return deleted, snapshots, nil
}
