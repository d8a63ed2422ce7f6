package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidLabel is returned for snapshot labels that are too long or
// contain control characters.
var ErrInvalidLabel = errors.New("invalid snapshot label")

// ErrInvalidKind is returned when a snapshot kind is neither auto nor manual.
var ErrInvalidKind = errors.New("invalid snapshot kind")

// OptimisticLockError reports a version mismatch between the caller's view
// of a tool and the stored row.
type OptimisticLockError struct {
	CurrentVersion  int
	ExpectedVersion int
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, current %d", e.ExpectedVersion, e.CurrentVersion)
}

// PayloadTooLargeError is returned when snapshot content exceeds the
// configured byte limit.
type PayloadTooLargeError struct {
	Size  int
	Limit int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("snapshot content is %d bytes, limit is %d", e.Size, e.Limit)
}

const (
	ToolTypeHTML  = "html"
	ToolTypeReact = "react"
)

// Tool is the metadata row for a single stored HTML tool. The content lives
// on disk at Filepath, relative to the tools directory.
type Tool struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	ToolType    string    `json:"tool_type"`
	Filepath    string    `json:"filepath"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SnapshotKind distinguishes snapshots taken automatically before a content
// change from those a user asked for.
type SnapshotKind int

const (
	KindAuto SnapshotKind = iota + 1
	KindManual
)

func (k SnapshotKind) String() string {
	switch k {
	case KindAuto:
		return "auto"
	case KindManual:
		return "manual"
	default:
		return fmt.Sprintf("SnapshotKind(%d)", int(k))
	}
}

// ParseSnapshotKind maps the stored text form back to a SnapshotKind.
func ParseSnapshotKind(s string) (SnapshotKind, error) {
	switch s {
	case "auto":
		return KindAuto, nil
	case "manual":
		return KindManual, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k SnapshotKind) MarshalText() ([]byte, error) {
	if k != KindAuto && k != KindManual {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *SnapshotKind) UnmarshalText(b []byte) error {
	v, err := ParseSnapshotKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Snapshot is an immutable copy of a tool's content at a point in time.
type Snapshot struct {
	ID        string       `json:"id"`
	ToolID    string       `json:"tool_id"`
	Content   string       `json:"html_content"`
	Kind      SnapshotKind `json:"snapshot_type"`
	Label     *string      `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
