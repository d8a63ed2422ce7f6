// Package tools coordinates tool content on disk with tool metadata and
// snapshots in the database. Content changes snapshot the previous content,
// replace the file atomically and then commit metadata through the version
// guard, in that order.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/kalambet/toolshelf/internal/detect"
	"github.com/kalambet/toolshelf/internal/storage"
	"github.com/kalambet/toolshelf/internal/toolfs"
)

// JobRemoveToolFiles is the job type used to retry a failed directory removal.
const JobRemoveToolFiles = "remove_tool_files"

// PreRestoreLabel labels the snapshot taken of the content a restore replaced.
const PreRestoreLabel = "pre-restore autosave"

// ErrContentRequired is returned when a tool would be created without content.
var ErrContentRequired = &ValidationError{Field: "html_content", Message: "must not be empty"}

// Service implements tool operations on top of the store and the tools
// directory.
type Service struct {
	store   *storage.Store
	files   *toolfs.FS
	remover dirRemover
	logger  *slog.Logger
}

// dirRemover deletes a tool's directory given its stored location.
type dirRemover interface {
	RemoveToolDir(loc string) error
}

// NewService creates a Service.
func NewService(store *storage.Store, files *toolfs.FS) *Service {
	return &Service{
		store:   store,
		files:   files,
		remover: files,
		logger:  slog.Default().With("component", "tools"),
	}
}

// CreateInput describes a new tool. An empty ToolType is detected from
// Content.
type CreateInput struct {
	Name        string
	Description string
	Tags        []string
	ToolType    string
	Content     string
}

// UpdateInput replaces a tool's metadata. Content is optional; nil leaves the
// file untouched. An empty ToolType keeps the current type.
type UpdateInput struct {
	Version     int
	Name        string
	Description string
	Tags        []string
	ToolType    string
	Content     *string
}

// RemoveFilesPayload is the payload of a remove_tool_files job.
type RemoveFilesPayload struct {
	Filepath string `json:"filepath"`
}

func renderContent(toolType, content string) []byte {
	if toolType == storage.ToolTypeReact && !detect.IsWrapped(content) {
		return []byte(detect.WrapReact(content))
	}
	return []byte(content)
}

// Create writes the tool's file and then inserts its row. If the insert
// fails the file is removed again.
func (s *Service) Create(ctx context.Context, in CreateInput) (storage.Tool, error) {
	meta, err := normalizeMetadata(in.Name, in.Description, in.Tags)
	if err != nil {
		return storage.Tool{}, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return storage.Tool{}, ErrContentRequired
	}
	toolType := in.ToolType
	if toolType == "" {
		toolType = detect.Detect(in.Content)
	}
	if !validToolType(toolType) {
		return storage.Tool{}, &ValidationError{Field: "tool_type", Message: fmt.Sprintf("unknown tool type %q", toolType)}
	}

	id := uuid.NewString()
	loc := toolfs.Location(id)
	if err := s.files.Write(loc, renderContent(toolType, in.Content)); err != nil {
		return storage.Tool{}, fmt.Errorf("writing tool content: %w", err)
	}

	tool, err := s.store.CreateTool(ctx, storage.Tool{
		ID:          id,
		Name:        meta.name,
		Description: meta.description,
		Tags:        meta.tags,
		ToolType:    toolType,
		Filepath:    loc,
	})
	if err != nil {
		if rmErr := s.files.RemoveToolDir(loc); rmErr != nil {
			s.logger.Warn("failed to remove content of uncreated tool", "tool_id", id, "error", rmErr)
		}
		return storage.Tool{}, fmt.Errorf("saving tool: %w", err)
	}

	s.logger.Info("tool created", "tool_id", id, "tool_type", toolType)
	return tool, nil
}

// Get returns the tool's metadata.
func (s *Service) Get(ctx context.Context, id string) (storage.Tool, error) {
	return s.store.GetTool(ctx, id)
}

// ReadContent returns the tool's current file content. A missing file is
// reported as storage.ErrNotFound.
func (s *Service) ReadContent(ctx context.Context, id string) (storage.Tool, []byte, error) {
	tool, err := s.store.GetTool(ctx, id)
	if err != nil {
		return storage.Tool{}, nil, err
	}
	b, err := s.files.Read(tool.Filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return tool, nil, fmt.Errorf("content of tool %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return tool, nil, err
	}
	return tool, b, nil
}

func checkVersion(tool storage.Tool, expected int) error {
	if tool.Version != expected {
		return &storage.OptimisticLockError{CurrentVersion: tool.Version, ExpectedVersion: expected}
	}
	return nil
}

// Update replaces the tool's metadata and, when in.Content is set, its
// content. A stale in.Version is rejected before the file is touched; a
// conflict that appears after the file write is still reported, with the
// new content already in place.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (storage.Tool, error) {
	meta, err := normalizeMetadata(in.Name, in.Description, in.Tags)
	if err != nil {
		return storage.Tool{}, err
	}
	if in.ToolType != "" && !validToolType(in.ToolType) {
		return storage.Tool{}, &ValidationError{Field: "tool_type", Message: fmt.Sprintf("unknown tool type %q", in.ToolType)}
	}

	current, err := s.store.GetTool(ctx, id)
	if err != nil {
		return storage.Tool{}, err
	}
	if err := checkVersion(current, in.Version); err != nil {
		return storage.Tool{}, err
	}
	toolType := in.ToolType
	if toolType == "" {
		toolType = current.ToolType
	}

	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return storage.Tool{}, ErrContentRequired
		}
		if err := s.replaceContent(ctx, current, renderContent(toolType, *in.Content)); err != nil {
			return storage.Tool{}, err
		}
	}

	updated, err := s.store.ApplyUpdate(ctx, id, in.Version, func(t *storage.Tool) error {
		t.Name = meta.name
		t.Description = meta.description
		t.Tags = meta.tags
		t.ToolType = toolType
		return nil
	})
	if err != nil {
		var lockErr *storage.OptimisticLockError
		if in.Content != nil && errors.As(err, &lockErr) {
			s.logger.Warn("content written but metadata update lost a version race",
				"tool_id", id, "expected_version", lockErr.ExpectedVersion, "current_version", lockErr.CurrentVersion)
		}
		return storage.Tool{}, err
	}
	return updated, nil
}

// UpdateContent replaces only the tool's content.
func (s *Service) UpdateContent(ctx context.Context, id string, content string, expectedVersion int) (storage.Tool, error) {
	if strings.TrimSpace(content) == "" {
		return storage.Tool{}, ErrContentRequired
	}
	current, err := s.store.GetTool(ctx, id)
	if err != nil {
		return storage.Tool{}, err
	}
	if err := checkVersion(current, expectedVersion); err != nil {
		return storage.Tool{}, err
	}
	if err := s.replaceContent(ctx, current, renderContent(current.ToolType, content)); err != nil {
		return storage.Tool{}, err
	}
	return s.store.ApplyUpdate(ctx, id, expectedVersion, nil)
}

// replaceContent snapshots the current file content if it differs from
// next, then atomically replaces the file. An oversize snapshot is skipped;
// any other snapshot failure aborts before the write.
func (s *Service) replaceContent(ctx context.Context, tool storage.Tool, next []byte) error {
	if _, err := s.files.Resolve(tool.Filepath); err != nil {
		return err
	}

	prev, err := s.files.Read(tool.Filepath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		prev = nil
	case err != nil:
		return fmt.Errorf("reading current content: %w", err)
	}

	if prev != nil && !bytes.Equal(prev, next) {
		_, err := s.store.CreateSnapshot(ctx, tool.ID, string(prev), storage.KindAuto, nil)
		var tooLarge *storage.PayloadTooLargeError
		switch {
		case errors.As(err, &tooLarge):
			s.logger.Warn("skipping auto snapshot", "tool_id", tool.ID, "size", tooLarge.Size, "limit", tooLarge.Limit)
		case err != nil:
			return fmt.Errorf("creating auto snapshot: %w", err)
		}
	}

	if err := s.files.Write(tool.Filepath, next); err != nil {
		return fmt.Errorf("writing tool content: %w", err)
	}
	return nil
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Tool     storage.Tool
	Restored storage.Snapshot
	// Backup is the snapshot of the replaced content, nil when there was
	// no prior content or it could not be saved.
	Backup *storage.Snapshot
}

// Restore writes a snapshot's content back to the tool's file. The replaced
// content is saved as an auto snapshot after the write succeeds; failing to
// save it does not undo the restore.
func (s *Service) Restore(ctx context.Context, id, snapshotID string) (RestoreResult, error) {
	tool, err := s.store.GetTool(ctx, id)
	if err != nil {
		return RestoreResult{}, err
	}
	sn, err := s.store.GetSnapshot(ctx, id, snapshotID)
	if err != nil {
		return RestoreResult{}, err
	}
	if _, err := s.files.Resolve(tool.Filepath); err != nil {
		return RestoreResult{}, err
	}

	prev, err := s.files.Read(tool.Filepath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		prev = nil
	case err != nil:
		return RestoreResult{}, fmt.Errorf("reading current content: %w", err)
	}

	if err := s.files.Write(tool.Filepath, renderContent(tool.ToolType, sn.Content)); err != nil {
		return RestoreResult{}, fmt.Errorf("writing restored content: %w", err)
	}

	result := RestoreResult{Restored: sn}
	if prev != nil {
		label := PreRestoreLabel
		backup, err := s.store.CreateSnapshot(ctx, id, string(prev), storage.KindAuto, &label)
		if err != nil {
			s.logger.Warn("restore succeeded but pre-restore snapshot failed", "tool_id", id, "error", err)
		} else {
			result.Backup = &backup
		}
	}

	// The restore supersedes any update committed since tool was read.
	updated, err := s.store.BumpVersion(ctx, id)
	if err != nil {
		return RestoreResult{}, err
	}
	result.Tool = updated

	s.logger.Info("snapshot restored", "tool_id", id, "snapshot_id", snapshotID)
	return result, nil
}

// CreateSnapshot records the tool's current content as a manual snapshot.
// Unlike auto snapshots, an oversize payload is an error here.
func (s *Service) CreateSnapshot(ctx context.Context, id string, label *string) (storage.Snapshot, error) {
	_, content, err := s.ReadContent(ctx, id)
	if err != nil {
		return storage.Snapshot{}, err
	}
	return s.store.CreateSnapshot(ctx, id, string(content), storage.KindManual, label)
}

// DeleteResult describes a completed delete.
type DeleteResult struct {
	Tool             storage.Tool
	SnapshotsDeleted int
	FilesRemoved     bool
}

// Delete removes the tool and its snapshots from the database, then removes
// its directory. A failed removal is queued for retry; the tool is gone
// either way.
func (s *Service) Delete(ctx context.Context, id string) (DeleteResult, error) {
	tool, n, err := s.store.DeleteTool(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	result := DeleteResult{Tool: tool, SnapshotsDeleted: n}

	err = s.remover.RemoveToolDir(tool.Filepath)
	switch {
	case err == nil:
		result.FilesRemoved = true
	case errors.Is(err, toolfs.ErrUnsafePath):
		s.logger.Error("refusing to remove tool files outside the tools directory", "tool_id", id, "filepath", tool.Filepath)
	default:
		s.logger.Warn("failed to remove tool files, queueing retry", "tool_id", id, "error", err)
		s.enqueueRemoval(ctx, tool.Filepath)
	}

	s.logger.Info("tool deleted", "tool_id", id, "snapshots_deleted", n)
	return result, nil
}

func (s *Service) enqueueRemoval(ctx context.Context, loc string) {
	payload, err := json.Marshal(RemoveFilesPayload{Filepath: loc})
	if err != nil {
		s.logger.Error("failed to marshal cleanup payload", "error", err)
		return
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobRemoveToolFiles,
		PayloadJSON: string(payload),
	}
	if err := s.store.EnqueueJob(ctx, job); err != nil {
		s.logger.Error("failed to queue file cleanup", "filepath", loc, "error", err)
	}
}

// Fork creates a new tool with the source tool's content and metadata. An
// empty name becomes "<source name> (Fork)", shortened to fit.
func (s *Service) Fork(ctx context.Context, id string, name string) (storage.Tool, error) {
	src, content, err := s.ReadContent(ctx, id)
	if err != nil {
		return storage.Tool{}, err
	}
	if strings.TrimSpace(name) == "" {
		const suffix = " (Fork)"
		name = truncateRunes(src.Name, MaxNameLength-len(suffix)) + suffix
	}
	return s.Create(ctx, CreateInput{
		Name:        name,
		Description: src.Description,
		Tags:        src.Tags,
		ToolType:    src.ToolType,
		Content:     string(content),
	})
}

// Diff holds both sides of a snapshot comparison. NewSnapshotID is nil when
// the new side is the tool's current content.
type Diff struct {
	OldSnapshotID string  `json:"old_snapshot_id"`
	OldContent    string  `json:"old_content"`
	NewSnapshotID *string `json:"new_snapshot_id"`
	NewContent    string  `json:"new_content"`
	Unified       string  `json:"unified_diff"`
}

// Diff compares a snapshot with the tool's current content, or with another
// snapshot of the same tool when compareTo is set.
func (s *Service) Diff(ctx context.Context, id, snapshotID, compareTo string) (Diff, error) {
	tool, err := s.store.GetTool(ctx, id)
	if err != nil {
		return Diff{}, err
	}
	old, err := s.store.GetSnapshot(ctx, id, snapshotID)
	if err != nil {
		return Diff{}, err
	}

	d := Diff{OldSnapshotID: old.ID, OldContent: old.Content}
	toFile := "current"
	if compareTo != "" {
		other, err := s.store.GetSnapshot(ctx, id, compareTo)
		if err != nil {
			return Diff{}, err
		}
		d.NewSnapshotID = &other.ID
		d.NewContent = other.Content
		toFile = "snapshot " + other.ID
	} else {
		b, err := s.files.Read(tool.Filepath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Diff{}, err
		}
		d.NewContent = string(b)
	}

	d.Unified, err = difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(d.OldContent),
		B:        difflib.SplitLines(d.NewContent),
		FromFile: "snapshot " + old.ID,
		ToFile:   toFile,
		Context:  3,
	})
	if err != nil {
		return Diff{}, fmt.Errorf("building diff: %w", err)
	}
	return d, nil
}
