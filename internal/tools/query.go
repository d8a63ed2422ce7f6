package tools

import (
	"context"
	"strings"

	"github.com/kalambet/toolshelf/internal/storage"
)

// List returns tools newest-updated first. A non-empty q switches to a
// ranked full-text search.
func (s *Service) List(ctx context.Context, q string, opts storage.ListOptions) ([]storage.Tool, error) {
	if strings.TrimSpace(q) == "" {
		return s.store.ListTools(ctx, opts)
	}
	return s.store.SearchTools(ctx, q, opts)
}

func (s *Service) SuggestTags(ctx context.Context, prefix string, limit int) ([]storage.TagCount, error) {
	return s.store.SuggestTags(ctx, prefix, limit)
}

// ListSnapshots returns the tool's snapshots, newest first. Unknown tools
// are reported as storage.ErrNotFound rather than an empty list.
func (s *Service) ListSnapshots(ctx context.Context, id string, limit int) ([]storage.Snapshot, error) {
	if _, err := s.store.GetTool(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, id, limit)
}

func (s *Service) GetSnapshot(ctx context.Context, id, snapshotID string) (storage.Snapshot, error) {
	return s.store.GetSnapshot(ctx, id, snapshotID)
}

func (s *Service) DeleteSnapshot(ctx context.Context, id, snapshotID string) (storage.Snapshot, error) {
	sn, err := s.store.DeleteSnapshot(ctx, id, snapshotID)
	if err != nil {
		return storage.Snapshot{}, err
	}
	s.logger.Info("snapshot deleted", "tool_id", id, "snapshot_id", snapshotID)
	return sn, nil
}
