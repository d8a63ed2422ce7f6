package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/toolshelf/internal/storage"
)

type createSnapshotRequest struct {
	Name *string `json:"name"`
}

type restoreResponse struct {
	Tool             storage.Tool `json:"tool"`
	RestoredSnapshot string       `json:"restored_snapshot_id"`
	BackupSnapshot   *string      `json:"backup_snapshot_id"`
}

func handleListSnapshots(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps, err := deps.Tools.ListSnapshots(r.Context(), chi.URLParam(r, "id"), parseIntParam(r, "limit", 100, 100))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		if snaps == nil {
			snaps = []storage.Snapshot{}
		}
		writeJSON(w, http.StatusOK, snaps)
	}
}

func handleCreateSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSnapshotRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		sn, err := deps.Tools.CreateSnapshot(r.Context(), chi.URLParam(r, "id"), req.Name)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sn)
	}
}

func handleGetSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sn, err := deps.Tools.GetSnapshot(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sn)
	}
}

func handleDeleteSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sn, err := deps.Tools.DeleteSnapshot(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": sn.ID})
	}
}

func handleRestoreSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Tools.Restore(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		resp := restoreResponse{Tool: res.Tool, RestoredSnapshot: res.Restored.ID}
		if res.Backup != nil {
			resp.BackupSnapshot = &res.Backup.ID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDiffSnapshot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Tools.Diff(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"), r.URL.Query().Get("compare_to"))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}
