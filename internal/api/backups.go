package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/toolshelf/internal/backup"
)

func handleListBackups(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Backups.List()
		if err != nil {
			serviceError(w, r, err)
			return
		}
		if list == nil {
			list = []backup.Info{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreateBackup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Backups.Create(r.Context())
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, info)
	}
}

func handleRestoreBackup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if err := deps.Backups.Restore(r.Context(), name); err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "restored", "filename": name})
	}
}

func handleDeleteBackup(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if err := deps.Backups.Delete(name); err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
	}
}
