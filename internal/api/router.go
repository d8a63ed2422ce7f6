// Package api exposes the tool shelf over HTTP and MCP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/toolshelf/internal/backup"
	"github.com/kalambet/toolshelf/internal/catalog"
	"github.com/kalambet/toolshelf/internal/tools"
)

// JSON bodies carry up to a full tool payload plus metadata.
const maxRequestBodySize = 12 << 20

// SchemaVersioner reports the applied database migration.
type SchemaVersioner interface {
	SchemaVersion(ctx context.Context) (int, error)
}

type Deps struct {
	Tools   *tools.Service
	Backups *backup.Service
	Catalog *catalog.Catalog
	Schema  SchemaVersioner
	Token   string
}

// NewHandler returns the HTTP API. Everything under /api requires the
// bearer token; /health does not.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Route("/tools", func(r chi.Router) {
			r.Get("/", handleListTools(deps))
			r.Post("/", handleCreateTool(deps))
			r.Get("/tags/suggest", handleSuggestTags(deps))
			r.Post("/export", handleExport(deps))
			r.Post("/import", handleImport(deps))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handleGetTool(deps))
				r.Put("/", handleUpdateTool(deps))
				r.Delete("/", handleDeleteTool(deps))
				r.Get("/content", handleGetContent(deps))
				r.Post("/fork", handleForkTool(deps))

				r.Get("/snapshots", handleListSnapshots(deps))
				r.Post("/snapshots", handleCreateSnapshot(deps))
				r.Get("/snapshots/{sid}", handleGetSnapshot(deps))
				r.Delete("/snapshots/{sid}", handleDeleteSnapshot(deps))
				r.Post("/snapshots/{sid}/restore", handleRestoreSnapshot(deps))
				r.Get("/snapshots/{sid}/diff", handleDiffSnapshot(deps))
			})
		})

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", handleListBackups(deps))
			r.Post("/", handleCreateBackup(deps))
			r.Post("/{filename}/restore", handleRestoreBackup(deps))
			r.Delete("/{filename}", handleDeleteBackup(deps))
		})

		r.Get("/templates", handleListTemplates(deps))
		r.Post("/templates/{id}/add", handleAddTemplate(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if deps.Schema != nil {
			v, err := deps.Schema.SchemaVersion(r.Context())
			if err != nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "database unavailable: %v", err)
				return
			}
			resp["schema_version"] = v
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
