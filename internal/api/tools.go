package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/toolshelf/internal/storage"
	"github.com/kalambet/toolshelf/internal/tools"
)

type createToolRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	ToolType    string   `json:"tool_type"`
	HTMLContent string   `json:"html_content"`
}

type updateToolRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	ToolType    string   `json:"tool_type"`
	HTMLContent *string  `json:"html_content"`
	Version     *int     `json:"version"`
}

type forkRequest struct {
	Name string `json:"name"`
}

func handleListTools(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := storage.ListOptions{
			Tag:    r.URL.Query().Get("tag"),
			Limit:  parseIntParam(r, "limit", 100, 500),
			Offset: parseIntParam(r, "offset", 0, 0),
		}
		list, err := deps.Tools.List(r.Context(), r.URL.Query().Get("q"), opts)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		if list == nil {
			list = []storage.Tool{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleSuggestTags(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := deps.Tools.SuggestTags(r.Context(), r.URL.Query().Get("q"), parseIntParam(r, "limit", 10, 50))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		if tags == nil {
			tags = []storage.TagCount{}
		}
		writeJSON(w, http.StatusOK, tags)
	}
}

func handleCreateTool(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createToolRequest
		if !decodeBody(w, r, &req) {
			return
		}
		tool, err := deps.Tools.Create(r.Context(), tools.CreateInput{
			Name:        req.Name,
			Description: req.Description,
			Tags:        req.Tags,
			ToolType:    req.ToolType,
			Content:     req.HTMLContent,
		})
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tool)
	}
}

func handleGetTool(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, err := deps.Tools.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tool)
	}
}

// handleGetContent serves the tool's HTML as-is. The version header lets
// an editor send it back as the expected version.
func handleGetContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tool, content, err := deps.Tools.ReadContent(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Tool-Version", strconv.Itoa(tool.Version))
		w.Header().Set("Cache-Control", "no-store")
		w.Write(content)
	}
}

func handleUpdateTool(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateToolRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Version == nil {
			httpError(w, http.StatusUnprocessableEntity, "validation_error", "version is required")
			return
		}
		tool, err := deps.Tools.Update(r.Context(), chi.URLParam(r, "id"), tools.UpdateInput{
			Version:     *req.Version,
			Name:        req.Name,
			Description: req.Description,
			Tags:        req.Tags,
			ToolType:    req.ToolType,
			Content:     req.HTMLContent,
		})
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tool)
	}
}

func handleDeleteTool(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Tools.Delete(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "deleted",
			"id":                res.Tool.ID,
			"snapshots_deleted": res.SnapshotsDeleted,
			"files_removed":     res.FilesRemoved,
		})
	}
}

func handleForkTool(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forkRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		tool, err := deps.Tools.Fork(r.Context(), chi.URLParam(r, "id"), req.Name)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tool)
	}
}
