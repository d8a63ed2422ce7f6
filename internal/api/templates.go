package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func handleListTemplates(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Catalog)
	}
}

func handleAddTemplate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forkRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		in, err := deps.Catalog.Instantiate(chi.URLParam(r, "id"), req.Name)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		tool, err := deps.Tools.Create(r.Context(), in)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tool)
	}
}
