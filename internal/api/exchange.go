package api

import (
	"bytes"
	"errors"
	"mime"
	"net/http"

	"github.com/kalambet/toolshelf/internal/exchange"
)

type exportRequest struct {
	ToolIDs    []string `json:"tool_ids"`
	Passphrase string   `json:"passphrase"`
}

// importContentTypes are the bodies accepted by the import endpoint.
var importContentTypes = map[string]bool{
	exchange.ContentType:       true,
	"application/msgpack":      true,
	"application/octet-stream": true,
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exportRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.ToolIDs) == 0 {
			httpError(w, http.StatusUnprocessableEntity, "validation_error", "tool_ids must not be empty")
			return
		}
		records, err := exchange.Export(r.Context(), deps.Tools, req.ToolIDs)
		if err != nil {
			serviceError(w, r, err)
			return
		}

		var buf bytes.Buffer
		if err := exchange.Encode(&buf, records, req.Passphrase); err != nil {
			serviceError(w, r, err)
			return
		}

		name, ctype := "toolshelf-export.msgpack", exchange.ContentType
		if req.Passphrase != "" {
			name, ctype = "toolshelf-export.msgpack.age", "application/octet-stream"
		}
		w.Header().Set("Content-Type", ctype)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}

func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || !importContentTypes[mt] {
			httpError(w, http.StatusUnsupportedMediaType, "invalid_request_error", "import body must be %s", exchange.ContentType)
			return
		}

		body := http.MaxBytesReader(w, r.Body, exchange.MaxPackBytes)
		defer body.Close()

		records, skipped, err := exchange.Decode(body, r.Header.Get("X-Passphrase"))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				err = exchange.ErrTooLarge
			}
			serviceError(w, r, err)
			return
		}

		res, err := exchange.Import(r.Context(), deps.Tools, records)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		res.Skipped += skipped
		writeJSON(w, http.StatusOK, res)
	}
}
