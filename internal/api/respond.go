package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kalambet/toolshelf/internal/backup"
	"github.com/kalambet/toolshelf/internal/catalog"
	"github.com/kalambet/toolshelf/internal/exchange"
	"github.com/kalambet/toolshelf/internal/storage"
	"github.com/kalambet/toolshelf/internal/toolfs"
	"github.com/kalambet/toolshelf/internal/tools"
)

// BearerAuth rejects requests without the expected bearer token. An empty
// token locks every request out.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if token == "" || !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// serviceError maps a domain error onto a status code and error envelope.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var lockErr *storage.OptimisticLockError
	var sizeErr *storage.PayloadTooLargeError
	var valErr *tools.ValidationError

	switch {
	case errors.As(err, &lockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": map[string]any{
				"message":          lockErr.Error(),
				"type":             "optimistic_lock_conflict",
				"current_version":  lockErr.CurrentVersion,
				"expected_version": lockErr.ExpectedVersion,
			},
		})
	case errors.As(err, &sizeErr):
		httpError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "%s", sizeErr.Error())
	case errors.As(err, &valErr):
		httpError(w, http.StatusUnprocessableEntity, "validation_error", "%s", valErr.Error())
	case errors.Is(err, storage.ErrInvalidLabel), errors.Is(err, storage.ErrInvalidKind):
		httpError(w, http.StatusUnprocessableEntity, "validation_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, catalog.ErrTemplateNotFound),
		errors.Is(err, backup.ErrBackupNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, toolfs.ErrUnsafePath):
		httpError(w, http.StatusBadRequest, "unsafe_path", "%v", err)
	case errors.Is(err, backup.ErrInvalidFilename):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, backup.ErrBackupExists):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, exchange.ErrTooLarge):
		httpError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "%v", err)
	case errors.Is(err, exchange.ErrMalformed),
		errors.Is(err, exchange.ErrDecrypt),
		errors.Is(err, exchange.ErrPassphraseRequired):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds %d bytes", tooBig.Limit)
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
