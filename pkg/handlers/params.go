package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseMatrixID extracts and validates the matrix ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on
// error (after writing an error response).
// Expects path parameter: mid
func ParseMatrixID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue("mid")
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_matrix_id", "Invalid matrix ID format"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// ParseVersionPair extracts the from/to version numbers from the request
// path. Returns both versions and true on success, or zeros and false on
// error (after writing an error response).
// Expects path parameters: from, to
func ParseVersionPair(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int, int, bool) {
	from, ok := parseVersion(w, r, "from", logger)
	if !ok {
		return 0, 0, false
	}
	to, ok := parseVersion(w, r, "to", logger)
	if !ok {
		return 0, 0, false
	}
	return from, to, true
}

func parseVersion(w http.ResponseWriter, r *http.Request, pathParam string, logger *zap.Logger) (int, bool) {
	version, err := strconv.Atoi(r.PathValue(pathParam))
	if err != nil || version < 1 {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_version", "Version must be a positive integer"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return version, true
}

// queryInt reads an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
