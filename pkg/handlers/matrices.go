package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/apperrors"
	"github.com/matriflow/matriflow-engine/pkg/models"
	"github.com/matriflow/matriflow-engine/pkg/repositories"
)

// MatrixHandler serves read access to matrices and their version history.
type MatrixHandler struct {
	repo   repositories.MatrixRepository
	logger *zap.Logger
}

// NewMatrixHandler creates a new matrix handler.
func NewMatrixHandler(repo repositories.MatrixRepository, logger *zap.Logger) *MatrixHandler {
	return &MatrixHandler{
		repo:   repo,
		logger: logger,
	}
}

// RegisterRoutes registers the matrix handler's routes on the given mux.
func (h *MatrixHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/matrices/{mid}", h.GetMatrix)
	mux.HandleFunc("GET /api/matrices/{mid}/versions", h.ListVersions)
}

// GetMatrix handles GET /api/matrices/{mid}
func (h *MatrixHandler) GetMatrix(w http.ResponseWriter, r *http.Request) {
	matrixID, ok := ParseMatrixID(w, r, h.logger)
	if !ok {
		return
	}

	matrix, err := h.repo.GetMatrix(r.Context(), matrixID)
	if errors.Is(err, apperrors.ErrNotFound) {
		ErrorResponse(w, http.StatusNotFound, "matrix_not_found", "Matrix not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get matrix",
			zap.String("matrix_id", matrixID.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get matrix")
		return
	}

	if err := WriteJSON(w, http.StatusOK, matrix); err != nil {
		h.logger.Error("Failed to write matrix response", zap.Error(err))
	}
}

type versionListResponse struct {
	Versions []*models.MatrixVersion `json:"versions"`
	Total    int                     `json:"total"`
}

// ListVersions handles GET /api/matrices/{mid}/versions
func (h *MatrixHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	matrixID, ok := ParseMatrixID(w, r, h.logger)
	if !ok {
		return
	}

	versions, err := h.repo.ListVersions(r.Context(), matrixID)
	if err != nil {
		h.logger.Error("Failed to list matrix versions",
			zap.String("matrix_id", matrixID.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list versions")
		return
	}

	resp := versionListResponse{
		Versions: versions,
		Total:    len(versions),
	}
	if resp.Versions == nil {
		resp.Versions = []*models.MatrixVersion{}
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write version list response", zap.Error(err))
	}
}
