package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/apperrors"
	"github.com/matriflow/matriflow-engine/pkg/models"
	"github.com/matriflow/matriflow-engine/pkg/repositories"
	"github.com/matriflow/matriflow-engine/pkg/services"
)

// DiffHandler serves version diffs, impact analysis and version statistics.
type DiffHandler struct {
	repo      repositories.MatrixRepository
	engine    services.DiffEngine
	analyzer  services.ImpactAnalyzer
	exporter  services.DiffExporter
	paginator services.DiffPaginator
	stats     services.VersionStatsAggregator
	cache     services.DiffCache
	logger    *zap.Logger
}

// NewDiffHandler creates a new diff handler.
func NewDiffHandler(
	repo repositories.MatrixRepository,
	engine services.DiffEngine,
	analyzer services.ImpactAnalyzer,
	exporter services.DiffExporter,
	paginator services.DiffPaginator,
	stats services.VersionStatsAggregator,
	cache services.DiffCache,
	logger *zap.Logger,
) *DiffHandler {
	return &DiffHandler{
		repo:      repo,
		engine:    engine,
		analyzer:  analyzer,
		exporter:  exporter,
		paginator: paginator,
		stats:     stats,
		cache:     cache,
		logger:    logger,
	}
}

// RegisterRoutes registers the diff handler's routes on the given mux.
func (h *DiffHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/matrices/{mid}/versions/stats", h.GetVersionStats)
	mux.HandleFunc("GET /api/matrices/{mid}/versions/{from}/diff/{to}", h.GetVersionDiff)
}

// diffResponse is the JSON body of a paginated diff request.
type diffResponse struct {
	Entries     []models.DiffEntryRecord    `json:"entries"`
	Summary     models.DiffSummary          `json:"summary"`
	Metadata    models.DiffMetadata         `json:"metadata"`
	Impact      *models.ImpactAnalysis      `json:"impact,omitempty"`
	Performance services.PerformanceMetrics `json:"performance"`
	Pagination  services.Pagination         `json:"pagination"`
}

// GetVersionDiff handles
// GET /api/matrices/{mid}/versions/{from}/diff/{to}
//
// Query parameters: format (json|csv|markdown), page, pageSize,
// sortBy (id|type|changes|impact), sortOrder (asc|desc), types
// (comma-separated), search, impactLevel, includeImpact.
//
// Pagination, filter and sort parameters apply to the JSON response only.
// csv and markdown exports always render the complete diff, so an exported
// attachment is a self-contained report of the whole change set.
func (h *DiffHandler) GetVersionDiff(w http.ResponseWriter, r *http.Request) {
	matrixID, ok := ParseMatrixID(w, r, h.logger)
	if !ok {
		return
	}
	from, to, ok := ParseVersionPair(w, r, h.logger)
	if !ok {
		return
	}

	// Comparing a version with itself is a caller error; it never reaches
	// the engine.
	if from == to {
		ErrorResponse(w, http.StatusBadRequest, "same_version", apperrors.ErrSameVersion.Error())
		return
	}

	diff, impact, ok := h.resolveDiff(w, r, matrixID, from, to)
	if !ok {
		return
	}

	query := r.URL.Query()
	includeImpact := query.Get("includeImpact") == "true" || query.Get("includeImpact") == "1"

	format := services.ExportFormat(strings.ToLower(query.Get("format")))
	if format == "" {
		format = services.FormatJSON
	}

	if format != services.FormatJSON {
		var exportImpact *models.ImpactAnalysis
		if includeImpact {
			exportImpact = impact
		}
		doc, err := h.exporter.Export(diff, exportImpact, format)
		if errors.Is(err, apperrors.ErrUnsupportedFormat) {
			ErrorResponse(w, http.StatusBadRequest, "unsupported_format", err.Error())
			return
		}
		if err != nil {
			h.logger.Error("Failed to export diff",
				zap.String("matrix_id", matrixID.String()),
				zap.String("format", string(format)),
				zap.Error(err))
			ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to export diff")
			return
		}

		filename := fmt.Sprintf("matrix-%s-diff-v%d-to-v%d.%s", matrixID, from, to, format.Extension())
		if err := WriteAttachment(w, format.ContentType(), filename, doc); err != nil {
			h.logger.Error("Failed to write export response", zap.Error(err))
		}
		return
	}

	page := h.paginator.Paginate(diff, services.PaginateOptions{
		Page:        queryInt(r, "page", 1),
		PageSize:    queryInt(r, "pageSize", services.DefaultPageSize),
		SortBy:      query.Get("sortBy"),
		SortOrder:   query.Get("sortOrder"),
		Types:       splitTypes(query.Get("types")),
		Search:      query.Get("search"),
		ImpactLevel: query.Get("impactLevel"),
	})

	resp := diffResponse{
		Entries:     page.Entries,
		Summary:     page.Summary,
		Metadata:    page.Metadata,
		Performance: h.paginator.PerformanceMetrics(diff),
		Pagination:  page.Pagination,
	}
	if includeImpact {
		resp.Impact = impact
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write diff response", zap.Error(err))
	}
}

// resolveDiff returns the (diff, impact) pair for the version pair, from
// cache when possible. On failure it writes the error response and returns
// ok=false.
func (h *DiffHandler) resolveDiff(w http.ResponseWriter, r *http.Request, matrixID uuid.UUID, from, to int) (*models.MatrixDiff, *models.ImpactAnalysis, bool) {
	ctx := r.Context()

	if cached, hit := h.cache.GetVersionDiff(ctx, matrixID, from, to); hit {
		return cached.Diff, cached.Impact, true
	}

	fromVersion, err := h.repo.GetVersion(ctx, matrixID, from)
	if err == nil {
		var toVersion *models.MatrixVersion
		toVersion, err = h.repo.GetVersion(ctx, matrixID, to)
		if err == nil {
			return h.computeDiff(ctx, w, matrixID, fromVersion, toVersion)
		}
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		ErrorResponse(w, http.StatusNotFound, "version_not_found", "Matrix version not found")
	case errors.Is(err, apperrors.ErrInvalidSnapshot):
		h.logger.Error("Stored snapshot is invalid",
			zap.String("matrix_id", matrixID.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusUnprocessableEntity, "invalid_snapshot", "Stored snapshot is malformed")
	default:
		h.logger.Error("Failed to load matrix versions",
			zap.String("matrix_id", matrixID.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to load matrix versions")
	}
	return nil, nil, false
}

func (h *DiffHandler) computeDiff(ctx context.Context, w http.ResponseWriter, matrixID uuid.UUID, fromVersion, toVersion *models.MatrixVersion) (*models.MatrixDiff, *models.ImpactAnalysis, bool) {
	metadata := models.DiffMetadata{
		FromVersion:   fromVersion.Version,
		ToVersion:     toVersion.Version,
		FromDate:      fromVersion.CreatedAt,
		ToDate:        toVersion.CreatedAt,
		FromCreatedBy: fromVersion.CreatedBy,
		ToCreatedBy:   toVersion.CreatedBy,
	}

	diff, err := h.engine.GenerateDiff(fromVersion.Snapshot, toVersion.Snapshot, metadata)
	if errors.Is(err, apperrors.ErrInvalidSnapshot) {
		ErrorResponse(w, http.StatusUnprocessableEntity, "invalid_snapshot", "Stored snapshot is malformed")
		return nil, nil, false
	}
	if err != nil {
		h.logger.Error("Failed to generate diff",
			zap.String("matrix_id", matrixID.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to generate diff")
		return nil, nil, false
	}

	impact := h.analyzer.Analyze(diff)
	h.cache.SetVersionDiff(ctx, matrixID, fromVersion.Version, toVersion.Version, diff, impact)

	return diff, impact, true
}

type versionStatsResponse struct {
	Stats []models.VersionStat `json:"stats"`
	Total int                  `json:"total"`
}

// GetVersionStats handles GET /api/matrices/{mid}/versions/stats
func (h *DiffHandler) GetVersionStats(w http.ResponseWriter, r *http.Request) {
	matrixID, ok := ParseMatrixID(w, r, h.logger)
	if !ok {
		return
	}

	versions, err := h.repo.ListVersionsWithSnapshots(r.Context(), matrixID)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidSnapshot) {
			ErrorResponse(w, http.StatusUnprocessableEntity, "invalid_snapshot", "Stored snapshot is malformed")
			return
		}
		h.logger.Error("Failed to load version history",
			zap.String("matrix_id", matrixID.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to load version history")
		return
	}

	snapshots := make([]models.VersionedSnapshot, 0, len(versions))
	for _, v := range versions {
		snapshots = append(snapshots, models.VersionedSnapshot{
			Version:  v.Version,
			Snapshot: v.Snapshot,
		})
	}

	stats, err := h.stats.GenerateVersionStats(snapshots)
	if err != nil {
		h.logger.Error("Failed to generate version stats",
			zap.String("matrix_id", matrixID.String()),
			zap.Error(err))
		ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to generate version stats")
		return
	}

	if err := WriteJSON(w, http.StatusOK, versionStatsResponse{Stats: stats, Total: len(stats)}); err != nil {
		h.logger.Error("Failed to write version stats response", zap.Error(err))
	}
}

func splitTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
