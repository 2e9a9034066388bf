package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/matriflow/matriflow-engine/pkg/apperrors"
	"github.com/matriflow/matriflow-engine/pkg/database"
	"github.com/matriflow/matriflow-engine/pkg/models"
)

// MatrixRepository provides read access to flow matrices and their
// versioned snapshots. The diff engine never touches this layer; handlers
// resolve snapshots here and hand plain values to the engine.
type MatrixRepository interface {
	GetMatrix(ctx context.Context, id uuid.UUID) (*models.Matrix, error)
	// ListVersions returns version metadata (no snapshots), newest first.
	ListVersions(ctx context.Context, matrixID uuid.UUID) ([]*models.MatrixVersion, error)
	// GetVersion returns one version including its snapshot.
	GetVersion(ctx context.Context, matrixID uuid.UUID, version int) (*models.MatrixVersion, error)
	// ListVersionsWithSnapshots returns all versions including snapshots,
	// oldest first, for multi-version statistics.
	ListVersionsWithSnapshots(ctx context.Context, matrixID uuid.UUID) ([]*models.MatrixVersion, error)
}

type matrixRepository struct {
	db *database.DB
}

// NewMatrixRepository creates a new matrix repository.
func NewMatrixRepository(db *database.DB) MatrixRepository {
	return &matrixRepository{db: db}
}

var _ MatrixRepository = (*matrixRepository)(nil)

func (r *matrixRepository) GetMatrix(ctx context.Context, id uuid.UUID) (*models.Matrix, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM engine_matrices
		WHERE id = $1`

	var m models.Matrix
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Name,
		&m.Description,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("matrix %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get matrix: %w", err)
	}

	return &m, nil
}

func (r *matrixRepository) ListVersions(ctx context.Context, matrixID uuid.UUID) ([]*models.MatrixVersion, error) {
	query := `
		SELECT id, matrix_id, version, created_by, created_at
		FROM engine_matrix_versions
		WHERE matrix_id = $1
		ORDER BY version DESC`

	rows, err := r.db.Query(ctx, query, matrixID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matrix versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.MatrixVersion
	for rows.Next() {
		var v models.MatrixVersion
		if err := rows.Scan(&v.ID, &v.MatrixID, &v.Version, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan matrix version: %w", err)
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matrix versions: %w", err)
	}

	return versions, nil
}

func (r *matrixRepository) GetVersion(ctx context.Context, matrixID uuid.UUID, version int) (*models.MatrixVersion, error) {
	query := `
		SELECT id, matrix_id, version, snapshot, created_by, created_at
		FROM engine_matrix_versions
		WHERE matrix_id = $1 AND version = $2`

	var v models.MatrixVersion
	var snapshotJSON []byte
	err := r.db.QueryRow(ctx, query, matrixID, version).Scan(
		&v.ID,
		&v.MatrixID,
		&v.Version,
		&snapshotJSON,
		&v.CreatedBy,
		&v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("matrix %s version %d: %w", matrixID, version, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get matrix version: %w", err)
	}

	snapshot, err := decodeSnapshot(snapshotJSON)
	if err != nil {
		return nil, fmt.Errorf("matrix %s version %d: %w", matrixID, version, err)
	}
	v.Snapshot = snapshot

	return &v, nil
}

func (r *matrixRepository) ListVersionsWithSnapshots(ctx context.Context, matrixID uuid.UUID) ([]*models.MatrixVersion, error) {
	query := `
		SELECT id, matrix_id, version, snapshot, created_by, created_at
		FROM engine_matrix_versions
		WHERE matrix_id = $1
		ORDER BY version ASC`

	rows, err := r.db.Query(ctx, query, matrixID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matrix versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.MatrixVersion
	for rows.Next() {
		var v models.MatrixVersion
		var snapshotJSON []byte
		if err := rows.Scan(&v.ID, &v.MatrixID, &v.Version, &snapshotJSON, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan matrix version: %w", err)
		}
		snapshot, err := decodeSnapshot(snapshotJSON)
		if err != nil {
			return nil, fmt.Errorf("matrix %s version %d: %w", matrixID, v.Version, err)
		}
		v.Snapshot = snapshot
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matrix versions: %w", err)
	}

	return versions, nil
}

// decodeSnapshot unmarshals a stored snapshot and fails fast on malformed
// payloads rather than treating them as empty.
func decodeSnapshot(data []byte) (*models.MatrixSnapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty snapshot payload", apperrors.ErrInvalidSnapshot)
	}
	var snapshot models.MatrixSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSnapshot, err)
	}
	if snapshot.Entries == nil {
		return nil, fmt.Errorf("%w: missing entries", apperrors.ErrInvalidSnapshot)
	}
	return &snapshot, nil
}
