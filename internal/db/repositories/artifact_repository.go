// artifact_repository.go implements ArtifactRepository, providing database queries
// for artifacts and their versions. Both artifact kinds (agent, skill) share the
// same tables; every query scopes by kind.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/validation"
)

// ErrDuplicateVersion is returned when a version insert hits the unique
// constraint on (artifact_id, version). It backstops the pre-insert existence
// check under concurrent publishes.
var ErrDuplicateVersion = errors.New("artifact version already exists")

// ArtifactRepository handles database operations for artifacts
type ArtifactRepository struct {
	db *sql.DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

const artifactColumns = `id, organization_id, kind, name, description, access, latest_version, downloads, created_at, updated_at`

func scanArtifact(row *sql.Row) (*models.Artifact, error) {
	a := &models.Artifact{}
	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.Kind,
		&a.Name,
		&a.Description,
		&a.Access,
		&a.LatestVersion,
		&a.Downloads,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateArtifact inserts a new artifact record
func (r *ArtifactRepository) CreateArtifact(ctx context.Context, artifact *models.Artifact) error {
	query := `
		INSERT INTO artifacts (organization_id, kind, name, description, access)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, downloads, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		artifact.OrganizationID,
		artifact.Kind,
		artifact.Name,
		artifact.Description,
		artifact.Access,
	).Scan(&artifact.ID, &artifact.Downloads, &artifact.CreatedAt, &artifact.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}

	return nil
}

// GetArtifact retrieves an artifact by organization, kind, and name
func (r *ArtifactRepository) GetArtifact(ctx context.Context, orgID, kind, name string) (*models.Artifact, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM artifacts
		WHERE organization_id = $1 AND kind = $2 AND name = $3
	`, artifactColumns)

	artifact, err := scanArtifact(r.db.QueryRowContext(ctx, query, orgID, kind, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return artifact, nil
}

// UpdateArtifactMetadata updates the description and access level of an artifact
func (r *ArtifactRepository) UpdateArtifactMetadata(ctx context.Context, artifact *models.Artifact) error {
	query := `
		UPDATE artifacts
		SET description = $2, access = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		artifact.ID,
		artifact.Description,
		artifact.Access,
	).Scan(&artifact.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to update artifact: %w", err)
	}

	return nil
}

// CreateVersionAndSetLatest inserts a version row, advances the artifact's
// latest version pointer, and refreshes the description when one is supplied,
// all in one transaction. A unique violation on (artifact_id, version) maps to
// ErrDuplicateVersion so concurrent publishes of the same version lose cleanly
// instead of surfacing a raw driver error.
func (r *ArtifactRepository) CreateVersionAndSetLatest(ctx context.Context, version *models.ArtifactVersion, latest string, description *string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO artifact_versions (artifact_id, version, content, checksum, storage_path, published_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err = tx.QueryRowContext(ctx, insertQuery,
		version.ArtifactID,
		version.Version,
		version.Content,
		version.Checksum,
		version.StoragePath,
		version.PublishedBy,
	).Scan(&version.ID, &version.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateVersion
		}
		return fmt.Errorf("failed to create artifact version: %w", err)
	}

	updateQuery := `
		UPDATE artifacts
		SET latest_version = $2, description = COALESCE($3, description), updated_at = NOW()
		WHERE id = $1
	`

	if _, err := tx.ExecContext(ctx, updateQuery, version.ArtifactID, latest, description); err != nil {
		return fmt.Errorf("failed to update latest version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetVersion retrieves a specific version of an artifact
func (r *ArtifactRepository) GetVersion(ctx context.Context, artifactID, version string) (*models.ArtifactVersion, error) {
	query := `
		SELECT id, artifact_id, version, content, checksum, storage_path, published_by, created_at
		FROM artifact_versions
		WHERE artifact_id = $1 AND version = $2
	`

	v := &models.ArtifactVersion{}
	err := r.db.QueryRowContext(ctx, query, artifactID, version).Scan(
		&v.ID,
		&v.ArtifactID,
		&v.Version,
		&v.Content,
		&v.Checksum,
		&v.StoragePath,
		&v.PublishedBy,
		&v.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get artifact version: %w", err)
	}

	return v, nil
}

// ListVersions retrieves all versions for an artifact, highest version first.
// Content is not loaded; listings only need metadata.
func (r *ArtifactRepository) ListVersions(ctx context.Context, artifactID string) ([]*models.ArtifactVersion, error) {
	query := `
		SELECT id, artifact_id, version, checksum, storage_path, published_by, created_at
		FROM artifact_versions
		WHERE artifact_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.ArtifactVersion
	for rows.Next() {
		v := &models.ArtifactVersion{}
		err := rows.Scan(
			&v.ID,
			&v.ArtifactID,
			&v.Version,
			&v.Checksum,
			&v.StoragePath,
			&v.PublishedBy,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact version: %w", err)
		}
		versions = append(versions, v)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifact versions: %w", err)
	}

	// Sort by semver descending (highest version first). Stored versions have
	// already passed ValidateVersion, so comparison cannot fail; fall back to
	// lexicographic order if a row somehow holds an unparseable version.
	sort.Slice(versions, func(i, j int) bool {
		cmp, err := validation.CompareVersions(versions[i].Version, versions[j].Version)
		if err != nil {
			return versions[i].Version > versions[j].Version
		}
		return cmp > 0
	})

	return versions, nil
}

// ListVisibleArtifacts returns artifacts of a kind that the viewer may see:
// every public artifact, plus private artifacts of organizations the viewer
// belongs to when viewerID is non-empty. Only artifacts with at least one
// published version appear; rows whose latest version pointer is unset are
// invisible. Ordered by download count, most downloaded first.
func (r *ArtifactRepository) ListVisibleArtifacts(ctx context.Context, kind, viewerID string, limit, offset int) ([]*models.ArtifactWithOrg, int, error) {
	countQuery := `
		SELECT COUNT(*)
		FROM artifacts
		WHERE kind = $1 AND latest_version IS NOT NULL
		AND (access = $2 OR ($3 <> '' AND organization_id IN (
			SELECT organization_id FROM organization_members WHERE user_id = $3
		)))
	`

	var total int
	err := r.db.QueryRowContext(ctx, countQuery, kind, models.AccessPublic, viewerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count artifacts: %w", err)
	}

	query := `
		SELECT a.id, a.organization_id, a.kind, a.name, a.description, a.access,
		       a.latest_version, a.downloads, a.created_at, a.updated_at, o.name
		FROM artifacts a
		JOIN organizations o ON o.id = a.organization_id
		WHERE a.kind = $1 AND a.latest_version IS NOT NULL
		AND (a.access = $2 OR ($3 <> '' AND a.organization_id IN (
			SELECT organization_id FROM organization_members WHERE user_id = $3
		)))
		ORDER BY a.downloads DESC, a.name
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.QueryContext(ctx, query, kind, models.AccessPublic, viewerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts, err := scanArtifactsWithOrg(rows)
	if err != nil {
		return nil, 0, err
	}

	return artifacts, total, nil
}

// ListOrgArtifacts returns a single organization's artifacts of a kind that
// have at least one published version. Callers gate access before calling.
func (r *ArtifactRepository) ListOrgArtifacts(ctx context.Context, orgID, kind string) ([]*models.ArtifactWithOrg, error) {
	query := `
		SELECT a.id, a.organization_id, a.kind, a.name, a.description, a.access,
		       a.latest_version, a.downloads, a.created_at, a.updated_at, o.name
		FROM artifacts a
		JOIN organizations o ON o.id = a.organization_id
		WHERE a.organization_id = $1 AND a.kind = $2 AND a.latest_version IS NOT NULL
		ORDER BY a.name
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifactsWithOrg(rows)
}

func scanArtifactsWithOrg(rows *sql.Rows) ([]*models.ArtifactWithOrg, error) {
	artifacts := make([]*models.ArtifactWithOrg, 0)
	for rows.Next() {
		a := &models.ArtifactWithOrg{}
		err := rows.Scan(
			&a.ID,
			&a.OrganizationID,
			&a.Kind,
			&a.Name,
			&a.Description,
			&a.Access,
			&a.LatestVersion,
			&a.Downloads,
			&a.CreatedAt,
			&a.UpdatedAt,
			&a.OrganizationName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, rows.Err()
}

// IncrementDownloads increments the download counter for an artifact
func (r *ArtifactRepository) IncrementDownloads(ctx context.Context, artifactID string) error {
	query := `
		UPDATE artifacts
		SET downloads = downloads + 1
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, artifactID)
	if err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}

	return nil
}
