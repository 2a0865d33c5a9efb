// artifacts.go implements the artifact engine. Agents and skills share this
// one engine and one set of tables; kind is a parameter, never a code path.
//
// The relational store is the source of truth for existence, uniqueness, and
// version ordering. Blob storage holds a content copy keyed by deterministic
// path and is never consulted to decide whether a version exists.
package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/db/repositories"
	"github.com/agent-registry/agent-registry/internal/safego"
	"github.com/agent-registry/agent-registry/internal/storage"
	"github.com/agent-registry/agent-registry/internal/telemetry"
	"github.com/agent-registry/agent-registry/internal/validation"
	"github.com/agent-registry/agent-registry/pkg/checksum"
)

// downloadURLTTL is the validity window for signed download URLs.
const downloadURLTTL = 15 * time.Minute

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ArtifactStore is the artifact persistence the engine needs.
type ArtifactStore interface {
	CreateArtifact(ctx context.Context, artifact *models.Artifact) error
	GetArtifact(ctx context.Context, orgID, kind, name string) (*models.Artifact, error)
	UpdateArtifactMetadata(ctx context.Context, artifact *models.Artifact) error
	CreateVersionAndSetLatest(ctx context.Context, version *models.ArtifactVersion, latest string, description *string) error
	GetVersion(ctx context.Context, artifactID, version string) (*models.ArtifactVersion, error)
	ListVersions(ctx context.Context, artifactID string) ([]*models.ArtifactVersion, error)
	ListVisibleArtifacts(ctx context.Context, kind, viewerID string, limit, offset int) ([]*models.ArtifactWithOrg, int, error)
	ListOrgArtifacts(ctx context.Context, orgID, kind string) ([]*models.ArtifactWithOrg, error)
	IncrementDownloads(ctx context.Context, artifactID string) error
}

// ArtifactService implements publish and read operations for both kinds
type ArtifactService struct {
	artifacts ArtifactStore
	orgs      *OrganizationService
	store     storage.Storage
}

// NewArtifactService creates a new ArtifactService
func NewArtifactService(artifacts ArtifactStore, orgs *OrganizationService, store storage.Storage) *ArtifactService {
	return &ArtifactService{artifacts: artifacts, orgs: orgs, store: store}
}

// Checksum returns the SHA-256 of content as lowercase hex, always 64 chars.
// This is a wire-format contract with clients and must stay bit-exact.
func Checksum(content []byte) string {
	return checksum.SHA256(content)
}

// PublishInput carries one publish request into the engine.
type PublishInput struct {
	OrgName     string
	Kind        string
	Name        string
	Version     string
	Content     []byte
	Description *string
	Access      string
	// Checksum is optional. When supplied it must match the server-computed
	// checksum exactly; it guards against transmission corruption.
	Checksum    string
	PublisherID string
}

// PublishResult is what a successful publish returns to the caller.
type PublishResult struct {
	Organization *models.Organization
	Artifact     *models.Artifact
	Version      *models.ArtifactVersion
	Checksum     string
	StoragePath  string
}

// Publish validates, stores, and records one artifact version. Published
// versions are immutable: the existence pre-check rejects republishes early,
// and the unique constraint on (artifact_id, version) rejects the concurrent
// writer the pre-check cannot see. Content reaches blob storage before the
// version row is written, so a failed upload leaves no version visible.
func (s *ArtifactService) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if err := validateKind(in.Kind); err != nil {
		return nil, err
	}
	if err := validation.ValidateSlug(in.Name); err != nil {
		return nil, BadRequest("%v", err)
	}
	if err := validation.ValidateVersion(in.Version); err != nil {
		return nil, BadRequest("%v", err)
	}
	if err := validation.ValidateContent(in.Content); err != nil {
		return nil, BadRequest("%v", err)
	}
	if in.Description != nil {
		if err := validation.ValidateDescription(*in.Description); err != nil {
			return nil, BadRequest("%v", err)
		}
	}

	access := in.Access
	if access == "" {
		access = models.AccessPrivate
	}
	if access != models.AccessPrivate && access != models.AccessPublic {
		return nil, BadRequest("access must be %s or %s", models.AccessPrivate, models.AccessPublic)
	}

	checksum := Checksum(in.Content)
	if in.Checksum != "" && in.Checksum != checksum {
		return nil, Forbidden("checksum mismatch")
	}

	org, err := s.orgs.Get(ctx, in.OrgName)
	if err != nil {
		return nil, err
	}
	if err := s.orgs.RequireMember(ctx, org.ID, in.PublisherID); err != nil {
		return nil, err
	}

	artifact, err := s.artifacts.GetArtifact(ctx, org.ID, in.Kind, in.Name)
	if err != nil {
		return nil, Internal(err, "failed to look up artifact")
	}
	if artifact == nil {
		artifact = &models.Artifact{
			OrganizationID: org.ID,
			Kind:           in.Kind,
			Name:           in.Name,
			Description:    in.Description,
			Access:         access,
		}
		if err := s.artifacts.CreateArtifact(ctx, artifact); err != nil {
			// A concurrent first publish may have won the creation race.
			// The unique constraint on (organization_id, kind, name) makes
			// refetching safe; failing here would break a benign race.
			existing, getErr := s.artifacts.GetArtifact(ctx, org.ID, in.Kind, in.Name)
			if getErr != nil || existing == nil {
				return nil, Internal(err, "failed to create artifact")
			}
			artifact = existing
		}
	}

	existing, err := s.artifacts.GetVersion(ctx, artifact.ID, in.Version)
	if err != nil {
		return nil, Internal(err, "failed to check version")
	}
	if existing != nil {
		return nil, Conflict("version already exists")
	}

	path := storage.ArtifactPath(org.Name, artifact.Name, in.Version, in.Kind)
	if _, err := s.store.Upload(ctx, path, bytes.NewReader(in.Content), int64(len(in.Content))); err != nil {
		return nil, Internal(err, "failed to store artifact content")
	}

	version := &models.ArtifactVersion{
		ArtifactID:  artifact.ID,
		Version:     in.Version,
		Content:     string(in.Content),
		Checksum:    checksum,
		StoragePath: path,
		PublishedBy: &in.PublisherID,
	}
	if err := s.artifacts.CreateVersionAndSetLatest(ctx, version, in.Version, in.Description); err != nil {
		if errors.Is(err, repositories.ErrDuplicateVersion) {
			return nil, Conflict("version already exists")
		}
		return nil, Internal(err, "failed to record version")
	}

	artifact.LatestVersion = &version.Version
	if in.Description != nil {
		artifact.Description = in.Description
	}

	telemetry.ArtifactPublishesTotal.WithLabelValues(in.Kind, org.Name).Inc()
	slog.Info("artifact published",
		"kind", in.Kind,
		"org", org.Name,
		"name", artifact.Name,
		"version", in.Version,
	)

	return &PublishResult{
		Organization: org,
		Artifact:     artifact,
		Version:      version,
		Checksum:     checksum,
		StoragePath:  path,
	}, nil
}

// ArtifactView is an artifact read result: the artifact, the resolved version
// row with inline content, and a best-effort signed download URL. DownloadURL
// is empty when URL generation fails; content delivery then falls back to the
// inline copy.
type ArtifactView struct {
	Organization *models.Organization
	Artifact     *models.Artifact
	Version      *models.ArtifactVersion
	DownloadURL  string
}

// Get returns an artifact at its latest published version.
func (s *ArtifactService) Get(ctx context.Context, orgName, kind, name, callerID string) (*ArtifactView, error) {
	return s.view(ctx, orgName, kind, name, "", callerID)
}

// GetVersion returns an artifact at a specific version.
func (s *ArtifactService) GetVersion(ctx context.Context, orgName, kind, name, version, callerID string) (*ArtifactView, error) {
	if err := validation.ValidateVersion(version); err != nil {
		return nil, BadRequest("%v", err)
	}
	return s.view(ctx, orgName, kind, name, version, callerID)
}

func (s *ArtifactService) view(ctx context.Context, orgName, kind, name, version, callerID string) (*ArtifactView, error) {
	org, artifact, err := s.resolve(ctx, orgName, kind, name, callerID)
	if err != nil {
		return nil, err
	}

	target := version
	if target == "" {
		if artifact.LatestVersion == nil {
			return nil, NotFound("%s not found", kind)
		}
		target = *artifact.LatestVersion
	}

	v, err := s.artifacts.GetVersion(ctx, artifact.ID, target)
	if err != nil {
		return nil, Internal(err, "failed to get version")
	}
	if v == nil {
		// The latest pointer can briefly reference a version row that a
		// concurrent publish has not committed yet. Fail rather than fall
		// back to an older version silently.
		if version == "" {
			return nil, NotFound("latest version not found")
		}
		return nil, NotFound("version not found")
	}

	var url string
	if u, urlErr := s.store.GetURL(ctx, v.StoragePath, downloadURLTTL); urlErr == nil {
		url = u
	} else {
		slog.Warn("download url generation failed",
			"path", v.StoragePath,
			"error", urlErr,
		)
	}

	artifactID := artifact.ID
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.artifacts.IncrementDownloads(ctx, artifactID); err != nil {
			slog.Warn("failed to increment downloads", "artifact_id", artifactID, "error", err)
		}
	})
	telemetry.ArtifactDownloadsTotal.WithLabelValues(kind, org.Name).Inc()

	return &ArtifactView{
		Organization: org,
		Artifact:     artifact,
		Version:      v,
		DownloadURL:  url,
	}, nil
}

// ListVersions returns every published version of an artifact, newest first.
func (s *ArtifactService) ListVersions(ctx context.Context, orgName, kind, name, callerID string) ([]*models.ArtifactVersion, error) {
	_, artifact, err := s.resolve(ctx, orgName, kind, name, callerID)
	if err != nil {
		return nil, err
	}

	versions, err := s.artifacts.ListVersions(ctx, artifact.ID)
	if err != nil {
		return nil, Internal(err, "failed to list versions")
	}
	return versions, nil
}

// ArtifactPage is one page of an artifact listing.
type ArtifactPage struct {
	Artifacts []*models.ArtifactWithOrg
	Total     int
	Limit     int
	Offset    int
}

// ListAll returns the artifacts of a kind visible to the viewer, most
// downloaded first: all public artifacts, plus private artifacts of the
// viewer's organizations when a viewer is authenticated. Artifacts with no
// published version never appear.
func (s *ArtifactService) ListAll(ctx context.Context, kind, viewerID string, limit, offset int) (*ArtifactPage, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	artifacts, total, err := s.artifacts.ListVisibleArtifacts(ctx, kind, viewerID, limit, offset)
	if err != nil {
		return nil, Internal(err, "failed to list artifacts")
	}

	return &ArtifactPage{Artifacts: artifacts, Total: total, Limit: limit, Offset: offset}, nil
}

// ListOrg returns one organization's artifacts of a kind. Members see all of
// them; everyone else sees only the public ones.
func (s *ArtifactService) ListOrg(ctx context.Context, orgName, kind, callerID string) ([]*models.ArtifactWithOrg, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}

	org, err := s.orgs.Get(ctx, orgName)
	if err != nil {
		return nil, err
	}

	member, err := s.orgs.IsMember(ctx, org.ID, callerID)
	if err != nil {
		return nil, err
	}

	artifacts, err := s.artifacts.ListOrgArtifacts(ctx, org.ID, kind)
	if err != nil {
		return nil, Internal(err, "failed to list organization artifacts")
	}
	if member {
		return artifacts, nil
	}

	public := make([]*models.ArtifactWithOrg, 0, len(artifacts))
	for _, a := range artifacts {
		if a.Access == models.AccessPublic {
			public = append(public, a)
		}
	}
	return public, nil
}

// UpdateMetadata changes an artifact's description and access flag. Only the
// organization's canonical owner may change artifact settings.
func (s *ArtifactService) UpdateMetadata(ctx context.Context, orgName, kind, name, callerID string, description, access *string) (*models.Artifact, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}

	org, err := s.orgs.Get(ctx, orgName)
	if err != nil {
		return nil, err
	}
	if org.OwnerID != callerID {
		return nil, Forbidden("only the organization owner can update artifact settings")
	}

	artifact, err := s.artifacts.GetArtifact(ctx, org.ID, kind, name)
	if err != nil {
		return nil, Internal(err, "failed to look up artifact")
	}
	if artifact == nil {
		return nil, NotFound("%s not found", kind)
	}

	if description != nil {
		if err := validation.ValidateDescription(*description); err != nil {
			return nil, BadRequest("%v", err)
		}
		artifact.Description = description
	}
	if access != nil {
		if *access != models.AccessPrivate && *access != models.AccessPublic {
			return nil, BadRequest("access must be %s or %s", models.AccessPrivate, models.AccessPublic)
		}
		artifact.Access = *access
	}

	if err := s.artifacts.UpdateArtifactMetadata(ctx, artifact); err != nil {
		return nil, Internal(err, "failed to update artifact")
	}

	return artifact, nil
}

// resolve loads an artifact and applies the access rule shared by every read:
// public artifacts are visible to anyone; private artifacts only to members
// of the owning organization. Unauthenticated and non-member callers get
// distinct messages but the same outcome.
func (s *ArtifactService) resolve(ctx context.Context, orgName, kind, name, callerID string) (*models.Organization, *models.Artifact, error) {
	if err := validateKind(kind); err != nil {
		return nil, nil, err
	}

	org, err := s.orgs.Get(ctx, orgName)
	if err != nil {
		return nil, nil, err
	}

	artifact, err := s.artifacts.GetArtifact(ctx, org.ID, kind, name)
	if err != nil {
		return nil, nil, Internal(err, "failed to look up artifact")
	}
	if artifact == nil {
		return nil, nil, NotFound("%s not found", kind)
	}

	if artifact.Access == models.AccessPrivate {
		if callerID == "" {
			return nil, nil, Forbidden("private")
		}
		member, err := s.orgs.IsMember(ctx, org.ID, callerID)
		if err != nil {
			return nil, nil, err
		}
		if !member {
			return nil, nil, Forbidden("no access")
		}
	}

	return org, artifact, nil
}

func validateKind(kind string) error {
	if kind != models.KindAgent && kind != models.KindSkill {
		return BadRequest("unknown artifact kind: %s", kind)
	}
	return nil
}
