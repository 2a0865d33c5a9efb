// Package models - artifact.go defines the Artifact and ArtifactVersion models.
// An Artifact is a named, org-scoped markdown document of a given kind (agent
// or skill); versions are append-only and immutable once published. The two
// kinds share one table and one engine; the kind only affects the storage
// path segment and display label.
package models

import "time"

// Artifact access levels.
const (
	AccessPrivate = "PRIVATE"
	AccessPublic  = "PUBLIC"
)

// Artifact kinds.
const (
	KindAgent = "agent"
	KindSkill = "skill"
)

// Artifact represents a named artifact within an organization
type Artifact struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Kind           string    `json:"kind"`
	Name           string    `json:"name"`
	Description    *string   `json:"description,omitempty"`
	Access         string    `json:"access"`
	LatestVersion  *string   `json:"latest_version,omitempty"`
	Downloads      int64     `json:"downloads"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ArtifactWithOrg pairs an artifact with its organization name for listings
// that span organizations.
type ArtifactWithOrg struct {
	Artifact
	OrganizationName string `json:"organization_name"`
}

// ArtifactVersion represents one immutable published version of an artifact
type ArtifactVersion struct {
	ID          string    `json:"id"`
	ArtifactID  string    `json:"artifact_id"`
	Version     string    `json:"version"`
	Content     string    `json:"content"`
	Checksum    string    `json:"checksum"`
	StoragePath string    `json:"storage_path"`
	PublishedBy *string   `json:"published_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
