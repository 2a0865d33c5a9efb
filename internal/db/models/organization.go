// Package models - organization.go defines the Organization model representing
// a namespace that owns artifacts. OwnerID designates the canonical owner used
// for irrevocable actions (cancelling invitations); the owner also always holds
// an owner-role membership row, kept consistent by the creation code path.
package models

import "time"

// Organization represents an organization/namespace in the registry
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
