// Package models - organization_member.go defines user-to-organization
// membership with a role, plus an enriched view joining user details for
// member listings.
package models

import "time"

// Membership roles. An owner-role member satisfies every member-role check;
// the reverse does not hold.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// OrganizationMember represents a user's membership in an organization
type OrganizationMember struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

// OrganizationMemberWithUser includes user details for display
type OrganizationMemberWithUser struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	Username       string    `json:"username"`
	UserEmail      string    `json:"user_email"`
}
