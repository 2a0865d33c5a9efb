// Package models - invitation.go defines the Invitation model for token-based
// email invitations into an organization.
//
// State machine: PENDING -> {ACCEPTED, EXPIRED, CANCELLED}. All three
// non-pending states are terminal; no transition leaves them. Expiry is
// applied lazily when acceptance is attempted past ExpiresAt, not by a
// background sweep.
package models

import "time"

// Invitation statuses.
const (
	InvitationPending   = "PENDING"
	InvitationAccepted  = "ACCEPTED"
	InvitationExpired   = "EXPIRED"
	InvitationCancelled = "CANCELLED"
)

// InvitationTTL is how long an invitation remains acceptable after creation.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation represents a pending or settled invitation to join an organization.
// Struct tags carry both JSON names and sqlx column names; the invitation
// repository scans rows directly into this type.
type Invitation struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Email          string    `db:"email" json:"email"`
	Role           string    `db:"role" json:"role"`
	Token          string    `db:"token" json:"-"`
	InvitedBy      string    `db:"invited_by" json:"invited_by"`
	Status         string    `db:"status" json:"status"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the invitation has reached a final status.
func (i *Invitation) Terminal() bool {
	return i.Status != InvitationPending
}
