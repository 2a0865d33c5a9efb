// invitation_repository.go implements InvitationRepository on sqlx, scanning
// rows directly into models.Invitation via its db struct tags. Status
// transitions use compare-and-swap updates (WHERE status = 'PENDING') so a
// settled invitation can never be resettled.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/agent-registry/agent-registry/internal/db/models"
)

// InvitationRepository handles database operations for invitations
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db *sql.DB) *InvitationRepository {
	return &InvitationRepository{db: sqlx.NewDb(db, "postgres")}
}

// CreateInvitation inserts a new invitation record
func (r *InvitationRepository) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO invitations (organization_id, email, role, token, invited_by, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		inv.OrganizationID,
		inv.Email,
		inv.Role,
		inv.Token,
		inv.InvitedBy,
		inv.Status,
		inv.ExpiresAt,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// GetInvitationByToken retrieves an invitation by its opaque token
func (r *InvitationRepository) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, token, invited_by, status, expires_at, created_at, updated_at
		FROM invitations
		WHERE token = $1
	`

	inv := &models.Invitation{}
	err := r.db.GetContext(ctx, inv, query, token)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return inv, nil
}

// GetInvitationByID retrieves an invitation by its UUID
func (r *InvitationRepository) GetInvitationByID(ctx context.Context, id string) (*models.Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, token, invited_by, status, expires_at, created_at, updated_at
		FROM invitations
		WHERE id = $1
	`

	inv := &models.Invitation{}
	err := r.db.GetContext(ctx, inv, query, id)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get invitation by ID: %w", err)
	}

	return inv, nil
}

// ListInvitationsForOrg returns an organization's pending invitations,
// newest first. Settled invitations are historical records and never listed.
func (r *InvitationRepository) ListInvitationsForOrg(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, token, invited_by, status, expires_at, created_at, updated_at
		FROM invitations
		WHERE organization_id = $1 AND status = $2
		ORDER BY created_at DESC
	`

	invitations := make([]*models.Invitation, 0)
	if err := r.db.SelectContext(ctx, &invitations, query, orgID, models.InvitationPending); err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	return invitations, nil
}

// GetPendingInvitation returns the pending invitation for an email in an
// organization, or nil if none exists
func (r *InvitationRepository) GetPendingInvitation(ctx context.Context, orgID, email string) (*models.Invitation, error) {
	query := `
		SELECT id, organization_id, email, role, token, invited_by, status, expires_at, created_at, updated_at
		FROM invitations
		WHERE organization_id = $1 AND email = $2 AND status = $3
	`

	inv := &models.Invitation{}
	err := r.db.GetContext(ctx, inv, query, orgID, email, models.InvitationPending)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get pending invitation: %w", err)
	}

	return inv, nil
}

// SettleInvitation moves a pending invitation to a terminal status.
// Returns false when the invitation was not pending, which means another
// request settled it first.
func (r *InvitationRepository) SettleInvitation(ctx context.Context, id, status string) (bool, error) {
	query := `
		UPDATE invitations
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`

	result, err := r.db.ExecContext(ctx, query, id, status, models.InvitationPending)
	if err != nil {
		return false, fmt.Errorf("failed to settle invitation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}
