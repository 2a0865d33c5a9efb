// invitations.go implements the organization invitation flow.
//
// Lifecycle: any member may invite; the invitee accepts with the emailed token
// while signed in under the invited address; only the canonical owner
// (organizations.owner_id) may cancel. Expiry is checked lazily at acceptance
// time and settles the invitation to EXPIRED. Settlement uses the repository's
// compare-and-swap update, so concurrent accept/cancel races resolve to
// exactly one winner.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/safego"
	"github.com/agent-registry/agent-registry/internal/validation"
)

// InvitationStore is the invitation persistence the service needs.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error)
	GetInvitationByID(ctx context.Context, id string) (*models.Invitation, error)
	ListInvitationsForOrg(ctx context.Context, orgID string) ([]*models.Invitation, error)
	GetPendingInvitation(ctx context.Context, orgID, email string) (*models.Invitation, error)
	SettleInvitation(ctx context.Context, id, status string) (bool, error)
}

// InvitationNotifier sends invitation lifecycle emails.
type InvitationNotifier interface {
	InvitationCreated(email, orgName, inviterName, token string)
	InvitationAccepted(inviterEmail, inviteeEmail, orgName string)
}

// InvitationService handles the invitation lifecycle
type InvitationService struct {
	invitations InvitationStore
	orgs        *OrganizationService
	users       IdentityUserStore
	notifier    InvitationNotifier
}

// NewInvitationService creates a new InvitationService
func NewInvitationService(invitations InvitationStore, orgs *OrganizationService, users IdentityUserStore, notifier InvitationNotifier) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		orgs:        orgs,
		users:       users,
		notifier:    notifier,
	}
}

// Invite creates a pending invitation for an email address. Any member of the
// organization may invite. Inviting an existing member or an address with a
// pending invitation is a conflict.
func (s *InvitationService) Invite(ctx context.Context, orgName, callerID, email, role string) (*models.Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.ValidateEmail(email); err != nil {
		return nil, BadRequest("%v", err)
	}

	if role == "" {
		role = models.RoleMember
	}
	if role != models.RoleMember && role != models.RoleOwner {
		return nil, BadRequest("invalid role: %s", role)
	}

	org, err := s.orgs.Get(ctx, orgName)
	if err != nil {
		return nil, err
	}
	if err := s.orgs.RequireMember(ctx, org.ID, callerID); err != nil {
		return nil, err
	}

	// Reject invitations for users who already belong to the org
	invitee, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, Internal(err, "failed to look up invitee")
	}
	if invitee != nil {
		isMember, err := s.orgs.IsMember(ctx, org.ID, invitee.ID)
		if err != nil {
			return nil, err
		}
		if isMember {
			return nil, Conflict("user is already a member")
		}
	}

	pending, err := s.invitations.GetPendingInvitation(ctx, org.ID, email)
	if err != nil {
		return nil, Internal(err, "failed to check pending invitations")
	}
	if pending != nil {
		return nil, Conflict("an invitation for this email is already pending")
	}

	inv := &models.Invitation{
		OrganizationID: org.ID,
		Email:          email,
		Role:           role,
		Token:          uuid.NewString(),
		InvitedBy:      callerID,
		Status:         models.InvitationPending,
		ExpiresAt:      time.Now().Add(models.InvitationTTL),
	}
	if err := s.invitations.CreateInvitation(ctx, inv); err != nil {
		return nil, Internal(err, "failed to create invitation")
	}

	inviter, err := s.users.GetUserByID(ctx, callerID)
	inviterName := "A member"
	if err == nil && inviter != nil {
		inviterName = inviter.Username
	}
	safego.Go(func() {
		s.notifier.InvitationCreated(inv.Email, org.Name, inviterName, inv.Token)
	})

	return inv, nil
}

// Accept settles a pending invitation and adds the caller to the organization.
// The caller's account email must match the invited address. An invitation
// past its expiry is settled to EXPIRED on this path; there is no sweeper.
func (s *InvitationService) Accept(ctx context.Context, token, callerID string) (*models.Organization, error) {
	inv, err := s.invitations.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, Internal(err, "failed to look up invitation")
	}
	if inv == nil {
		return nil, NotFound("invitation not found")
	}
	if inv.Terminal() {
		return nil, BadRequest("invitation is no longer pending")
	}

	if time.Now().After(inv.ExpiresAt) {
		if _, err := s.invitations.SettleInvitation(ctx, inv.ID, models.InvitationExpired); err != nil {
			return nil, Internal(err, "failed to expire invitation")
		}
		return nil, BadRequest("invitation has expired")
	}

	caller, err := s.users.GetUserByID(ctx, callerID)
	if err != nil {
		return nil, Internal(err, "failed to look up caller")
	}
	if caller == nil {
		return nil, Unauthorized("unknown account")
	}
	if !strings.EqualFold(caller.Email, inv.Email) {
		return nil, Forbidden("invitation was issued to a different email address")
	}

	org, err := s.orgs.orgs.GetOrganizationByID(ctx, inv.OrganizationID)
	if err != nil {
		return nil, Internal(err, "failed to look up organization")
	}
	if org == nil {
		return nil, NotFound("organization no longer exists")
	}

	// A re-click or a membership that raced in still settles the invitation,
	// but the caller is told they were already a member rather than seeing a
	// silent success.
	alreadyMember, err := s.orgs.IsMember(ctx, org.ID, caller.ID)
	if err != nil {
		return nil, err
	}
	if alreadyMember {
		if _, err := s.invitations.SettleInvitation(ctx, inv.ID, models.InvitationAccepted); err != nil {
			return nil, Internal(err, "failed to settle invitation")
		}
		return nil, Conflict("already a member")
	}

	// Membership first, then settle. AddMember is idempotent, so a retry
	// after a crash between the two writes converges; whether the row was
	// freshly inserted does not matter here.
	if _, err := s.orgs.orgs.AddMember(ctx, org.ID, caller.ID, inv.Role); err != nil {
		return nil, Internal(err, "failed to add member")
	}

	settled, err := s.invitations.SettleInvitation(ctx, inv.ID, models.InvitationAccepted)
	if err != nil {
		return nil, Internal(err, "failed to settle invitation")
	}
	if !settled {
		return nil, BadRequest("invitation is no longer pending")
	}

	inviter, err := s.users.GetUserByID(ctx, inv.InvitedBy)
	if err == nil && inviter != nil {
		inviterEmail := inviter.Email
		safego.Go(func() {
			s.notifier.InvitationAccepted(inviterEmail, caller.Email, org.Name)
		})
	}

	return org, nil
}

// Cancel settles a pending invitation to CANCELLED. Only the organization's
// canonical owner may cancel, regardless of who created the invitation.
func (s *InvitationService) Cancel(ctx context.Context, orgName, invitationID, callerID string) error {
	org, err := s.orgs.Get(ctx, orgName)
	if err != nil {
		return err
	}
	if org.OwnerID != callerID {
		return Forbidden("only the organization owner can cancel invitations")
	}

	inv, err := s.invitations.GetInvitationByID(ctx, invitationID)
	if err != nil {
		return Internal(err, "failed to look up invitation")
	}
	if inv == nil || inv.OrganizationID != org.ID {
		return NotFound("invitation not found")
	}
	if inv.Terminal() {
		return BadRequest("invitation is no longer pending")
	}

	settled, err := s.invitations.SettleInvitation(ctx, inv.ID, models.InvitationCancelled)
	if err != nil {
		return Internal(err, "failed to cancel invitation")
	}
	if !settled {
		return BadRequest("invitation is no longer pending")
	}

	return nil
}

// List returns an organization's pending invitations. Members only.
func (s *InvitationService) List(ctx context.Context, orgName, callerID string) ([]*models.Invitation, error) {
	org, err := s.orgs.Get(ctx, orgName)
	if err != nil {
		return nil, err
	}
	if err := s.orgs.RequireMember(ctx, org.ID, callerID); err != nil {
		return nil, err
	}

	invitations, err := s.invitations.ListInvitationsForOrg(ctx, org.ID)
	if err != nil {
		return nil, Internal(err, "failed to list invitations")
	}
	return invitations, nil
}
