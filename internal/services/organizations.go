// organizations.go implements organization creation, listing, and membership
// queries. The creator becomes the canonical owner (owner_id) and also gets an
// owner-role membership row, so member listings always include the owner.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/db/repositories"
	"github.com/agent-registry/agent-registry/internal/validation"
)

// OrgStore is the organization persistence the service layer needs.
// AddMember reports whether a row was inserted so callers can distinguish a
// fresh membership from one that already existed.
type OrgStore interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganizationByName(ctx context.Context, name string) (*models.Organization, error)
	GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error)
	ListOrganizationsForUser(ctx context.Context, userID string) ([]*models.Organization, error)
	GetMember(ctx context.Context, orgID, userID string) (*models.OrganizationMember, error)
	ListMembers(ctx context.Context, orgID string) ([]*models.OrganizationMemberWithUser, error)
	AddMember(ctx context.Context, orgID, userID, role string) (bool, error)
}

// OrganizationService handles organization and membership operations
type OrganizationService struct {
	orgs OrgStore
}

// NewOrganizationService creates a new OrganizationService
func NewOrganizationService(orgs OrgStore) *OrganizationService {
	return &OrganizationService{orgs: orgs}
}

// Create creates a new organization owned by the caller
func (s *OrganizationService) Create(ctx context.Context, name, ownerID string) (*models.Organization, error) {
	name = strings.TrimSpace(name)
	if err := validation.ValidateOrgName(name); err != nil {
		return nil, BadRequest("%v", err)
	}

	existing, err := s.orgs.GetOrganizationByName(ctx, name)
	if err != nil {
		return nil, Internal(err, "failed to check organization name")
	}
	if existing != nil {
		return nil, Conflict("organization name already taken")
	}

	org := &models.Organization{Name: name, OwnerID: ownerID}
	if err := s.orgs.CreateOrganization(ctx, org); err != nil {
		return nil, Internal(err, "failed to create organization")
	}

	return org, nil
}

// ListForUser returns the organizations the user belongs to
func (s *OrganizationService) ListForUser(ctx context.Context, userID string) ([]*models.Organization, error) {
	orgs, err := s.orgs.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, Internal(err, "failed to list organizations")
	}
	return orgs, nil
}

// Get returns an organization by name. Any authenticated user may look up an
// organization; its artifacts are what membership gates.
func (s *OrganizationService) Get(ctx context.Context, name string) (*models.Organization, error) {
	org, err := s.orgs.GetOrganizationByName(ctx, name)
	if err != nil {
		return nil, Internal(err, "failed to get organization")
	}
	if org == nil {
		return nil, NotFound("organization not found")
	}
	return org, nil
}

// ListMembers returns the members of an organization. Only members may list.
func (s *OrganizationService) ListMembers(ctx context.Context, orgName, callerID string) ([]*models.OrganizationMemberWithUser, error) {
	org, err := s.Get(ctx, orgName)
	if err != nil {
		return nil, err
	}

	if err := s.RequireMember(ctx, org.ID, callerID); err != nil {
		return nil, err
	}

	members, err := s.orgs.ListMembers(ctx, org.ID)
	if err != nil {
		return nil, Internal(err, "failed to list members")
	}
	return members, nil
}

// AddMember adds an existing user directly to an organization. The caller
// must hold the owner role; invitations can mint owner-role members beyond
// the canonical owner, and those may add members too. Adding someone who is
// already a member is a conflict.
func (s *OrganizationService) AddMember(ctx context.Context, orgName, userID, callerID, role string) (*models.OrganizationMember, error) {
	if role == "" {
		role = models.RoleMember
	}
	if role != models.RoleMember && role != models.RoleOwner {
		return nil, BadRequest("invalid role: %s", role)
	}

	org, err := s.Get(ctx, orgName)
	if err != nil {
		return nil, err
	}

	isOwner, err := s.HasRole(ctx, org.ID, callerID, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !isOwner {
		return nil, Forbidden("only organization owners can add members")
	}

	existing, err := s.orgs.GetMember(ctx, org.ID, userID)
	if err != nil {
		return nil, Internal(err, "failed to check membership")
	}
	if existing != nil {
		return nil, Conflict("user is already a member")
	}

	inserted, err := s.orgs.AddMember(ctx, org.ID, userID, role)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberUserMissing) {
			return nil, NotFound("user not found")
		}
		return nil, Internal(err, "failed to add member")
	}
	if !inserted {
		// Lost the race to a concurrent add or invitation acceptance
		return nil, Conflict("user is already a member")
	}

	member, err := s.orgs.GetMember(ctx, org.ID, userID)
	if err != nil {
		return nil, Internal(err, "failed to load membership")
	}
	return member, nil
}

// IsMember reports whether the user has any membership in the organization
func (s *OrganizationService) IsMember(ctx context.Context, orgID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	member, err := s.orgs.GetMember(ctx, orgID, userID)
	if err != nil {
		return false, Internal(err, "failed to check membership")
	}
	return member != nil, nil
}

// HasRole reports whether the user holds the given role in the organization.
// The member role is satisfied by any membership (owners count as members);
// the owner role requires the membership row's role to be exactly owner.
func (s *OrganizationService) HasRole(ctx context.Context, orgID, userID, role string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	member, err := s.orgs.GetMember(ctx, orgID, userID)
	if err != nil {
		return false, Internal(err, "failed to check membership")
	}
	if member == nil {
		return false, nil
	}
	return role == models.RoleMember || member.Role == role, nil
}

// RequireMember returns a Forbidden error when the user is not a member
func (s *OrganizationService) RequireMember(ctx context.Context, orgID, userID string) error {
	ok, err := s.IsMember(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return Forbidden("not a member of this organization")
	}
	return nil
}
