// Package orgs exposes organization, membership, and invitation endpoints.
// Organizations are addressed by name in the URL; invitation acceptance is
// addressed by the emailed token, so it lives outside the org scope.
package orgs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/api/respond"
	"github.com/agent-registry/agent-registry/internal/middleware"
	"github.com/agent-registry/agent-registry/internal/services"
)

// Handlers serves organization and invitation endpoints.
type Handlers struct {
	orgs        *services.OrganizationService
	invitations *services.InvitationService
}

// NewHandlers creates the organization handlers.
func NewHandlers(orgs *services.OrganizationService, invitations *services.InvitationService) *Handlers {
	return &Handlers{orgs: orgs, invitations: invitations}
}

type createOrgRequest struct {
	Name string `json:"name"`
}

// CreateHandler creates an organization owned by the caller.
// Implements: POST /api/v1/orgs
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrgRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		org, err := h.orgs.Create(c.Request.Context(), req.Name, middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, org)
	}
}

// ListHandler lists the caller's organizations.
// Implements: GET /api/v1/orgs
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := h.orgs.ListForUser(c.Request.Context(), middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"organizations": orgs})
	}
}

// GetHandler looks up an organization by name.
// Implements: GET /api/v1/orgs/:org
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.orgs.Get(c.Request.Context(), c.Param("org"))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, org)
	}
}

// ListMembersHandler lists an organization's members. Members only.
// Implements: GET /api/v1/orgs/:org/members
func (h *Handlers) ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		members, err := h.orgs.ListMembers(c.Request.Context(), c.Param("org"), middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// AddMemberHandler adds an existing user to the organization. Owners only;
// the invitation flow is the path for users the caller cannot identify by ID.
// Implements: POST /api/v1/orgs/:org/members
func (h *Handlers) AddMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		member, err := h.orgs.AddMember(c.Request.Context(), c.Param("org"), req.UserID, middleware.CallerID(c), req.Role)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, member)
	}
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// InviteHandler creates a pending invitation. Any member may invite.
// Implements: POST /api/v1/orgs/:org/invitations
func (h *Handlers) InviteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req inviteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		inv, err := h.invitations.Invite(c.Request.Context(), c.Param("org"), middleware.CallerID(c), req.Email, req.Role)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, inv)
	}
}

// ListInvitationsHandler lists an organization's pending invitations.
// Implements: GET /api/v1/orgs/:org/invitations
func (h *Handlers) ListInvitationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invitations, err := h.invitations.List(c.Request.Context(), c.Param("org"), middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"invitations": invitations})
	}
}

// CancelInvitationHandler cancels a pending invitation. Owner only.
// Implements: DELETE /api/v1/orgs/:org/invitations/:id
func (h *Handlers) CancelInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.invitations.Cancel(c.Request.Context(), c.Param("org"), c.Param("id"), middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type acceptRequest struct {
	Token string `json:"token"`
}

// AcceptInvitationHandler accepts an invitation by its emailed token. The
// caller must be signed in under the invited email address.
// Implements: POST /api/v1/invitations/accept
func (h *Handlers) AcceptInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req acceptRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invitation token is required"})
			return
		}

		org, err := h.invitations.Accept(c.Request.Context(), req.Token, middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"organization": org})
	}
}
