package orgs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/middleware"
	"github.com/agent-registry/agent-registry/internal/services"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeOrgStore struct {
	byName  map[string]*models.Organization
	members map[string]string // orgID/userID -> role
}

func newFakeOrgStore() *fakeOrgStore {
	return &fakeOrgStore{
		byName:  make(map[string]*models.Organization),
		members: make(map[string]string),
	}
}

func (f *fakeOrgStore) CreateOrganization(ctx context.Context, org *models.Organization) error {
	org.ID = "org-" + org.Name
	org.CreatedAt = time.Now()
	f.byName[org.Name] = org
	f.members[org.ID+"/"+org.OwnerID] = models.RoleOwner
	return nil
}

func (f *fakeOrgStore) GetOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	return f.byName[name], nil
}

func (f *fakeOrgStore) GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	for _, org := range f.byName {
		if org.ID == id {
			return org, nil
		}
	}
	return nil, nil
}

func (f *fakeOrgStore) ListOrganizationsForUser(ctx context.Context, userID string) ([]*models.Organization, error) {
	var out []*models.Organization
	for _, org := range f.byName {
		if _, ok := f.members[org.ID+"/"+userID]; ok {
			out = append(out, org)
		}
	}
	return out, nil
}

func (f *fakeOrgStore) GetMember(ctx context.Context, orgID, userID string) (*models.OrganizationMember, error) {
	role, ok := f.members[orgID+"/"+userID]
	if !ok {
		return nil, nil
	}
	return &models.OrganizationMember{OrganizationID: orgID, UserID: userID, Role: role}, nil
}

func (f *fakeOrgStore) ListMembers(ctx context.Context, orgID string) ([]*models.OrganizationMemberWithUser, error) {
	var out []*models.OrganizationMemberWithUser
	for key, role := range f.members {
		if len(key) > len(orgID) && key[:len(orgID)] == orgID {
			out = append(out, &models.OrganizationMemberWithUser{
				OrganizationID: orgID,
				UserID:         key[len(orgID)+1:],
				Role:           role,
			})
		}
	}
	return out, nil
}

func (f *fakeOrgStore) AddMember(ctx context.Context, orgID, userID, role string) (bool, error) {
	if _, ok := f.members[orgID+"/"+userID]; ok {
		return false, nil
	}
	f.members[orgID+"/"+userID] = role
	return true, nil
}

type fakeUserStore struct {
	users map[string]*models.User
}

func (f *fakeUserStore) CreateUserWithOrganization(ctx context.Context, user *models.User, org *models.Organization) error {
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return f.users[userID], nil
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

type fakeInvitationStore struct {
	byID   map[string]*models.Invitation
	nextID int
}

func (f *fakeInvitationStore) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	f.nextID++
	inv.ID = fmt.Sprintf("inv-%d", f.nextID)
	inv.CreatedAt = time.Now()
	f.byID[inv.ID] = inv
	return nil
}

func (f *fakeInvitationStore) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	for _, inv := range f.byID {
		if inv.Token == token {
			return inv, nil
		}
	}
	return nil, nil
}

func (f *fakeInvitationStore) GetInvitationByID(ctx context.Context, id string) (*models.Invitation, error) {
	return f.byID[id], nil
}

func (f *fakeInvitationStore) ListInvitationsForOrg(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	var out []*models.Invitation
	for _, inv := range f.byID {
		if inv.OrganizationID == orgID && inv.Status == models.InvitationPending {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeInvitationStore) GetPendingInvitation(ctx context.Context, orgID, email string) (*models.Invitation, error) {
	for _, inv := range f.byID {
		if inv.OrganizationID == orgID && inv.Email == email && inv.Status == models.InvitationPending {
			return inv, nil
		}
	}
	return nil, nil
}

func (f *fakeInvitationStore) SettleInvitation(ctx context.Context, id, status string) (bool, error) {
	inv, ok := f.byID[id]
	if !ok || inv.Status != models.InvitationPending {
		return false, nil
	}
	inv.Status = status
	return true, nil
}

type noopNotifier struct{}

func (noopNotifier) InvitationCreated(email, orgName, inviterName, token string)  {}
func (noopNotifier) InvitationAccepted(inviterEmail, inviteeEmail, orgName string) {}

// ---------------------------------------------------------------------------
// Test environment
// ---------------------------------------------------------------------------

type env struct {
	orgs        *fakeOrgStore
	users       *fakeUserStore
	invitations *fakeInvitationStore
	h           *Handlers
}

// newEnv seeds users alice (user-1) and bob (user-2), and org "acme" owned by
// alice.
func newEnv(t *testing.T) *env {
	t.Helper()
	orgStore := newFakeOrgStore()
	userStore := &fakeUserStore{users: map[string]*models.User{
		"user-1": {ID: "user-1", Username: "alice", Email: "alice@example.com"},
		"user-2": {ID: "user-2", Username: "bob", Email: "bob@example.com"},
	}}
	invStore := &fakeInvitationStore{byID: make(map[string]*models.Invitation)}

	orgSvc := services.NewOrganizationService(orgStore)
	invSvc := services.NewInvitationService(invStore, orgSvc, userStore, noopNotifier{})

	if _, err := orgSvc.Create(context.Background(), "acme", "user-1"); err != nil {
		t.Fatalf("seed org: %v", err)
	}

	return &env{
		orgs:        orgStore,
		users:       userStore,
		invitations: invStore,
		h:           NewHandlers(orgSvc, invSvc),
	}
}

func (e *env) newRouter(callerID string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.UserIDKey, callerID) })
	r.POST("/orgs", e.h.CreateHandler())
	r.GET("/orgs", e.h.ListHandler())
	r.GET("/orgs/:org", e.h.GetHandler())
	r.GET("/orgs/:org/members", e.h.ListMembersHandler())
	r.POST("/orgs/:org/members", e.h.AddMemberHandler())
	r.POST("/orgs/:org/invitations", e.h.InviteHandler())
	r.GET("/orgs/:org/invitations", e.h.ListInvitationsHandler())
	r.DELETE("/orgs/:org/invitations/:id", e.h.CancelInvitationHandler())
	r.POST("/invitations/accept", e.h.AcceptInvitationHandler())
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v: %s", err, w.Body.String())
	}
	return resp
}

// ---------------------------------------------------------------------------
// Organizations
// ---------------------------------------------------------------------------

func TestCreateOrg_Created(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e.newRouter("user-2"), http.MethodPost, "/orgs", gin.H{"name": "widgets"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if resp := getJSON(t, w); resp["owner_id"] != "user-2" {
		t.Errorf("owner_id = %v", resp["owner_id"])
	}
}

func TestCreateOrg_NameTakenConflict(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e.newRouter("user-2"), http.MethodPost, "/orgs", gin.H{"name": "acme"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestGetOrg_NotFound(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e.newRouter("user-1"), http.MethodGet, "/orgs/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListMembers_NonMemberForbidden(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e.newRouter("user-2"), http.MethodGet, "/orgs/acme/members", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestAddMember_OwnerAdds(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e.newRouter("user-1"), http.MethodPost, "/orgs/acme/members", gin.H{"user_id": "user-2"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	org := e.orgs.byName["acme"]
	if role := e.orgs.members[org.ID+"/user-2"]; role != models.RoleMember {
		t.Errorf("role = %q, want %q", role, models.RoleMember)
	}
}

func TestAddMember_NonOwnerForbidden(t *testing.T) {
	e := newEnv(t)
	org := e.orgs.byName["acme"]
	e.orgs.members[org.ID+"/user-2"] = models.RoleMember

	w := doJSON(e.newRouter("user-2"), http.MethodPost, "/orgs/acme/members", gin.H{"user_id": "user-3"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestAddMember_AlreadyMemberConflict(t *testing.T) {
	e := newEnv(t)
	org := e.orgs.byName["acme"]
	e.orgs.members[org.ID+"/user-2"] = models.RoleMember

	w := doJSON(e.newRouter("user-1"), http.MethodPost, "/orgs/acme/members", gin.H{"user_id": "user-2"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestAddMember_UserIDRequired(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e.newRouter("user-1"), http.MethodPost, "/orgs/acme/members", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Invitations
// ---------------------------------------------------------------------------

func TestInviteAndAccept(t *testing.T) {
	e := newEnv(t)

	w := doJSON(e.newRouter("user-1"), http.MethodPost, "/orgs/acme/invitations", gin.H{
		"email": "bob@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("invite status = %d: %s", w.Code, w.Body.String())
	}

	var token string
	for _, inv := range e.invitations.byID {
		token = inv.Token
	}

	w = doJSON(e.newRouter("user-2"), http.MethodPost, "/invitations/accept", gin.H{"token": token})
	if w.Code != http.StatusOK {
		t.Fatalf("accept status = %d: %s", w.Code, w.Body.String())
	}

	org := e.orgs.byName["acme"]
	if _, ok := e.orgs.members[org.ID+"/user-2"]; !ok {
		t.Error("bob did not become a member")
	}
}

func TestAccept_WrongEmailForbidden(t *testing.T) {
	e := newEnv(t)
	doJSON(e.newRouter("user-1"), http.MethodPost, "/orgs/acme/invitations", gin.H{
		"email": "someone-else@example.com",
	})

	var token string
	for _, inv := range e.invitations.byID {
		token = inv.Token
	}

	w := doJSON(e.newRouter("user-2"), http.MethodPost, "/invitations/accept", gin.H{"token": token})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestCancel_NonOwnerForbidden(t *testing.T) {
	e := newEnv(t)
	doJSON(e.newRouter("user-1"), http.MethodPost, "/orgs/acme/invitations", gin.H{
		"email": "bob@example.com",
	})

	var id string
	for invID := range e.invitations.byID {
		id = invID
	}

	// bob joins as a regular member and still may not cancel
	org := e.orgs.byName["acme"]
	e.orgs.members[org.ID+"/user-2"] = models.RoleMember

	w := doJSON(e.newRouter("user-2"), http.MethodDelete, "/orgs/acme/invitations/"+id, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: %s", w.Code, w.Body.String())
	}

	w = doJSON(e.newRouter("user-1"), http.MethodDelete, "/orgs/acme/invitations/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("owner cancel status = %d, want 204: %s", w.Code, w.Body.String())
	}
}

func TestListInvitations_PendingOnly(t *testing.T) {
	e := newEnv(t)
	r := e.newRouter("user-1")
	doJSON(r, http.MethodPost, "/orgs/acme/invitations", gin.H{"email": "bob@example.com"})
	doJSON(r, http.MethodPost, "/orgs/acme/invitations", gin.H{"email": "carol@example.com"})

	// Settle one invitation; it must disappear from the listing
	for id := range e.invitations.byID {
		e.invitations.byID[id].Status = models.InvitationCancelled
		break
	}

	w := doJSON(r, http.MethodGet, "/orgs/acme/invitations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	invitations, _ := resp["invitations"].([]any)
	if len(invitations) != 1 {
		t.Errorf("invitations = %d, want 1", len(invitations))
	}
}
