// fakes_test.go provides in-memory store fakes shared by the service tests.
// Each fake implements just the store interface its service consumes, with
// the same nil-on-missing conventions as the real repositories.
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/db/repositories"
	"github.com/agent-registry/agent-registry/internal/storage"
	"github.com/agent-registry/agent-registry/internal/validation"
)

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type fakeUsers struct {
	mu   sync.Mutex
	seq  int
	byID map[string]*models.User
	orgs *fakeOrgs
}

func newFakeUsers(orgs *fakeOrgs) *fakeUsers {
	return &fakeUsers{byID: map[string]*models.User{}, orgs: orgs}
}

func (f *fakeUsers) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	user.ID = fmt.Sprintf("user-%d", f.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.byID[user.ID] = user
	return nil
}

// CreateUserWithOrganization mirrors the real repository: user, personal org,
// and owner membership appear together or not at all.
func (f *fakeUsers) CreateUserWithOrganization(ctx context.Context, user *models.User, org *models.Organization) error {
	if err := f.CreateUser(ctx, user); err != nil {
		return err
	}
	org.OwnerID = user.ID
	return f.orgs.CreateOrganization(ctx, org)
}

func (f *fakeUsers) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[userID], nil
}

func (f *fakeUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Organizations and memberships
// ---------------------------------------------------------------------------

type memberKey struct{ org, user string }

type fakeOrgs struct {
	mu      sync.Mutex
	seq     int
	byID    map[string]*models.Organization
	members map[memberKey]*models.OrganizationMember
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{
		byID:    map[string]*models.Organization{},
		members: map[memberKey]*models.OrganizationMember{},
	}
}

// CreateOrganization mirrors the real repository: the org row and the owner's
// membership row are created together.
func (f *fakeOrgs) CreateOrganization(ctx context.Context, org *models.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	org.ID = fmt.Sprintf("org-%d", f.seq)
	org.CreatedAt = time.Now()
	org.UpdatedAt = org.CreatedAt
	f.byID[org.ID] = org
	f.members[memberKey{org.ID, org.OwnerID}] = &models.OrganizationMember{
		OrganizationID: org.ID,
		UserID:         org.OwnerID,
		Role:           models.RoleOwner,
		CreatedAt:      time.Now(),
	}
	return nil
}

func (f *fakeOrgs) GetOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byID {
		if o.Name == name {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeOrgs) GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeOrgs) ListOrganizationsForUser(ctx context.Context, userID string) ([]*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orgs []*models.Organization
	for key, m := range f.members {
		if m.UserID == userID {
			orgs = append(orgs, f.byID[key.org])
		}
	}
	return orgs, nil
}

func (f *fakeOrgs) GetMember(ctx context.Context, orgID, userID string) (*models.OrganizationMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[memberKey{orgID, userID}], nil
}

func (f *fakeOrgs) ListMembers(ctx context.Context, orgID string) ([]*models.OrganizationMemberWithUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var members []*models.OrganizationMemberWithUser
	for key, m := range f.members {
		if key.org == orgID {
			members = append(members, &models.OrganizationMemberWithUser{
				OrganizationID: m.OrganizationID,
				UserID:         m.UserID,
				Role:           m.Role,
				CreatedAt:      m.CreatedAt,
			})
		}
	}
	return members, nil
}

func (f *fakeOrgs) AddMember(ctx context.Context, orgID, userID, role string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := memberKey{orgID, userID}
	if _, ok := f.members[key]; ok {
		return false, nil
	}
	f.members[key] = &models.OrganizationMember{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		CreatedAt:      time.Now(),
	}
	return true, nil
}

func (f *fakeOrgs) hasMember(orgID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[memberKey{orgID, userID}]
	return ok
}

func (f *fakeOrgs) name(orgID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if org, ok := f.byID[orgID]; ok {
		return org.Name
	}
	return ""
}

// ---------------------------------------------------------------------------
// Auth tokens
// ---------------------------------------------------------------------------

type fakeTokens struct {
	mu   sync.Mutex
	seq  int
	byID map[string]*models.AuthToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byID: map[string]*models.AuthToken{}}
}

func (f *fakeTokens) CreateToken(ctx context.Context, token *models.AuthToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	token.ID = fmt.Sprintf("tok-%d", f.seq)
	token.CreatedAt = time.Now()
	f.byID[token.ID] = token
	return nil
}

func (f *fakeTokens) ListTokensForUser(ctx context.Context, userID string) ([]*models.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tokens []*models.AuthToken
	for _, t := range f.byID {
		if t.UserID == userID {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func (f *fakeTokens) DeleteToken(ctx context.Context, tokenID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[tokenID]
	if !ok || t.UserID != userID {
		return repositories.ErrTokenNotFound
	}
	delete(f.byID, tokenID)
	return nil
}

// ---------------------------------------------------------------------------
// Invitations
// ---------------------------------------------------------------------------

type fakeInvitations struct {
	mu   sync.Mutex
	seq  int
	byID map[string]*models.Invitation
}

func newFakeInvitations() *fakeInvitations {
	return &fakeInvitations{byID: map[string]*models.Invitation{}}
}

func (f *fakeInvitations) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	inv.ID = fmt.Sprintf("inv-%d", f.seq)
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	f.byID[inv.ID] = inv
	return nil
}

func (f *fakeInvitations) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.byID {
		if inv.Token == token {
			return inv, nil
		}
	}
	return nil, nil
}

func (f *fakeInvitations) GetInvitationByID(ctx context.Context, id string) (*models.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeInvitations) ListInvitationsForOrg(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	invitations := make([]*models.Invitation, 0)
	for _, inv := range f.byID {
		if inv.OrganizationID == orgID && inv.Status == models.InvitationPending {
			invitations = append(invitations, inv)
		}
	}
	return invitations, nil
}

func (f *fakeInvitations) GetPendingInvitation(ctx context.Context, orgID, email string) (*models.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.byID {
		if inv.OrganizationID == orgID && inv.Email == email && inv.Status == models.InvitationPending {
			return inv, nil
		}
	}
	return nil, nil
}

func (f *fakeInvitations) SettleInvitation(ctx context.Context, id, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byID[id]
	if !ok || inv.Status != models.InvitationPending {
		return false, nil
	}
	inv.Status = status
	inv.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeInvitations) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.byID[id]; ok {
		return inv.Status
	}
	return ""
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

type versionKey struct{ artifactID, version string }

type fakeArtifacts struct {
	mu       sync.Mutex
	seq      int
	byID     map[string]*models.Artifact
	versions map[versionKey]*models.ArtifactVersion
	orgs     *fakeOrgs
}

func newFakeArtifacts(orgs *fakeOrgs) *fakeArtifacts {
	return &fakeArtifacts{
		byID:     map[string]*models.Artifact{},
		versions: map[versionKey]*models.ArtifactVersion{},
		orgs:     orgs,
	}
}

func (f *fakeArtifacts) CreateArtifact(ctx context.Context, artifact *models.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.OrganizationID == artifact.OrganizationID && a.Kind == artifact.Kind && a.Name == artifact.Name {
			return fmt.Errorf("duplicate artifact")
		}
	}
	f.seq++
	artifact.ID = fmt.Sprintf("art-%d", f.seq)
	artifact.CreatedAt = time.Now()
	artifact.UpdatedAt = artifact.CreatedAt
	f.byID[artifact.ID] = artifact
	return nil
}

func (f *fakeArtifacts) GetArtifact(ctx context.Context, orgID, kind, name string) (*models.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.OrganizationID == orgID && a.Kind == kind && a.Name == name {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeArtifacts) UpdateArtifactMetadata(ctx context.Context, artifact *models.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[artifact.ID]
	if !ok {
		return fmt.Errorf("artifact not found")
	}
	stored.Description = artifact.Description
	stored.Access = artifact.Access
	stored.UpdatedAt = time.Now()
	return nil
}

func (f *fakeArtifacts) CreateVersionAndSetLatest(ctx context.Context, version *models.ArtifactVersion, latest string, description *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := versionKey{version.ArtifactID, version.Version}
	if _, ok := f.versions[key]; ok {
		return repositories.ErrDuplicateVersion
	}
	f.seq++
	version.ID = fmt.Sprintf("ver-%d", f.seq)
	version.CreatedAt = time.Now()
	f.versions[key] = version

	if artifact, ok := f.byID[version.ArtifactID]; ok {
		pointer := latest
		artifact.LatestVersion = &pointer
		if description != nil {
			artifact.Description = description
		}
		artifact.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeArtifacts) GetVersion(ctx context.Context, artifactID, version string) (*models.ArtifactVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[versionKey{artifactID, version}], nil
}

func (f *fakeArtifacts) ListVersions(ctx context.Context, artifactID string) ([]*models.ArtifactVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var versions []*models.ArtifactVersion
	for key, v := range f.versions {
		if key.artifactID == artifactID {
			versions = append(versions, v)
		}
	}
	for i := 0; i < len(versions); i++ {
		for j := i + 1; j < len(versions); j++ {
			cmp, err := validation.CompareVersions(versions[i].Version, versions[j].Version)
			if err == nil && cmp < 0 {
				versions[i], versions[j] = versions[j], versions[i]
			}
		}
	}
	return versions, nil
}

func (f *fakeArtifacts) ListVisibleArtifacts(ctx context.Context, kind, viewerID string, limit, offset int) ([]*models.ArtifactWithOrg, int, error) {
	f.mu.Lock()
	artifacts := make([]*models.ArtifactWithOrg, 0)
	for _, a := range f.byID {
		if a.Kind != kind || a.LatestVersion == nil {
			continue
		}
		visible := a.Access == models.AccessPublic ||
			(viewerID != "" && f.orgs.hasMember(a.OrganizationID, viewerID))
		if visible {
			artifacts = append(artifacts, f.withOrg(a))
		}
	}
	f.mu.Unlock()
	return artifacts, len(artifacts), nil
}

func (f *fakeArtifacts) ListOrgArtifacts(ctx context.Context, orgID, kind string) ([]*models.ArtifactWithOrg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	artifacts := make([]*models.ArtifactWithOrg, 0)
	for _, a := range f.byID {
		if a.OrganizationID == orgID && a.Kind == kind && a.LatestVersion != nil {
			artifacts = append(artifacts, f.withOrg(a))
		}
	}
	return artifacts, nil
}

func (f *fakeArtifacts) withOrg(a *models.Artifact) *models.ArtifactWithOrg {
	return &models.ArtifactWithOrg{Artifact: *a, OrganizationName: f.orgs.name(a.OrganizationID)}
}

func (f *fakeArtifacts) IncrementDownloads(ctx context.Context, artifactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[artifactID]; ok {
		a.Downloads++
	}
	return nil
}

func (f *fakeArtifacts) versionCount(artifactID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key := range f.versions {
		if key.artifactID == artifactID {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Blob storage
// ---------------------------------------------------------------------------

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	urlErr    error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Upload(ctx context.Context, path string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[path] = data
	f.mu.Unlock()
	return &storage.UploadResult{Path: path, Size: int64(len(data)), Checksum: Checksum(data)}, nil
}

func (f *fakeStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	return nil
}

func (f *fakeStorage) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return "https://files.test/" + path, nil
}

func (f *fakeStorage) Exists(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

func (f *fakeStorage) GetMetadata(ctx context.Context, path string) (*storage.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", path)
	}
	return &storage.FileMetadata{Path: path, Size: int64(len(data)), Checksum: Checksum(data)}, nil
}

func (f *fakeStorage) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

type fakeNotifier struct {
	mu       sync.Mutex
	created  []string
	accepted []string
}

func (f *fakeNotifier) InvitationCreated(email, orgName, inviterName, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, email+"|"+orgName)
}

func (f *fakeNotifier) InvitationAccepted(inviterEmail, inviteeEmail, orgName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, inviterEmail+"|"+inviteeEmail)
}

func (f *fakeNotifier) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeNotifier) acceptedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepted)
}

// ---------------------------------------------------------------------------
// Environment wiring
// ---------------------------------------------------------------------------

type testEnv struct {
	users       *fakeUsers
	orgs        *fakeOrgs
	tokens      *fakeTokens
	invitations *fakeInvitations
	artifacts   *fakeArtifacts
	store       *fakeStorage
	notifier    *fakeNotifier

	identity *IdentityService
	orgSvc   *OrganizationService
	invSvc   *InvitationService
	artSvc   *ArtifactService
}

func newTestEnv() *testEnv {
	orgs := newFakeOrgs()
	e := &testEnv{
		users:       newFakeUsers(orgs),
		orgs:        orgs,
		tokens:      newFakeTokens(),
		invitations: newFakeInvitations(),
		store:       newFakeStorage(),
		notifier:    &fakeNotifier{},
	}
	e.artifacts = newFakeArtifacts(e.orgs)
	e.identity = NewIdentityService(e.users, e.orgs, e.tokens)
	e.orgSvc = NewOrganizationService(e.orgs)
	e.invSvc = NewInvitationService(e.invitations, e.orgSvc, e.users, e.notifier)
	e.artSvc = NewArtifactService(e.artifacts, e.orgSvc, e.store)
	return e
}

// addUserAndOrg seeds a user with a same-named organization they own.
func (e *testEnv) addUserAndOrg(t *testing.T, username, email string) (*models.User, *models.Organization) {
	t.Helper()
	user := &models.User{Email: email, Username: username, PasswordHash: "x"}
	if err := e.users.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	org := &models.Organization{Name: username, OwnerID: user.ID}
	if err := e.orgs.CreateOrganization(context.Background(), org); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	return user, org
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	se, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T (%v), want *Error", err, err)
	}
	if se.Kind != want {
		t.Fatalf("error kind = %d (%v), want %d", se.Kind, se, want)
	}
}

// waitFor polls cond until it holds or the deadline passes. Used to observe
// fire-and-forget side effects without racing them.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
