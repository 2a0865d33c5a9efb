package services

import (
	"context"
	"testing"
	"time"

	"github.com/agent-registry/agent-registry/internal/db/models"
)

// inviteEnv seeds an org owner plus an unaffiliated invitee account.
func inviteEnv(t *testing.T) (*testEnv, *models.User, *models.Organization, *models.User) {
	t.Helper()
	e := newTestEnv()
	owner, org := e.addUserAndOrg(t, "acme", "owner@example.com")
	invitee, _ := e.addUserAndOrg(t, "bob", "bob@example.com")
	return e, owner, org, invitee
}

// ---------------------------------------------------------------------------
// Invite
// ---------------------------------------------------------------------------

func TestInvite_Success(t *testing.T) {
	e, owner, org, _ := inviteEnv(t)

	inv, err := e.invSvc.Invite(context.Background(), org.Name, owner.ID, "Bob@Example.com", "")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if inv.Email != "bob@example.com" {
		t.Errorf("email = %s, want lowercased", inv.Email)
	}
	if inv.Role != models.RoleMember {
		t.Errorf("role = %s, want default member", inv.Role)
	}
	if inv.Status != models.InvitationPending {
		t.Errorf("status = %s, want PENDING", inv.Status)
	}
	if inv.Token == "" {
		t.Error("token is empty")
	}
	until := time.Until(inv.ExpiresAt)
	if until < 6*24*time.Hour || until > 8*24*time.Hour {
		t.Errorf("expiry %v not about seven days out", until)
	}

	waitFor(t, func() bool { return e.notifier.createdCount() == 1 })
}

// Any member may invite, not just the owner.
func TestInvite_MemberMayInvite(t *testing.T) {
	e, _, org, _ := inviteEnv(t)
	carol, _ := e.addUserAndOrg(t, "carol", "carol@example.com")
	if _, err := e.orgs.AddMember(context.Background(), org.ID, carol.ID, models.RoleMember); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if _, err := e.invSvc.Invite(context.Background(), org.Name, carol.ID, "new@example.com", ""); err != nil {
		t.Fatalf("member invite failed: %v", err)
	}
}

func TestInvite_NonMemberForbidden(t *testing.T) {
	e, _, org, invitee := inviteEnv(t)

	_, err := e.invSvc.Invite(context.Background(), org.Name, invitee.ID, "x@example.com", "")
	assertKind(t, err, KindForbidden)
}

func TestInvite_ExistingMemberConflict(t *testing.T) {
	e, owner, org, _ := inviteEnv(t)

	_, err := e.invSvc.Invite(context.Background(), org.Name, owner.ID, owner.Email, "")
	assertKind(t, err, KindConflict)
}

func TestInvite_DuplicatePendingConflict(t *testing.T) {
	e, owner, org, _ := inviteEnv(t)

	if _, err := e.invSvc.Invite(context.Background(), org.Name, owner.ID, "bob@example.com", ""); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	_, err := e.invSvc.Invite(context.Background(), org.Name, owner.ID, "bob@example.com", "")
	assertKind(t, err, KindConflict)
}

func TestInvite_InvalidRole(t *testing.T) {
	e, owner, org, _ := inviteEnv(t)

	_, err := e.invSvc.Invite(context.Background(), org.Name, owner.ID, "x@example.com", "admin")
	assertKind(t, err, KindBadRequest)
}

// ---------------------------------------------------------------------------
// Accept
// ---------------------------------------------------------------------------

func TestAccept_CreatesMembershipAndSettles(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)

	inv, err := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	joined, err := e.invSvc.Accept(context.Background(), inv.Token, invitee.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if joined.ID != org.ID {
		t.Errorf("joined org = %s, want %s", joined.ID, org.ID)
	}
	if !e.orgs.hasMember(org.ID, invitee.ID) {
		t.Error("membership not created")
	}
	if got := e.invitations.status(inv.ID); got != models.InvitationAccepted {
		t.Errorf("status = %s, want ACCEPTED", got)
	}

	waitFor(t, func() bool { return e.notifier.acceptedCount() == 1 })
}

func TestAccept_SingleUse(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)

	inv, _ := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")
	if _, err := e.invSvc.Accept(context.Background(), inv.Token, invitee.ID); err != nil {
		t.Fatalf("first accept: %v", err)
	}

	_, err := e.invSvc.Accept(context.Background(), inv.Token, invitee.ID)
	assertKind(t, err, KindBadRequest)
}

func TestAccept_UnknownToken(t *testing.T) {
	e, _, _, invitee := inviteEnv(t)

	_, err := e.invSvc.Accept(context.Background(), "no-such-token", invitee.ID)
	assertKind(t, err, KindNotFound)
}

func TestAccept_ExpiredSettlesToExpired(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)

	inv, _ := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")
	inv.ExpiresAt = time.Now().Add(-time.Hour)

	_, err := e.invSvc.Accept(context.Background(), inv.Token, invitee.ID)
	assertKind(t, err, KindBadRequest)
	if got := e.invitations.status(inv.ID); got != models.InvitationExpired {
		t.Errorf("status = %s, want EXPIRED", got)
	}
	if e.orgs.hasMember(org.ID, invitee.ID) {
		t.Error("expired invitation created a membership")
	}

	// A retry fails on terminal status, not on expiry
	_, err = e.invSvc.Accept(context.Background(), inv.Token, invitee.ID)
	assertKind(t, err, KindBadRequest)
}

// Token possession alone is not enough; the accepting account's email must
// match the invited address.
func TestAccept_EmailBinding(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)
	stranger, _ := e.addUserAndOrg(t, "mallory", "mallory@example.com")

	inv, _ := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")

	_, err := e.invSvc.Accept(context.Background(), inv.Token, stranger.ID)
	assertKind(t, err, KindForbidden)
	if got := e.invitations.status(inv.ID); got != models.InvitationPending {
		t.Errorf("status = %s, want still PENDING", got)
	}
}

func TestAccept_AlreadyMember(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)

	inv, _ := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")
	if _, err := e.orgs.AddMember(context.Background(), org.ID, invitee.ID, models.RoleMember); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	_, err := e.invSvc.Accept(context.Background(), inv.Token, invitee.ID)
	assertKind(t, err, KindConflict)
	// The invitation still settles so it cannot be replayed
	if got := e.invitations.status(inv.ID); got != models.InvitationAccepted {
		t.Errorf("status = %s, want ACCEPTED", got)
	}
}

// ---------------------------------------------------------------------------
// Cancel
// ---------------------------------------------------------------------------

func TestCancel_CanonicalOwnerOnly(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)

	// carol holds the owner role but is not the canonical owner
	carol, _ := e.addUserAndOrg(t, "carol", "carol@example.com")
	if _, err := e.orgs.AddMember(context.Background(), org.ID, carol.ID, models.RoleOwner); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	inv, _ := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")

	err := e.invSvc.Cancel(context.Background(), org.Name, inv.ID, carol.ID)
	assertKind(t, err, KindForbidden)

	if err := e.invSvc.Cancel(context.Background(), org.Name, inv.ID, owner.ID); err != nil {
		t.Fatalf("owner cancel failed: %v", err)
	}
	if got := e.invitations.status(inv.ID); got != models.InvitationCancelled {
		t.Errorf("status = %s, want CANCELLED", got)
	}
}

func TestCancel_SettledInvitation(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)

	inv, _ := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")
	if _, err := e.invSvc.Accept(context.Background(), inv.Token, invitee.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	err := e.invSvc.Cancel(context.Background(), org.Name, inv.ID, owner.ID)
	assertKind(t, err, KindBadRequest)
}

func TestCancel_WrongOrgScope(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)
	other, otherOrg := e.addUserAndOrg(t, "other", "other@example.com")
	_ = other

	inv, _ := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")

	err := e.invSvc.Cancel(context.Background(), otherOrg.Name, inv.ID, otherOrg.OwnerID)
	assertKind(t, err, KindNotFound)
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestList_PendingOnlyAndMemberGated(t *testing.T) {
	e, owner, org, invitee := inviteEnv(t)

	accepted, _ := e.invSvc.Invite(context.Background(), org.Name, owner.ID, invitee.Email, "")
	if _, err := e.invSvc.Accept(context.Background(), accepted.Token, invitee.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := e.invSvc.Invite(context.Background(), org.Name, owner.ID, "pending@example.com", ""); err != nil {
		t.Fatalf("invite: %v", err)
	}

	invitations, err := e.invSvc.List(context.Background(), org.Name, owner.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(invitations) != 1 {
		t.Fatalf("listed = %d, want only the pending one", len(invitations))
	}
	if invitations[0].Email != "pending@example.com" {
		t.Errorf("listed %s, want pending@example.com", invitations[0].Email)
	}

	outsider, _ := e.addUserAndOrg(t, "outsider", "out@example.com")
	_, err = e.invSvc.List(context.Background(), org.Name, outsider.ID)
	assertKind(t, err, KindForbidden)
}
