package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/agent-registry/agent-registry/internal/db/models"
)

var invitationCols = []string{
	"id", "organization_id", "email", "role", "token", "invited_by",
	"status", "expires_at", "created_at", "updated_at",
}

func sampleInvitationRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(invitationCols).
		AddRow("inv-1", "org-1", "dev@example.com", models.RoleMember, "tok-abc",
			"user-1", status, time.Now().Add(24*time.Hour), time.Now(), time.Now())
}

func newInvitationRepo(t *testing.T) (*InvitationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewInvitationRepository(db), mock
}

func TestGetInvitationByToken_Found(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WithArgs("tok-abc").
		WillReturnRows(sampleInvitationRow(models.InvitationPending))

	inv, err := repo.GetInvitationByToken(context.Background(), "tok-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv == nil {
		t.Fatal("expected invitation, got nil")
	}
	if inv.Email != "dev@example.com" {
		t.Errorf("Email = %s, want dev@example.com", inv.Email)
	}
	if inv.Terminal() {
		t.Error("pending invitation reported as terminal")
	}
}

func TestGetInvitationByToken_NotFound(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectQuery("SELECT.*FROM invitations.*WHERE token").
		WillReturnRows(sqlmock.NewRows(invitationCols))

	inv, err := repo.GetInvitationByToken(context.Background(), "bogus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestSettleInvitation_Settled(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectExec("UPDATE invitations.*SET status").
		WithArgs("inv-1", models.InvitationAccepted, models.InvitationPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.SettleInvitation(context.Background(), "inv-1", models.InvitationAccepted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected settle to succeed")
	}
}

func TestSettleInvitation_AlreadySettled(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectExec("UPDATE invitations.*SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SettleInvitation(context.Background(), "inv-1", models.InvitationCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected settle to report no rows updated")
	}
}

func TestGetPendingInvitation_None(t *testing.T) {
	repo, mock := newInvitationRepo(t)
	mock.ExpectQuery("SELECT.*FROM invitations").
		WillReturnRows(sqlmock.NewRows(invitationCols))

	inv, err := repo.GetPendingInvitation(context.Background(), "org-1", "dev@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv != nil {
		t.Error("expected nil, got non-nil")
	}
}
