// notifier.go composes the invitation emails and records delivery metrics.
package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/agent-registry/agent-registry/internal/telemetry"
)

// Notifier sends organization invitation emails. When disabled it silently
// does nothing, so callers never need to guard their calls.
type Notifier struct {
	mailer  Mailer
	enabled bool
	baseURL string
}

// NewNotifier creates a Notifier. Pass enabled=false (with any mailer) to turn
// all deliveries into no-ops.
func NewNotifier(mailer Mailer, enabled bool, baseURL string) *Notifier {
	return &Notifier{mailer: mailer, enabled: enabled, baseURL: baseURL}
}

// InvitationCreated emails the invitee a link carrying the invitation token.
// Failures are logged and counted, never returned: invitation creation has
// already been committed when this runs.
func (n *Notifier) InvitationCreated(email, orgName, inviterName, token string) {
	if !n.enabled {
		return
	}

	subject := fmt.Sprintf("You've been invited to join %s", orgName)
	body := strings.Join([]string{
		"Hello,",
		"",
		fmt.Sprintf("%s has invited you to join the organization '%s'.", inviterName, orgName),
		"",
		"To accept, sign in with this email address and visit:",
		fmt.Sprintf("  %s/invitations/%s/accept", n.baseURL, token),
		"",
		"The invitation expires in 7 days.",
	}, "\r\n")

	if err := n.mailer.Send(email, subject, body); err != nil {
		slog.Warn("failed to send invitation email", "email", email, "org", orgName, "error", err)
		telemetry.InvitationEmailsSentTotal.WithLabelValues("failed").Inc()
		return
	}
	telemetry.InvitationEmailsSentTotal.WithLabelValues("sent").Inc()
}

// InvitationAccepted emails the inviter that the invitee joined.
func (n *Notifier) InvitationAccepted(inviterEmail, inviteeEmail, orgName string) {
	if !n.enabled {
		return
	}

	subject := fmt.Sprintf("%s joined %s", inviteeEmail, orgName)
	body := strings.Join([]string{
		"Hello,",
		"",
		fmt.Sprintf("%s has accepted your invitation to join '%s'.", inviteeEmail, orgName),
	}, "\r\n")

	if err := n.mailer.Send(inviterEmail, subject, body); err != nil {
		slog.Warn("failed to send acceptance email", "email", inviterEmail, "org", orgName, "error", err)
		telemetry.InvitationEmailsSentTotal.WithLabelValues("failed").Inc()
		return
	}
	telemetry.InvitationEmailsSentTotal.WithLabelValues("sent").Inc()
}
