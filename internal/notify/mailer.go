// Package notify delivers outbound notification emails (invitations, token
// expiry warnings). Delivery is best-effort: callers run sends through safego
// so a mail outage never fails the request that triggered it.
package notify

// Mailer sends a single plain-text email.
type Mailer interface {
	Send(to, subject, body string) error
}

// Noop is a Mailer that drops every message. Used when notifications are
// disabled and in tests.
type Noop struct{}

// Send discards the message
func (Noop) Send(to, subject, body string) error { return nil }
