// Package jobs contains background loops that run alongside the HTTP server.
//
// token_expiry_notifier.go implements the TokenExpiryNotifier job, which
// periodically scans for bearer tokens approaching their expiry date and sends
// a warning email to the owning user. Notification state is persisted in the
// database (expiry_notification_sent_at column) so emails are sent exactly
// once even across server restarts. The job is a no-op when
// notifications.enabled is false or when the SMTP host is not configured, so
// it is always safe to start regardless of deployment environment.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agent-registry/agent-registry/internal/config"
	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/notify"
	"github.com/agent-registry/agent-registry/internal/telemetry"
)

// TokenStore is the subset of the token repository the notifier needs.
type TokenStore interface {
	GetExpiringTokens(ctx context.Context, within time.Duration) ([]*models.AuthToken, error)
	MarkExpiryNotificationSent(ctx context.Context, tokenID string) error
}

// UserStore resolves token owners to email addresses.
type UserStore interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// TokenExpiryNotifier periodically emails users whose tokens are about to expire.
type TokenExpiryNotifier struct {
	tokens   TokenStore
	users    UserStore
	mailer   notify.Mailer
	cfg      *config.NotificationsConfig
	interval time.Duration
	stopChan chan struct{}
}

// NewTokenExpiryNotifier creates a new TokenExpiryNotifier.
func NewTokenExpiryNotifier(tokens TokenStore, users UserStore, mailer notify.Mailer, cfg *config.NotificationsConfig) *TokenExpiryNotifier {
	hours := cfg.TokenExpiryCheckIntervalHours
	if hours <= 0 {
		hours = 24
	}
	return &TokenExpiryNotifier{
		tokens:   tokens,
		users:    users,
		mailer:   mailer,
		cfg:      cfg,
		interval: time.Duration(hours) * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background expiry-notification loop.
// It runs an initial check immediately, then repeats on the configured interval.
// The loop exits when ctx is cancelled or Stop() is called.
func (n *TokenExpiryNotifier) Start(ctx context.Context) {
	if !n.cfg.Enabled {
		slog.Info("token expiry notifier disabled", "reason", "notifications.enabled=false")
		return
	}
	if n.cfg.SMTP.Host == "" {
		slog.Info("token expiry notifier disabled", "reason", "notifications.smtp.host not set")
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	slog.Info("token expiry notifier started",
		"interval", n.interval, "warning_days", n.cfg.TokenExpiryWarningDays)

	// Run once immediately on startup
	n.runCheck(ctx)

	for {
		select {
		case <-ticker.C:
			n.runCheck(ctx)
		case <-n.stopChan:
			slog.Info("token expiry notifier stopped")
			return
		case <-ctx.Done():
			slog.Info("token expiry notifier context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (n *TokenExpiryNotifier) Stop() {
	close(n.stopChan)
}

// runCheck queries for expiring tokens and sends notification emails.
func (n *TokenExpiryNotifier) runCheck(ctx context.Context) {
	warningDays := n.cfg.TokenExpiryWarningDays
	if warningDays <= 0 {
		warningDays = 7
	}

	tokens, err := n.tokens.GetExpiringTokens(ctx, time.Duration(warningDays)*24*time.Hour)
	if err != nil {
		slog.Error("token expiry notifier: failed to query expiring tokens", "error", err)
		return
	}

	if len(tokens) == 0 {
		return
	}

	slog.Info("token expiry notifier: tokens approaching expiry", "count", len(tokens))

	for _, token := range tokens {
		user, err := n.users.GetUserByID(ctx, token.UserID)
		if err != nil {
			slog.Error("token expiry notifier: could not retrieve user",
				"user_id", token.UserID, "token_id", token.ID, "error", err)
			continue
		}
		if user == nil || user.Email == "" {
			continue
		}

		if err := n.sendExpiryEmail(user.Email, user.Username, token); err != nil {
			slog.Error("token expiry notifier: failed to send email", "email", user.Email, "error", err)
			continue
		}
		telemetry.TokenExpiryNotificationsSentTotal.Inc()

		if err := n.tokens.MarkExpiryNotificationSent(ctx, token.ID); err != nil {
			slog.Error("token expiry notifier: failed to mark notification sent",
				"token_id", token.ID, "error", err)
		}
	}
}

// sendExpiryEmail composes and delivers a plain-text warning email.
func (n *TokenExpiryNotifier) sendExpiryEmail(toEmail, username string, token *models.AuthToken) error {
	daysLeft := int(time.Until(*token.ExpiresAt).Hours()/24) + 1
	if daysLeft < 0 {
		daysLeft = 0
	}

	subject := fmt.Sprintf("Action required: token '%s' expires in %d day(s)", token.Name, daysLeft)
	body := strings.Join([]string{
		fmt.Sprintf("Hello %s,", username),
		"",
		fmt.Sprintf("Your registry token '%s' (%s...) will expire on %s (%d day(s) from now).",
			token.Name, token.TokenPrefix, token.ExpiresAt.UTC().Format(time.RFC1123), daysLeft),
		"",
		"To avoid disruption, create a replacement token before the expiry date",
		"and update any CI pipelines or local configuration using the old one.",
		"",
		"If you no longer need this token, no action is required.",
	}, "\r\n")

	return n.mailer.Send(toEmail, subject, body)
}
