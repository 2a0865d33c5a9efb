// token_repository.go implements TokenRepository for opaque bearer tokens.
// Lookup is by SHA-256 hash of the presented token; the plaintext never
// touches the database.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agent-registry/agent-registry/internal/db/models"
)

// ErrTokenNotFound is returned when a token delete matches no row owned by
// the caller. Callers can tell this apart from transport failures.
var ErrTokenNotFound = errors.New("token not found")

// TokenRepository handles database operations for auth tokens
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// CreateToken inserts a new auth token record
func (r *TokenRepository) CreateToken(ctx context.Context, token *models.AuthToken) error {
	query := `
		INSERT INTO auth_tokens (user_id, name, token_hash, token_prefix, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		token.UserID,
		token.Name,
		token.TokenHash,
		token.TokenPrefix,
		token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

// GetTokenByHash retrieves a token by its SHA-256 hash
func (r *TokenRepository) GetTokenByHash(ctx context.Context, hash string) (*models.AuthToken, error) {
	query := `
		SELECT id, user_id, name, token_hash, token_prefix, expires_at, last_used_at,
		       expiry_notification_sent_at, created_at
		FROM auth_tokens
		WHERE token_hash = $1
	`

	token := &models.AuthToken{}
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&token.ID,
		&token.UserID,
		&token.Name,
		&token.TokenHash,
		&token.TokenPrefix,
		&token.ExpiresAt,
		&token.LastUsedAt,
		&token.ExpiryNotificationSentAt,
		&token.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return token, nil
}

// ListTokensForUser returns all tokens belonging to a user
func (r *TokenRepository) ListTokensForUser(ctx context.Context, userID string) ([]*models.AuthToken, error) {
	query := `
		SELECT id, user_id, name, token_hash, token_prefix, expires_at, last_used_at,
		       expiry_notification_sent_at, created_at
		FROM auth_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*models.AuthToken, 0)
	for rows.Next() {
		token := &models.AuthToken{}
		err := rows.Scan(
			&token.ID,
			&token.UserID,
			&token.Name,
			&token.TokenHash,
			&token.TokenPrefix,
			&token.ExpiresAt,
			&token.LastUsedAt,
			&token.ExpiryNotificationSentAt,
			&token.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// UpdateLastUsed records when the token was last presented.
// Called asynchronously from the auth middleware; failures are logged, not fatal.
func (r *TokenRepository) UpdateLastUsed(ctx context.Context, tokenID string, when time.Time) error {
	query := `
		UPDATE auth_tokens
		SET last_used_at = $2
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, tokenID, when)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}

	return nil
}

// DeleteToken removes a token owned by the given user
func (r *TokenRepository) DeleteToken(ctx context.Context, tokenID, userID string) error {
	query := `DELETE FROM auth_tokens WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, tokenID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// GetExpiringTokens returns tokens expiring within the window that have not
// yet had an expiry notification sent
func (r *TokenRepository) GetExpiringTokens(ctx context.Context, within time.Duration) ([]*models.AuthToken, error) {
	query := `
		SELECT id, user_id, name, token_hash, token_prefix, expires_at, last_used_at,
		       expiry_notification_sent_at, created_at
		FROM auth_tokens
		WHERE expires_at IS NOT NULL
		  AND expires_at > NOW()
		  AND expires_at < NOW() + $1::interval
		  AND expiry_notification_sent_at IS NULL
	`

	interval := fmt.Sprintf("%d seconds", int(within.Seconds()))
	rows, err := r.db.QueryContext(ctx, query, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]*models.AuthToken, 0)
	for rows.Next() {
		token := &models.AuthToken{}
		err := rows.Scan(
			&token.ID,
			&token.UserID,
			&token.Name,
			&token.TokenHash,
			&token.TokenPrefix,
			&token.ExpiresAt,
			&token.LastUsedAt,
			&token.ExpiryNotificationSentAt,
			&token.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expiring token: %w", err)
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// MarkExpiryNotificationSent records that a warning email went out for the token
func (r *TokenRepository) MarkExpiryNotificationSent(ctx context.Context, tokenID string) error {
	query := `
		UPDATE auth_tokens
		SET expiry_notification_sent_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, tokenID)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	return nil
}
