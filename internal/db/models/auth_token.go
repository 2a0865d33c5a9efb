// Package models - auth_token.go defines the AuthToken model for opaque bearer
// tokens. Only the SHA-256 hash of a token is persisted; the plaintext is shown
// once at creation time and never stored.
package models

import "time"

// AuthToken represents a bearer token issued to a user
type AuthToken struct {
	ID                       string     `json:"id"`
	UserID                   string     `json:"user_id"`
	Name                     string     `json:"name"`
	TokenHash                string     `json:"-"`
	TokenPrefix              string     `json:"token_prefix"`
	ExpiresAt                *time.Time `json:"expires_at,omitempty"`
	LastUsedAt               *time.Time `json:"last_used_at,omitempty"`
	ExpiryNotificationSentAt *time.Time `json:"-"`
	CreatedAt                time.Time  `json:"created_at"`
}
