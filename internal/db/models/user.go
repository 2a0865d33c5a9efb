// Package models - user.go defines the User model for registry accounts.
// The username doubles as the name of the user's default organization, which
// is created alongside the account at registration time.
package models

import "time"

// User represents a registered account in the registry
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
