package auth

import (
	"errors"
	"time"
)

// ErrSSONotConfigured indicates the identity provider secret is missing;
// token exchange cannot proceed until the deployment is configured.
var ErrSSONotConfigured = errors.New("sso token exchange is not configured")

// ErrInvalidToken indicates a rejected identity provider assertion.
var ErrInvalidToken = errors.New("sso token is invalid")

// User is the authenticated account subset used by login flows.
type User struct {
	ID           int64     `json:"id"`
	Login        string    `json:"login"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	Hidden       bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
