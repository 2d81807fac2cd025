package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CallbackRequest carries the identity-provider token presented after the
// OAuth redirect. The token is verified server-side before any roster lookup.
type CallbackRequest struct {
	IDToken   string `json:"id_token" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// Identity is the subset of identity-provider claims the role resolver needs.
type Identity struct {
	Subject  string
	Email    string
	FullName string
}

// LoginResponse returns the issued tokens and resolved role.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
	// RosterID points at the roster row (student/teacher/principal/admin)
	// the identity was linked to.
	RosterID string `json:"roster_id"`
}

// JWTClaims represents the JWT payload for access tokens. Role is resolved
// once at login and re-validated from the signed token on every request.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	RosterID string   `json:"roster_id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
