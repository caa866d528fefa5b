package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AgencyUser is an authenticated platform user (agency staff or operator).
// Client-side approvers never have one of these; they use approval tokens
// and one-time-code sessions instead.
type AgencyUser struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Role      string    `db:"role"` // "member" or "admin"
	CreatedAt time.Time `db:"created_at"`
}

// TokenClaims are the JWT claims carried by agency bearer tokens.
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
