package models

import "time"

// ApprovalToken grants anonymous access to one client's pending content for
// a given month. Tokens are multi-use within their 7-day validity window;
// validity is re-checked on every use and never cached across requests.
type ApprovalToken struct {
	ID         string    `db:"id"`
	Token      string    `db:"token"`
	ClientID   string    `db:"client_id"`
	ValidMonth string    `db:"valid_month"` // YYYY-MM
	IssuedAt   time.Time `db:"issued_at"`
	ExpiresAt  time.Time `db:"expires_at"` // issued_at + 7 days
}

// Valid reports whether the token can still be used at the given instant.
func (t *ApprovalToken) Valid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// OneTimeCode is a short-lived 2FA code emailed to an approver. Unlike
// approval tokens a code is consumed on first successful redemption.
type OneTimeCode struct {
	ID         string     `db:"id"`
	ApproverID string     `db:"approver_id"`
	CodeHash   string     `db:"code_hash"` // bcrypt
	CreatedAt  time.Time  `db:"created_at"`
	ExpiresAt  time.Time  `db:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

// Redeemable reports whether the code is unconsumed and unexpired.
func (c *OneTimeCode) Redeemable(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}

// ClientSession is issued after a successful one-time code redemption and
// identifies a specific approver. Logout forces ExpiresAt into the past.
type ClientSession struct {
	ID           string    `db:"id"`
	SessionToken string    `db:"session_token"`
	ClientID     string    `db:"client_id"`
	ApproverID   string    `db:"approver_id"`
	IsPrimary    bool      `db:"is_primary"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Valid reports whether the session is still live at the given instant.
func (s *ClientSession) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
