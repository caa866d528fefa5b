package models

import "time"

// Client is an agency's customer whose content goes through approval.
type Client struct {
	ID        string    `db:"id"`
	AgencyID  string    `db:"agency_id"`
	Name      string    `db:"name"`
	Slug      string    `db:"slug"`
	LogoURL   *string   `db:"logo_url"`
	CreatedAt time.Time `db:"created_at"`
}

// Approver is a person at the client side authorized to approve content.
// The primary approver is the billing/decision contact.
type Approver struct {
	ID        string    `db:"id"`
	ClientID  string    `db:"client_id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	IsPrimary bool      `db:"is_primary"`
	CreatedAt time.Time `db:"created_at"`
}
