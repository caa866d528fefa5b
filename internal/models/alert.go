package models

import "time"

// AlertType identifies which tier transition triggered a security alert.
type AlertType string

const (
	AlertTypeWarned           AlertType = "repeated_failures"
	AlertTypeTemporaryBlocked AlertType = "temporary_block"
	AlertTypePermanentBlocked AlertType = "permanent_block"
)

// AlertTypeForTier maps a newly reached tier to its alert type.
// TierNone has no alert.
func AlertTypeForTier(tier BlockTier) (AlertType, bool) {
	switch tier {
	case TierWarned:
		return AlertTypeWarned, true
	case TierTemporary:
		return AlertTypeTemporaryBlocked, true
	case TierPermanent:
		return AlertTypePermanentBlocked, true
	default:
		return "", false
	}
}

// SecurityAlert records a tier transition for an address. At most one alert
// exists per (address, alert_type) pair; the repository enforces this so a
// transition is never alerted twice.
type SecurityAlert struct {
	ID              string    `db:"id"`
	Address         string    `db:"address"`
	AlertType       AlertType `db:"alert_type"`
	TriggeringCount int       `db:"triggering_count"`
	CreatedAt       time.Time `db:"created_at"`
}
