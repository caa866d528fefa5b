package repositories

import (
	"context"
	"fmt"

	"github.com/clearproof/gatekeeper/internal/database"
	"github.com/clearproof/gatekeeper/internal/models"
)

// AlertRepository persists security alerts. A unique constraint on
// (address, alert_type) makes alert creation idempotent: a tier transition
// is recorded at most once no matter how many instances race on it.
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// CreateOnce inserts the alert if this transition has not been recorded
// yet and reports whether this call created it. The caller only dispatches
// the notification when created is true.
func (r *AlertRepository) CreateOnce(ctx context.Context, alert *models.SecurityAlert) (bool, error) {
	query := `
		INSERT INTO security_alerts (address, alert_type, triggering_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (address, alert_type) DO NOTHING
	`

	tag, err := r.db.Pool.Exec(ctx, query, alert.Address, alert.AlertType, alert.TriggeringCount)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return tag.RowsAffected() == 1, nil
}

// List returns alerts newest first for the security dashboard.
func (r *AlertRepository) List(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error) {
	query := `
		SELECT id, address, alert_type, triggering_count, created_at
		FROM security_alerts
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)
	for rows.Next() {
		var a models.SecurityAlert
		if err := rows.Scan(&a.ID, &a.Address, &a.AlertType, &a.TriggeringCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan security alert: %w", err)
		}
		alerts = append(alerts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return alerts, nil
}
