package monitoring

import (
	"context"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
)

// errorRateThreshold is the fraction of failed jobs past which a
// high-error-rate alert is recorded. Grounded on the teacher's
// HighErrorRateRule, trimmed from a full multi-rule engine with dynamic
// z-score thresholds down to the one rule this system's event stream
// actually supports: job:complete carries success/failure, nothing else
// published on the bus has a comparable rate signal.
const errorRateThreshold = 0.1

// AlertHistory persists threshold breaches to Postgres, the same
// append-only audit pattern invalidation/audit.go uses for invalidation
// events - immutable, indexed by time.
type AlertHistory struct {
	db *sqldb.Database
}

// NewAlertHistory wraps db and ensures its table exists.
func NewAlertHistory(db *sqldb.Database) (*AlertHistory, error) {
	h := &AlertHistory{db: db}
	if err := h.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize alert schema: %w", err)
	}
	return h, nil
}

func (h *AlertHistory) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS monitoring_alerts (
			id BIGSERIAL PRIMARY KEY,
			rule TEXT NOT NULL,
			current_value DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			triggered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_monitoring_alerts_triggered_at
		ON monitoring_alerts(triggered_at DESC);
	`
	_, err := h.db.Exec(ctx, query)
	return err
}

// Record inserts one alert row.
func (h *AlertHistory) Record(ctx context.Context, rule string, currentValue, threshold float64) error {
	_, err := h.db.Exec(ctx, `
		INSERT INTO monitoring_alerts (rule, current_value, threshold)
		VALUES ($1, $2, $3)
	`, rule, currentValue, threshold)
	return err
}

// Recent returns the most recently triggered alerts, newest first.
func (h *AlertHistory) Recent(ctx context.Context, limit int) ([]AlertRecord, error) {
	rows, err := h.db.Query(ctx, `
		SELECT rule, current_value, threshold, triggered_at
		FROM monitoring_alerts
		ORDER BY triggered_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		var r AlertRecord
		if err := rows.Scan(&r.Rule, &r.CurrentValue, &r.Threshold, &r.TriggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AlertRecord is one row of monitoring_alerts.
type AlertRecord struct {
	Rule         string    `json:"rule"`
	CurrentValue float64   `json:"current_value"`
	Threshold    float64   `json:"threshold"`
	TriggeredAt  time.Time `json:"triggered_at"`
}

// evaluateErrorRate records an alert when snap's error rate clears
// errorRateThreshold. Called on the same periodic cadence the teacher's
// AlertManager.Run loop used.
func (s *Service) evaluateErrorRate(ctx context.Context, snap Snapshot) {
	rate := snap.errorRate()
	if rate < errorRateThreshold {
		return
	}
	_ = s.alerts.Record(ctx, "high_error_rate", rate, errorRateThreshold)
}
