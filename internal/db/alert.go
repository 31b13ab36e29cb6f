package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"escalation-service/internal/models"
)

const alertColumns = `
	id, business_id, patient_name, message, severity, triage, priority, alert_type,
	ward, hospital, diagnosis, assigned_doctor, status, acknowledged, acknowledged_at,
	acknowledged_by, last_escalated, created_at, updated_at`

// CreateAlert inserts a new critical alert.
func (d *DB) CreateAlert(ctx context.Context, a models.CriticalAlert) error {
	query := `
    INSERT INTO critical_alerts (` + alertColumns + `
    ) VALUES (
        $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
        $11, $12, $13, $14, $15, $16, $17, $18, $19
    )`

	_, err := d.Pool.Exec(ctx, query,
		a.ID,
		a.BusinessID,
		a.PatientName,
		a.Message,
		string(a.Severity),
		string(a.Triage),
		a.Priority,
		string(a.AlertType),
		a.Ward,
		a.Hospital,
		a.Diagnosis,
		a.AssignedDoctor,
		string(a.Status),
		a.Acknowledged,
		a.AcknowledgedAt,
		nullable(a.AcknowledgedBy),
		a.LastEscalated,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert fetches one alert without its escalation history.
func (d *DB) GetAlert(ctx context.Context, id string) (models.CriticalAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM critical_alerts WHERE id = $1`
	a, err := scanAlert(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CriticalAlert{}, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
		}
		return models.CriticalAlert{}, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return a, nil
}

// UpdateAlert overwrites the mutable fields of an alert.
func (d *DB) UpdateAlert(ctx context.Context, a models.CriticalAlert) error {
	query := `
    UPDATE critical_alerts
    SET severity = $1, triage = $2, priority = $3, status = $4, acknowledged = $5,
        acknowledged_at = $6, acknowledged_by = $7, last_escalated = $8, updated_at = $9
    WHERE id = $10`
	tag, err := d.Pool.Exec(ctx, query,
		string(a.Severity),
		string(a.Triage),
		a.Priority,
		string(a.Status),
		a.Acknowledged,
		a.AcknowledgedAt,
		nullable(a.AcknowledgedBy),
		a.LastEscalated,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", a.ID, models.ErrNotFound)
	}
	return nil
}

// MarkAlertEscalated upgrades a live alert to critical and stamps last_escalated.
// Acknowledgement columns are left as they are in the row.
func (d *DB) MarkAlertEscalated(ctx context.Context, id string, at time.Time) (models.CriticalAlert, error) {
	var up models.CriticalAlert
	up.SetSeverity(models.SeverityCritical)
	query := `
    UPDATE critical_alerts
    SET severity = $1, triage = $2, priority = $3, status = $4, last_escalated = $5, updated_at = $5
    WHERE id = $6 AND status <> 'dismissed'
    RETURNING ` + alertColumns
	a, err := scanAlert(d.Pool.QueryRow(ctx, query,
		string(up.Severity),
		string(up.Triage),
		up.Priority,
		string(models.AlertStatusEscalated),
		at,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CriticalAlert{}, fmt.Errorf("live alert %s: %w", id, models.ErrNotFound)
		}
		return models.CriticalAlert{}, fmt.Errorf("failed to mark alert %s escalated: %w", id, err)
	}
	return a, nil
}

// ListAlerts returns the alerts of a business, newest first. An empty businessID lists all.
func (d *DB) ListAlerts(ctx context.Context, businessID string, includeDismissed bool) ([]models.CriticalAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM critical_alerts WHERE ($1 = '' OR business_id = $1)`
	if !includeDismissed {
		query += ` AND status <> 'dismissed'`
	}
	query += ` ORDER BY priority DESC, created_at DESC`

	rows, err := d.Pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.CriticalAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(row pgx.Row) (models.CriticalAlert, error) {
	var (
		a                                   models.CriticalAlert
		severity, triage, alertType, status string
		acknowledgedBy                      *string
	)
	err := row.Scan(
		&a.ID, &a.BusinessID, &a.PatientName, &a.Message, &severity, &triage, &a.Priority, &alertType,
		&a.Ward, &a.Hospital, &a.Diagnosis, &a.AssignedDoctor, &status, &a.Acknowledged, &a.AcknowledgedAt,
		&acknowledgedBy, &a.LastEscalated, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return models.CriticalAlert{}, err
	}
	a.Severity = models.Severity(severity)
	a.Triage = models.Severity(triage)
	a.AlertType = models.AlertType(alertType)
	a.Status = models.AlertStatus(status)
	if acknowledgedBy != nil {
		a.AcknowledgedBy = *acknowledgedBy
	}
	return a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
