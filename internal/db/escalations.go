package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"escalation-service/internal/models"
)

// CreateEscalation writes the escalation header.
func (d *DB) CreateEscalation(ctx context.Context, e models.Escalation) error {
	input, err := json.Marshal(e.Input)
	if err != nil {
		return fmt.Errorf("failed to encode escalation input: %w", err)
	}
	query := `
        INSERT INTO escalations (id, input, status, notifications_sent, created_at)
        VALUES ($1, $2, $3, $4, $5)`
	if _, err := d.Pool.Exec(ctx, query, e.ID, input, e.Status, e.NotificationsSent, e.CreatedAt); err != nil {
		return fmt.Errorf("failed to create escalation: %w", err)
	}
	return nil
}

// CompleteEscalation closes the header with the final counts.
func (d *DB) CompleteEscalation(ctx context.Context, id string, sent int, errs []string, at time.Time) error {
	query := `
        UPDATE escalations
        SET status = $1, notifications_sent = $2, errors = $3, completed_at = $4
        WHERE id = $5`
	tag, err := d.Pool.Exec(ctx, query, models.EscalationStatusCompleted, sent, jsonOrNil(errs), at, id)
	if err != nil {
		return fmt.Errorf("failed to complete escalation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escalation %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// AppendAlertEscalation inserts one record into an alert's escalation log and
// stamps the alert's last_escalated time.
func (d *DB) AppendAlertEscalation(ctx context.Context, r models.EscalationRecord) error {
	notified, err := json.Marshal(nonNil(r.NotifiedPersons))
	if err != nil {
		return fmt.Errorf("failed to encode notified persons: %w", err)
	}
	actions, err := json.Marshal(r.ActionsTaken)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	query := `
        WITH rec AS (
            INSERT INTO alert_escalations (
                id, alert_id, escalation_id, escalated_at, escalated_by, reason, severity, urgency,
                notified_persons, actions_taken, follow_up_required, status, notifications_sent, errors
            )
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
            RETURNING alert_id, escalated_at
        )
        UPDATE critical_alerts c SET last_escalated = rec.escalated_at
        FROM rec WHERE c.id = rec.alert_id`
	_, err = d.Pool.Exec(ctx, query,
		r.ID, r.AlertID, r.EscalationID, r.Timestamp, r.EscalatedBy, r.Reason, r.Severity, r.Urgency,
		notified, actions, r.FollowUpRequired, r.Status, r.NotificationsSent, jsonOrNil(r.Errors),
	)
	if err != nil {
		return fmt.Errorf("failed to append escalation to alert %s: %w", r.AlertID, err)
	}
	return nil
}

// ListAlertEscalations returns an alert's escalation log in append order.
func (d *DB) ListAlertEscalations(ctx context.Context, alertID string) ([]models.EscalationRecord, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT id, alert_id, escalation_id, escalated_at, escalated_by, reason, severity, urgency,
               notified_persons, actions_taken, follow_up_required, status, notifications_sent, errors
        FROM alert_escalations
        WHERE alert_id = $1
        ORDER BY seq ASC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var records []models.EscalationRecord
	for rows.Next() {
		var (
			r                          models.EscalationRecord
			notified, actions, errList []byte
		)
		err := rows.Scan(
			&r.ID, &r.AlertID, &r.EscalationID, &r.Timestamp, &r.EscalatedBy, &r.Reason, &r.Severity, &r.Urgency,
			&notified, &actions, &r.FollowUpRequired, &r.Status, &r.NotificationsSent, &errList,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation record: %w", err)
		}
		if err := json.Unmarshal(notified, &r.NotifiedPersons); err != nil {
			return nil, fmt.Errorf("invalid notified_persons on %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(actions, &r.ActionsTaken); err != nil {
			return nil, fmt.Errorf("invalid actions_taken on %s: %w", r.ID, err)
		}
		if len(errList) > 0 {
			if err := json.Unmarshal(errList, &r.Errors); err != nil {
				return nil, fmt.Errorf("invalid errors on %s: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// jsonOrNil encodes a non-empty list and maps an empty one to SQL NULL.
func jsonOrNil(list []string) []byte {
	if len(list) == 0 {
		return nil
	}
	b, _ := json.Marshal(list)
	return b
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
