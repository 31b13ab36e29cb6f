package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"escalation-service/internal/models"
)

const notificationColumns = `id, user_id, title, body, read, meta_type, meta, created_at`

func (d *DB) CreateNotification(ctx context.Context, n models.Notification) error {
	var (
		meta             []byte
		role, expiryDate string
	)
	if n.Meta != nil {
		b, err := json.Marshal(n.Meta)
		if err != nil {
			return fmt.Errorf("failed to encode notification meta: %w", err)
		}
		meta = b
	}
	// role and expiry_date are lifted into columns so the duplicate lookup can use the index.
	if re, ok := n.Meta.(models.RoleExpiryMeta); ok {
		role, expiryDate = re.Role, re.ExpiryDate
	}

	query := `
        INSERT INTO notifications (
            id, user_id, title, body, read, meta_type, role, expiry_date, meta, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (user_id, role, expiry_date) WHERE meta_type = 'role-expiry' DO NOTHING`
	tag, err := d.Pool.Exec(ctx, query,
		n.ID, n.UserID, n.Title, n.Body, n.Read, n.MetaType(), role, expiryDate, meta, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role expiry %s/%s for %s: %w", role, expiryDate, n.UserID, models.ErrDuplicate)
	}
	return nil
}

// FindNotifications returns the notifications matching every non-empty filter field.
func (d *DB) FindNotifications(ctx context.Context, f models.NotificationFilter) ([]models.Notification, error) {
	var (
		conds []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("user_id", f.UserID)
	add("meta_type", f.MetaType)
	add("role", f.Role)
	add("expiry_date", f.ExpiryDate)

	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	return d.queryNotifications(ctx, query, args...)
}

// ListNotificationsByUser pages through a user's inbox, newest first.
func (d *DB) ListNotificationsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	return d.queryNotifications(ctx, query, userID, limit, offset)
}

// MarkNotificationRead flips read to true. It is the only mutation notifications get.
func (d *DB) MarkNotificationRead(ctx context.Context, id string) error {
	tag, err := d.Pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (d *DB) queryNotifications(ctx context.Context, query string, args ...any) ([]models.Notification, error) {
	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var (
			n        models.Notification
			metaType string
			meta     []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Read, &metaType, &meta, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if n.Meta, err = models.DecodeMeta(metaType, meta); err != nil {
			return nil, fmt.Errorf("notification %s: %w", n.ID, err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
