package notification

import (
	"context"
	"fmt"

	"escalation-service/internal/models"
)

// NotificationFinder looks notifications up by equality filters.
type NotificationFinder interface {
	FindNotifications(ctx context.Context, f models.NotificationFilter) ([]models.Notification, error)
}

// DuplicateGuard tells whether an equivalent notification was already recorded.
type DuplicateGuard struct {
	store NotificationFinder
}

func NewDuplicateGuard(store NotificationFinder) *DuplicateGuard {
	return &DuplicateGuard{store: store}
}

// HasExpiryNotification matches on user, role and the exact expiryDate string.
// A lookup failure is returned to the caller; it never means "no duplicate".
func (g *DuplicateGuard) HasExpiryNotification(ctx context.Context, userID, role, expiryDate string) (bool, error) {
	if userID == "" || role == "" || expiryDate == "" {
		return false, fmt.Errorf("user id, role and expiry date are required for the duplicate check")
	}
	found, err := g.store.FindNotifications(ctx, models.NotificationFilter{
		UserID:     userID,
		MetaType:   models.MetaRoleExpiry,
		Role:       role,
		ExpiryDate: expiryDate,
	})
	if err != nil {
		return false, fmt.Errorf("duplicate check for %s/%s/%s: %w", userID, role, expiryDate, err)
	}
	return len(found) > 0, nil
}
