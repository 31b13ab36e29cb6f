package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"escalation-service/internal/logging"
	"escalation-service/internal/metrics"
	"escalation-service/internal/models"
)

const expiryDateLayout = "2006-01-02"

var expiryInputLayouts = []string{
	expiryDateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// CanonicalExpiryDate rewrites a date in any accepted layout as YYYY-MM-DD so
// the duplicate guard compares like with like.
func CanonicalExpiryDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range expiryInputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(expiryDateLayout), nil
		}
	}
	return "", fmt.Errorf("invalid expiry date %q", s)
}

// ErrInvalidRoleExpiry wraps input problems, as opposed to store failures.
var ErrInvalidRoleExpiry = errors.New("invalid role expiry")

// RoleExpiry describes an expiring role assignment.
type RoleExpiry struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	ExpiryDate string `json:"expiry_date"`
	Email      string `json:"email,omitempty"`
}

// RoleExpiryNotifier issues at most one role-expiry notice per (user, role, date).
type RoleExpiryNotifier struct {
	guard   *DuplicateGuard
	gateway *Gateway
	logger  *logging.Logger
}

func NewRoleExpiryNotifier(guard *DuplicateGuard, gateway *Gateway, logger *logging.Logger) *RoleExpiryNotifier {
	return &RoleExpiryNotifier{guard: guard, gateway: gateway, logger: logger}
}

// NotifyRoleExpiry reports whether a new notification was recorded. A failing
// duplicate check aborts without recording anything.
func (r *RoleExpiryNotifier) NotifyRoleExpiry(ctx context.Context, in RoleExpiry) (bool, error) {
	if in.UserID == "" || in.Role == "" {
		return false, fmt.Errorf("%w: user_id and role are required", ErrInvalidRoleExpiry)
	}
	date, err := CanonicalExpiryDate(in.ExpiryDate)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRoleExpiry, err)
	}

	dup, err := r.guard.HasExpiryNotification(ctx, in.UserID, in.Role, date)
	if err != nil {
		return false, err
	}
	if dup {
		r.suppressed(in.UserID, in.Role, date)
		return false, nil
	}

	title := "Role expiring soon"
	body := fmt.Sprintf("Your %s role expires on %s.", in.Role, date)
	meta := models.RoleExpiryMeta{Role: in.Role, ExpiryDate: date}
	if _, err := r.gateway.RecordInternalNotification(ctx, in.UserID, title, body, meta); err != nil {
		// A concurrent caller won the insert after our lookup.
		if errors.Is(err, models.ErrDuplicate) {
			r.suppressed(in.UserID, in.Role, date)
			return false, nil
		}
		return false, fmt.Errorf("record role expiry notification: %w", err)
	}

	if in.Email != "" {
		res, err := r.gateway.SendEmail(ctx, in.Email, "role-expiry", map[string]any{
			"Role":       in.Role,
			"ExpiryDate": date,
		})
		if err != nil || !res.Success {
			r.logger.WithFields(logrus.Fields{"user_id": in.UserID, "email": in.Email}).
				Warnf("Role expiry email not delivered: err=%v result=%+v", err, res)
		}
	}
	return true, nil
}

func (r *RoleExpiryNotifier) suppressed(userID, role, date string) {
	metrics.DuplicatesSuppressed.WithLabelValues(models.MetaRoleExpiry).Inc()
	r.logger.Debugf("Role expiry already notified: user=%s role=%s date=%s", userID, role, date)
}
