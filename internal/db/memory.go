package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"escalation-service/internal/models"
)

// Memory is an in-process store with the same surface as DB. It backs the
// "memory" store driver and the service tests.
type Memory struct {
	mu            sync.Mutex
	alerts        map[string]models.CriticalAlert
	escalations   map[string]models.Escalation
	alertLog      map[string][]models.EscalationRecord
	notifications []models.Notification
}

func NewMemory() *Memory {
	return &Memory{
		alerts:      make(map[string]models.CriticalAlert),
		escalations: make(map[string]models.Escalation),
		alertLog:    make(map[string][]models.EscalationRecord),
	}
}

func (m *Memory) CreateAlert(_ context.Context, a models.CriticalAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.alerts[a.ID]; exists {
		return fmt.Errorf("alert %s already exists", a.ID)
	}
	a.EscalationHistory = nil
	m.alerts[a.ID] = a
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (models.CriticalAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return models.CriticalAlert{}, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	return a, nil
}

func (m *Memory) UpdateAlert(_ context.Context, a models.CriticalAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.alerts[a.ID]
	if !ok {
		return fmt.Errorf("alert %s: %w", a.ID, models.ErrNotFound)
	}
	cur.Severity, cur.Triage, cur.Priority = a.Severity, a.Triage, a.Priority
	cur.Status = a.Status
	cur.Acknowledged, cur.AcknowledgedAt, cur.AcknowledgedBy = a.Acknowledged, a.AcknowledgedAt, a.AcknowledgedBy
	cur.LastEscalated = a.LastEscalated
	cur.UpdatedAt = a.UpdatedAt
	m.alerts[a.ID] = cur
	return nil
}

func (m *Memory) MarkAlertEscalated(_ context.Context, id string, at time.Time) (models.CriticalAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.alerts[id]
	if !ok || cur.Status == models.AlertStatusDismissed {
		return models.CriticalAlert{}, fmt.Errorf("live alert %s: %w", id, models.ErrNotFound)
	}
	cur.SetSeverity(models.SeverityCritical)
	cur.Status = models.AlertStatusEscalated
	cur.LastEscalated = &at
	cur.UpdatedAt = at
	m.alerts[id] = cur
	return cur, nil
}

func (m *Memory) ListAlerts(_ context.Context, businessID string, includeDismissed bool) ([]models.CriticalAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CriticalAlert
	for _, a := range m.alerts {
		if businessID != "" && a.BusinessID != businessID {
			continue
		}
		if !includeDismissed && a.Status == models.AlertStatusDismissed {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) CreateEscalation(_ context.Context, e models.Escalation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[e.ID] = e
	return nil
}

func (m *Memory) CompleteEscalation(_ context.Context, id string, sent int, errs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escalations[id]
	if !ok {
		return fmt.Errorf("escalation %s: %w", id, models.ErrNotFound)
	}
	e.Status = models.EscalationStatusCompleted
	e.NotificationsSent = sent
	e.Errors = append([]string(nil), errs...)
	e.CompletedAt = &at
	m.escalations[id] = e
	return nil
}

// GetEscalation returns an escalation header.
func (m *Memory) GetEscalation(_ context.Context, id string) (models.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escalations[id]
	if !ok {
		return models.Escalation{}, fmt.Errorf("escalation %s: %w", id, models.ErrNotFound)
	}
	return e, nil
}

// EscalationCount reports how many headers were written.
func (m *Memory) EscalationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.escalations)
}

func (m *Memory) AppendAlertEscalation(_ context.Context, r models.EscalationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[r.AlertID]
	if !ok {
		return fmt.Errorf("alert %s: %w", r.AlertID, models.ErrNotFound)
	}
	m.alertLog[r.AlertID] = append(m.alertLog[r.AlertID], r)
	ts := r.Timestamp
	a.LastEscalated = &ts
	m.alerts[r.AlertID] = a
	return nil
}

func (m *Memory) ListAlertEscalations(_ context.Context, alertID string) ([]models.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EscalationRecord(nil), m.alertLog[alertID]...), nil
}

func (m *Memory) CreateNotification(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := n.Meta.(models.RoleExpiryMeta); ok {
		f := models.NotificationFilter{UserID: n.UserID, MetaType: models.MetaRoleExpiry, Role: re.Role, ExpiryDate: re.ExpiryDate}
		for _, existing := range m.notifications {
			if f.Matches(existing) {
				return fmt.Errorf("role expiry %s/%s for %s: %w", re.Role, re.ExpiryDate, n.UserID, models.ErrDuplicate)
			}
		}
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) FindNotifications(_ context.Context, f models.NotificationFilter) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if f.Matches(m.notifications[i]) {
			out = append(out, m.notifications[i])
		}
	}
	return out, nil
}

func (m *Memory) ListNotificationsByUser(_ context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	skipped := 0
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := m.notifications[i]
		if n.UserID != userID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
}

func (m *Memory) Close() {}
