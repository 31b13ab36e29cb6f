// Package alerts owns the state transitions of a CriticalAlert.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
)

var (
	// ErrAlertDismissed is returned for any transition on a dismissed alert.
	ErrAlertDismissed = errors.New("alert is dismissed")
	// ErrInvalidAlert wraps every input problem found by the lifecycle.
	ErrInvalidAlert = errors.New("invalid alert")
)

type Store interface {
	CreateAlert(ctx context.Context, a models.CriticalAlert) error
	GetAlert(ctx context.Context, id string) (models.CriticalAlert, error)
	UpdateAlert(ctx context.Context, a models.CriticalAlert) error
	MarkAlertEscalated(ctx context.Context, id string, at time.Time) (models.CriticalAlert, error)
	ListAlerts(ctx context.Context, businessID string, includeDismissed bool) ([]models.CriticalAlert, error)
	ListAlertEscalations(ctx context.Context, alertID string) ([]models.EscalationRecord, error)
}

// Escalator is satisfied by *escalation.Coordinator.
type Escalator interface {
	Escalate(ctx context.Context, in models.EscalationInput) (models.EscalationResult, error)
}

type Lifecycle struct {
	store     Store
	escalator Escalator
	logger    *logging.Logger
	now       func() time.Time
}

func NewLifecycle(store Store, escalator Escalator, logger *logging.Logger) *Lifecycle {
	return &Lifecycle{store: store, escalator: escalator, logger: logger, now: time.Now}
}

// Create validates and stores a new open alert.
func (l *Lifecycle) Create(ctx context.Context, in models.AlertCreate) (models.CriticalAlert, error) {
	if strings.TrimSpace(in.PatientName) == "" {
		return models.CriticalAlert{}, fmt.Errorf("%w: patient name is required", ErrInvalidAlert)
	}
	sev, err := models.ParseSeverity(in.Severity)
	if err != nil {
		return models.CriticalAlert{}, fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	typ, err := models.ParseAlertType(in.AlertType)
	if err != nil {
		return models.CriticalAlert{}, fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}

	now := l.now().UTC()
	a := models.CriticalAlert{
		ID:             uuid.NewString(),
		BusinessID:     in.BusinessID,
		PatientName:    strings.TrimSpace(in.PatientName),
		Message:        in.Message,
		AlertType:      typ,
		Ward:           in.Ward,
		Hospital:       in.Hospital,
		Diagnosis:      in.Diagnosis,
		AssignedDoctor: in.AssignedDoctor,
		Status:         models.AlertStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	a.SetSeverity(sev)
	if err := l.store.CreateAlert(ctx, a); err != nil {
		return models.CriticalAlert{}, fmt.Errorf("create alert: %w", err)
	}
	l.logger.Infof("Alert %s created for %s (%s)", a.ID, a.PatientName, a.Severity)
	return a, nil
}

// Get returns the alert together with its escalation log.
func (l *Lifecycle) Get(ctx context.Context, id string) (models.CriticalAlert, error) {
	a, err := l.store.GetAlert(ctx, id)
	if err != nil {
		return models.CriticalAlert{}, err
	}
	return l.withHistory(ctx, a)
}

func (l *Lifecycle) List(ctx context.Context, businessID string, includeDismissed bool) ([]models.CriticalAlert, error) {
	return l.store.ListAlerts(ctx, businessID, includeDismissed)
}

// History returns the escalation log of an existing alert in append order.
func (l *Lifecycle) History(ctx context.Context, id string) ([]models.EscalationRecord, error) {
	if _, err := l.store.GetAlert(ctx, id); err != nil {
		return nil, err
	}
	return l.store.ListAlertEscalations(ctx, id)
}

// Acknowledge marks the alert seen by `by`. Repeating it overwrites the pair.
func (l *Lifecycle) Acknowledge(ctx context.Context, id, by string) (models.CriticalAlert, error) {
	if strings.TrimSpace(by) == "" {
		return models.CriticalAlert{}, fmt.Errorf("%w: acknowledged_by is required", ErrInvalidAlert)
	}
	a, err := l.load(ctx, id)
	if err != nil {
		return models.CriticalAlert{}, err
	}
	now := l.now().UTC()
	a.Acknowledge(strings.TrimSpace(by), now)
	a.UpdatedAt = now
	if err := l.store.UpdateAlert(ctx, a); err != nil {
		return models.CriticalAlert{}, fmt.Errorf("acknowledge alert %s: %w", id, err)
	}
	return l.withHistory(ctx, a)
}

func (l *Lifecycle) ChangeSeverity(ctx context.Context, id, severity string) (models.CriticalAlert, error) {
	sev, err := models.ParseSeverity(severity)
	if err != nil {
		return models.CriticalAlert{}, fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	a, err := l.load(ctx, id)
	if err != nil {
		return models.CriticalAlert{}, err
	}
	a.SetSeverity(sev)
	a.UpdatedAt = l.now().UTC()
	if err := l.store.UpdateAlert(ctx, a); err != nil {
		return models.CriticalAlert{}, fmt.Errorf("change severity of alert %s: %w", id, err)
	}
	return l.withHistory(ctx, a)
}

// Escalate runs an escalation for the alert and then upgrades it to critical.
// The upgrade happens whatever the channel outcome, but only once the
// escalation was recorded; any error from the escalator leaves the alert
// untouched. in.Severity records the severity at the time of escalation and
// defaults to the alert's current one.
func (l *Lifecycle) Escalate(ctx context.Context, id string, in models.EscalationInput) (models.CriticalAlert, models.EscalationResult, error) {
	a, err := l.load(ctx, id)
	if err != nil {
		return models.CriticalAlert{}, models.EscalationResult{}, err
	}
	in.AlertID = a.ID
	if strings.TrimSpace(in.PatientName) == "" {
		in.PatientName = a.PatientName
	}
	if in.BusinessID == "" {
		in.BusinessID = a.BusinessID
	}
	if in.Severity == "" {
		in.Severity = string(a.Severity)
	}

	res, err := l.escalator.Escalate(ctx, in)
	if err != nil {
		return a, res, err
	}

	// Channels may take a while; write only the escalation columns so a
	// concurrent acknowledgement survives.
	up, err := l.store.MarkAlertEscalated(ctx, id, l.now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			if cur, getErr := l.store.GetAlert(ctx, id); getErr == nil && cur.Status == models.AlertStatusDismissed {
				err = fmt.Errorf("alert %s: %w", id, ErrAlertDismissed)
			}
		}
		return a, res, fmt.Errorf("upgrade escalated alert %s: %w", id, err)
	}
	l.logger.Infof("Alert %s escalated by %s: %d notification(s) sent", up.ID, in.EscalatedBy, res.NotificationsSent)

	up, err = l.withHistory(ctx, up)
	return up, res, err
}

// Dismiss closes the alert for good.
func (l *Lifecycle) Dismiss(ctx context.Context, id string) error {
	a, err := l.load(ctx, id)
	if err != nil {
		return err
	}
	a.Status = models.AlertStatusDismissed
	a.UpdatedAt = l.now().UTC()
	if err := l.store.UpdateAlert(ctx, a); err != nil {
		return fmt.Errorf("dismiss alert %s: %w", id, err)
	}
	l.logger.Infof("Alert %s dismissed", id)
	return nil
}

// load fetches an alert that may still change state.
func (l *Lifecycle) load(ctx context.Context, id string) (models.CriticalAlert, error) {
	a, err := l.store.GetAlert(ctx, id)
	if err != nil {
		return models.CriticalAlert{}, err
	}
	if a.Status == models.AlertStatusDismissed {
		return models.CriticalAlert{}, fmt.Errorf("alert %s: %w", id, ErrAlertDismissed)
	}
	return a, nil
}

func (l *Lifecycle) withHistory(ctx context.Context, a models.CriticalAlert) (models.CriticalAlert, error) {
	history, err := l.store.ListAlertEscalations(ctx, a.ID)
	if err != nil {
		return a, fmt.Errorf("load escalation history of %s: %w", a.ID, err)
	}
	a.EscalationHistory = history
	return a, nil
}
