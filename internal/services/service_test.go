package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escalation-service/internal/alerts"
	"escalation-service/internal/config"
	"escalation-service/internal/db"
	"escalation-service/internal/escalation"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/notification"
)

type nopEmail struct{ sent []string }

func (e *nopEmail) SendEmail(_ context.Context, to, _ string, _ map[string]any) (models.DeliveryResult, error) {
	e.sent = append(e.sent, to)
	return models.DeliveryResult{Success: true}, nil
}

type nopDM struct{}

func (nopDM) SendDirectMessage(context.Context, models.DirectMessage) error { return nil }

type fixture struct {
	svc   *Service
	store *db.Memory
	email *nopEmail
}

func newFixture(t *testing.T, autoEscalate bool) fixture {
	t.Helper()
	var cfg config.Config
	cfg.Notification.QueueSize = 4
	cfg.Notification.MaxWorkers = 2
	cfg.Escalation.AutoEscalateCritical = autoEscalate

	logger := logging.NewNop()
	store := db.NewMemory()
	email := &nopEmail{}
	gateway := notification.NewGateway(store, email, nopDM{}, nil, logger)
	coord := escalation.NewCoordinator(store, gateway, logger, 0)
	lifecycle := alerts.NewLifecycle(store, coord, logger)
	notifier := notification.NewRoleExpiryNotifier(notification.NewDuplicateGuard(store), gateway, logger)
	return fixture{svc: New(lifecycle, gateway, notifier, logger, cfg), store: store, email: email}
}

func criticalVitals() models.Task {
	return models.Task{
		RequestID:      "req-1",
		Type:           models.TaskCriticalAlert,
		AssignedUserID: "dr-1",
		DoctorEmail:    "dr@example.org",
		Alert: &models.AlertCreate{
			PatientName: "Jane Roe",
			Message:     "SpO2 82%",
			Severity:    "critical",
			AlertType:   "vitals",
		},
	}
}

func TestCriticalAlertWithoutAutoEscalation(t *testing.T) {
	f := newFixture(t, false)
	f.svc.handleTask(context.Background(), criticalVitals())

	list, err := f.store.ListAlerts(context.Background(), "", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.AlertStatusOpen, list[0].Status)

	inbox, err := f.store.ListNotificationsByUser(context.Background(), "dr-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.MetaVitalsAlert, inbox[0].MetaType())
	assert.Empty(t, f.email.sent)
}

func TestCriticalAlertAutoEscalates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.svc.handleTask(ctx, criticalVitals())

	list, err := f.store.ListAlerts(ctx, "", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.AlertStatusEscalated, list[0].Status)
	assert.Equal(t, []string{"dr@example.org"}, f.email.sent)

	history, err := f.store.ListAlertEscalations(ctx, list[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, SystemActor, history[0].EscalatedBy)

	auto, err := f.store.FindNotifications(ctx, models.NotificationFilter{UserID: "dr-1", MetaType: models.MetaAutoEscalation})
	require.NoError(t, err)
	assert.Len(t, auto, 1)
	initiated, err := f.store.FindNotifications(ctx, models.NotificationFilter{UserID: SystemActor, MetaType: models.MetaEscalationInitiated})
	require.NoError(t, err)
	assert.Len(t, initiated, 1)
}

func TestHighAlertIsNotAutoEscalated(t *testing.T) {
	f := newFixture(t, true)
	task := criticalVitals()
	task.Alert.Severity = "high"
	f.svc.handleTask(context.Background(), task)

	list, _ := f.store.ListAlerts(context.Background(), "", false)
	require.Len(t, list, 1)
	assert.Equal(t, models.AlertStatusOpen, list[0].Status)
	assert.Zero(t, f.store.EscalationCount())
}

func TestRoleExpiryTaskIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	task := models.Task{RequestID: "req-2", Type: models.TaskRoleExpiry, UserID: "u-1", Role: "doctor", ExpiryDate: "2025-07-01"}
	f.svc.handleTask(ctx, task)
	task.ExpiryDate = "2025-07-01T00:00:00Z"
	f.svc.handleTask(ctx, task)

	inbox, err := f.store.FindNotifications(ctx, models.NotificationFilter{UserID: "u-1", MetaType: models.MetaRoleExpiry})
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) NotifyRoleExpiry(context.Context, notification.RoleExpiry) (bool, error) {
	f.calls++
	return false, errors.New("store down")
}

func TestWorkerPoolDrainsQueue(t *testing.T) {
	var cfg config.Config
	cfg.Notification.QueueSize = 2
	cfg.Notification.MaxWorkers = 1
	expiry := &failingNotifier{}
	svc := New(nil, nil, expiry, logging.NewNop(), cfg)

	assert.True(t, svc.QueueTask(models.Task{RequestID: "a", Type: models.TaskRoleExpiry}))
	assert.True(t, svc.QueueTask(models.Task{RequestID: "b", Type: models.TaskRoleExpiry}))
	assert.False(t, svc.QueueTask(models.Task{RequestID: "c", Type: models.TaskRoleExpiry}))

	var wg sync.WaitGroup
	svc.Start(&wg)
	require.Eventually(t, func() bool { return len(svc.tasks) == 0 }, time.Second, 5*time.Millisecond)
	svc.Stop()
	wg.Wait()
	assert.Equal(t, 2, expiry.calls)
}
