package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escalation-service/internal/models"
)

func TestMemoryAlertLogIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAlert(ctx, models.CriticalAlert{ID: "a-1", Status: models.AlertStatusOpen}))

	t0 := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, m.AppendAlertEscalation(ctx, models.EscalationRecord{ID: "r-1", AlertID: "a-1", Reason: "first", Timestamp: t0}))
	require.NoError(t, m.AppendAlertEscalation(ctx, models.EscalationRecord{ID: "r-2", AlertID: "a-1", Reason: "second", Timestamp: t0.Add(time.Minute)}))

	log, err := m.ListAlertEscalations(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "first", log[0].Reason)
	assert.Equal(t, "second", log[1].Reason)

	a, err := m.GetAlert(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, a.LastEscalated)
	assert.Equal(t, t0.Add(time.Minute), *a.LastEscalated)

	err = m.AppendAlertEscalation(ctx, models.EscalationRecord{ID: "r-3", AlertID: "nope", Reason: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryListAlertsHidesDismissed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	require.NoError(t, m.CreateAlert(ctx, models.CriticalAlert{ID: "low", BusinessID: "b", Priority: 2, Status: models.AlertStatusOpen, CreatedAt: now}))
	require.NoError(t, m.CreateAlert(ctx, models.CriticalAlert{ID: "crit", BusinessID: "b", Priority: 5, Status: models.AlertStatusOpen, CreatedAt: now}))
	require.NoError(t, m.CreateAlert(ctx, models.CriticalAlert{ID: "gone", BusinessID: "b", Priority: 5, Status: models.AlertStatusDismissed, CreatedAt: now}))
	require.NoError(t, m.CreateAlert(ctx, models.CriticalAlert{ID: "other", BusinessID: "c", Priority: 3, Status: models.AlertStatusOpen, CreatedAt: now}))

	active, err := m.ListAlerts(ctx, "b", false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "crit", active[0].ID)
	assert.Equal(t, "low", active[1].ID)

	all, err := m.ListAlerts(ctx, "b", true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryNotificationsByUserPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"n-1", "n-2", "n-3"} {
		require.NoError(t, m.CreateNotification(ctx, models.Notification{ID: id, UserID: "u-1"}))
	}
	require.NoError(t, m.CreateNotification(ctx, models.Notification{ID: "n-x", UserID: "u-2"}))

	page, err := m.ListNotificationsByUser(ctx, "u-1", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "n-2", page[0].ID)
	assert.Equal(t, "n-1", page[1].ID)

	require.NoError(t, m.MarkNotificationRead(ctx, "n-3"))
	page, err = m.ListNotificationsByUser(ctx, "u-1", 1, 0)
	require.NoError(t, err)
	assert.True(t, page[0].Read)
}
