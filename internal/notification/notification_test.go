package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escalation-service/internal/db"
	"escalation-service/internal/logging"
	"escalation-service/internal/models"
)

type fakeConn struct {
	mu       sync.Mutex
	msgs     [][]byte
	err      error
	deadline time.Time
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, data)
	return nil
}

type nopEmail struct{}

func (nopEmail) SendEmail(context.Context, string, string, map[string]any) (models.DeliveryResult, error) {
	return models.DeliveryResult{Success: true}, nil
}

type nopDM struct{}

func (nopDM) SendDirectMessage(context.Context, models.DirectMessage) error { return nil }

func newTestGateway(store Store, hub *Hub) *Gateway {
	return NewGateway(store, nopEmail{}, nopDM{}, hub, logging.NewNop())
}

func TestHubDropsBrokenConnections(t *testing.T) {
	hub := NewHub(logging.NewNop())
	good := &fakeConn{}
	bad := &fakeConn{err: errors.New("broken pipe")}
	require.True(t, hub.AddConnection("u-1", good))
	require.True(t, hub.AddConnection("u-1", bad))

	assert.Equal(t, 1, hub.SendToUser("u-1", []byte("hello")))
	assert.Equal(t, 1, hub.SendToUser("u-1", []byte("again")))
	assert.Len(t, good.msgs, 2)

	hub.RemoveConnection("u-1", good)
	assert.Equal(t, 0, hub.SendToUser("u-1", []byte("nobody")))
}

// stalledConn never drains: a write only returns once its deadline passes.
type stalledConn struct {
	deadline time.Time
}

func (c *stalledConn) SetWriteDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

func (c *stalledConn) WriteMessage(int, []byte) error {
	if c.deadline.IsZero() {
		time.Sleep(2 * time.Second)
	} else {
		time.Sleep(time.Until(c.deadline))
	}
	return errors.New("i/o timeout")
}

func TestHubBoundsStalledWrites(t *testing.T) {
	hub := NewHub(logging.NewNop())
	hub.writeWait = 20 * time.Millisecond
	good := &fakeConn{}
	stalled := &stalledConn{}
	require.True(t, hub.AddConnection("u-1", good))
	require.True(t, hub.AddConnection("u-1", stalled))

	start := time.Now()
	assert.Equal(t, 1, hub.SendToUser("u-1", []byte("hello")))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, good.deadline.IsZero())
	assert.Len(t, good.msgs, 1)

	hub.mutex.Lock()
	assert.Len(t, hub.connections["u-1"], 1)
	hub.mutex.Unlock()
}

func TestHubConnectionLimit(t *testing.T) {
	hub := NewHub(logging.NewNop())
	for i := 0; i < maxConnectionsPerUser; i++ {
		require.True(t, hub.AddConnection("u-1", &fakeConn{}))
	}
	assert.False(t, hub.AddConnection("u-1", &fakeConn{}))
}

func TestRecordInternalNotificationPersistsAndPushes(t *testing.T) {
	store := db.NewMemory()
	hub := NewHub(logging.NewNop())
	conn := &fakeConn{}
	hub.AddConnection("dr-1", conn)
	g := newTestGateway(store, hub)

	meta := models.EscalationInitiatedMeta{EscalationID: "e-1", NotificationsSent: 2, Channels: []models.Channel{models.ChannelEmail}}
	n, err := g.RecordInternalNotification(context.Background(), "dr-1", "Escalation sent", "2 notifications sent", meta)
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	inbox, err := g.ListForUser(context.Background(), "dr-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, meta, inbox[0].Meta)

	require.Len(t, conn.msgs, 1)
	var ev Event
	require.NoError(t, json.Unmarshal(conn.msgs[0], &ev))
	assert.Equal(t, EventNotification, ev.Type)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, models.MetaEscalationInitiated, ev.Notification.MetaType())

	require.NoError(t, g.MarkRead(context.Background(), n.ID))
	inbox, _ = g.ListForUser(context.Background(), "dr-1", 10, 0)
	assert.True(t, inbox[0].Read)
}

func TestHasExpiryNotificationExactMatch(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemory()
	g := newTestGateway(store, nil)
	_, err := g.RecordInternalNotification(ctx, "u", "Role expiring", "", models.RoleExpiryMeta{Role: "doctor", ExpiryDate: "2025-07-01"})
	require.NoError(t, err)
	guard := NewDuplicateGuard(store)

	found, err := guard.HasExpiryNotification(ctx, "u", "doctor", "2025-07-01")
	require.NoError(t, err)
	assert.True(t, found)

	for _, tc := range []struct{ user, role, date string }{
		{"v", "doctor", "2025-07-01"},
		{"u", "nurse", "2025-07-01"},
		{"u", "doctor", "2025-07-02"},
		{"u", "doctor", "07/01/2025"},
	} {
		found, err := guard.HasExpiryNotification(ctx, tc.user, tc.role, tc.date)
		require.NoError(t, err)
		assert.False(t, found, "%+v", tc)
	}
}

type failingFinder struct{}

func (failingFinder) FindNotifications(context.Context, models.NotificationFilter) ([]models.Notification, error) {
	return nil, errors.New("store unavailable")
}

func TestHasExpiryNotificationPropagatesLookupFailure(t *testing.T) {
	guard := NewDuplicateGuard(failingFinder{})
	found, err := guard.HasExpiryNotification(context.Background(), "u", "doctor", "2025-07-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.False(t, found)
}

func TestNotifyRoleExpiryOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemory()
	g := newTestGateway(store, nil)
	n := NewRoleExpiryNotifier(NewDuplicateGuard(store), g, logging.NewNop())

	created, err := n.NotifyRoleExpiry(ctx, RoleExpiry{UserID: "u", Role: "doctor", ExpiryDate: "2025-07-01"})
	require.NoError(t, err)
	assert.True(t, created)

	// Same date in another layout is the same expiry.
	created, err = n.NotifyRoleExpiry(ctx, RoleExpiry{UserID: "u", Role: "doctor", ExpiryDate: "07/01/2025"})
	require.NoError(t, err)
	assert.False(t, created)

	inbox, err := store.FindNotifications(ctx, models.NotificationFilter{UserID: "u", MetaType: models.MetaRoleExpiry})
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

// blindFinder never sees an earlier notification, like two callers that both
// ran their lookup before either inserted.
type blindFinder struct{}

func (blindFinder) FindNotifications(context.Context, models.NotificationFilter) ([]models.Notification, error) {
	return nil, nil
}

func TestNotifyRoleExpiryStoreRejectsLateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemory()
	n := NewRoleExpiryNotifier(NewDuplicateGuard(blindFinder{}), newTestGateway(store, nil), logging.NewNop())

	created, err := n.NotifyRoleExpiry(ctx, RoleExpiry{UserID: "u", Role: "doctor", ExpiryDate: "2025-07-01"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = n.NotifyRoleExpiry(ctx, RoleExpiry{UserID: "u", Role: "doctor", ExpiryDate: "2025-07-01"})
	require.NoError(t, err)
	assert.False(t, created)

	inbox, err := store.FindNotifications(ctx, models.NotificationFilter{UserID: "u", MetaType: models.MetaRoleExpiry})
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestNotifyRoleExpiryConcurrentCallersCreateOne(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemory()
	n := NewRoleExpiryNotifier(NewDuplicateGuard(store), newTestGateway(store, nil), logging.NewNop())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := n.NotifyRoleExpiry(ctx, RoleExpiry{UserID: "u", Role: "doctor", ExpiryDate: "2025-07-01"})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	inbox, err := store.FindNotifications(ctx, models.NotificationFilter{UserID: "u", MetaType: models.MetaRoleExpiry})
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestNotifyRoleExpiryAbortsWhenGuardFails(t *testing.T) {
	store := db.NewMemory()
	n := NewRoleExpiryNotifier(NewDuplicateGuard(failingFinder{}), newTestGateway(store, nil), logging.NewNop())

	created, err := n.NotifyRoleExpiry(context.Background(), RoleExpiry{UserID: "u", Role: "doctor", ExpiryDate: "2025-07-01"})
	require.Error(t, err)
	assert.False(t, created)

	inbox, _ := store.ListNotificationsByUser(context.Background(), "u", 10, 0)
	assert.Empty(t, inbox)
}

func TestCanonicalExpiryDate(t *testing.T) {
	for in, want := range map[string]string{
		"2025-07-01":           "2025-07-01",
		"2025-07-01T23:00:00Z": "2025-07-01",
		"07/01/2025":           "2025-07-01",
		"1 Jul 2025":           "2025-07-01",
		"July 1, 2025":         "2025-07-01",
	} {
		got, err := CanonicalExpiryDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := CanonicalExpiryDate("next tuesday")
	assert.Error(t, err)
}
