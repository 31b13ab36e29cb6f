package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"escalation-service/internal/logging"
	"escalation-service/internal/metrics"
	"escalation-service/internal/models"
)

// Store is the notification collection of the document store.
type Store interface {
	CreateNotification(ctx context.Context, n models.Notification) error
	FindNotifications(ctx context.Context, f models.NotificationFilter) ([]models.Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// EmailChannel sends one templated email.
type EmailChannel interface {
	SendEmail(ctx context.Context, to, templateName string, data map[string]any) (models.DeliveryResult, error)
}

// DirectMessenger sends one chat or SMS message. Implementations may only be
// able to confirm the attempt, not the delivery.
type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, msg models.DirectMessage) error
}

// Gateway delivers a single notification through exactly one channel per call.
// It never aggregates outcomes across channels.
type Gateway struct {
	store  Store
	email  EmailChannel
	dm     DirectMessenger
	hub    *Hub
	logger *logging.Logger
	now    func() time.Time
}

func NewGateway(store Store, email EmailChannel, dm DirectMessenger, hub *Hub, logger *logging.Logger) *Gateway {
	return &Gateway{
		store:  store,
		email:  email,
		dm:     dm,
		hub:    hub,
		logger: logger,
		now:    time.Now,
	}
}

func (g *Gateway) SendEmail(ctx context.Context, to, templateName string, data map[string]any) (models.DeliveryResult, error) {
	res, err := g.email.SendEmail(ctx, to, templateName, data)
	switch {
	case err != nil:
		metrics.ChannelAttempts.WithLabelValues(string(models.ChannelEmail), "error").Inc()
	case !res.Success:
		metrics.ChannelAttempts.WithLabelValues(string(models.ChannelEmail), "rejected").Inc()
	default:
		metrics.ChannelAttempts.WithLabelValues(string(models.ChannelEmail), "sent").Inc()
	}
	return res, err
}

func (g *Gateway) SendDirectMessage(ctx context.Context, msg models.DirectMessage) error {
	if err := g.dm.SendDirectMessage(ctx, msg); err != nil {
		metrics.ChannelAttempts.WithLabelValues(string(models.ChannelDirectMessage), "error").Inc()
		return err
	}
	metrics.ChannelAttempts.WithLabelValues(string(models.ChannelDirectMessage), "attempted").Inc()
	return nil
}

// RecordInternalNotification writes an inbox entry for userID and pushes it to
// the user's open sessions.
func (g *Gateway) RecordInternalNotification(ctx context.Context, userID, title, body string, meta models.NotificationMeta) (models.Notification, error) {
	if userID == "" {
		return models.Notification{}, fmt.Errorf("notification recipient is required")
	}
	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: g.now().UTC(),
		Meta:      meta,
	}
	if err := g.store.CreateNotification(ctx, n); err != nil {
		outcome := "error"
		if errors.Is(err, models.ErrDuplicate) {
			outcome = "duplicate"
		}
		metrics.ChannelAttempts.WithLabelValues(string(models.ChannelInternal), outcome).Inc()
		return models.Notification{}, err
	}
	metrics.ChannelAttempts.WithLabelValues(string(models.ChannelInternal), "sent").Inc()
	if g.hub != nil {
		g.hub.PushNotification(n)
	}
	return n, nil
}

// ListForUser pages through a user's inbox, newest first.
func (g *Gateway) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return g.store.ListNotificationsByUser(ctx, userID, limit, offset)
}

func (g *Gateway) MarkRead(ctx context.Context, id string) error {
	return g.store.MarkNotificationRead(ctx, id)
}
