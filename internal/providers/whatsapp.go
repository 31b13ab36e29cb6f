package providers

import (
	"context"
	"fmt"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/pkg/whatsapp"
)

// linkPusher hands a deep link to the browser sessions of a user and returns
// how many sessions received it.
type linkPusher interface {
	PushLink(userID, url string) int
}

// WhatsAppMessenger opens a wa.me chat in the acting user's browser. Delivery
// cannot be confirmed; a nil error means the link reached at least one session.
type WhatsAppMessenger struct {
	pusher linkPusher
	logger *logging.Logger
}

func NewWhatsAppMessenger(pusher linkPusher, logger *logging.Logger) *WhatsAppMessenger {
	return &WhatsAppMessenger{pusher: pusher, logger: logger}
}

func (m *WhatsAppMessenger) SendDirectMessage(ctx context.Context, msg models.DirectMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link, err := whatsapp.Link(msg.To, msg.Text)
	if err != nil {
		return err
	}
	if n := m.pusher.PushLink(msg.ActorID, link); n == 0 {
		return fmt.Errorf("no open session for user %s to open chat with %s", msg.ActorID, msg.To)
	}
	m.logger.Debugf("WhatsApp link pushed to %s for %s", msg.ActorID, msg.To)
	return nil
}
