package providers

import (
	"context"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
)

// smsSender is satisfied by *sms.Client.
type smsSender interface {
	Send(toNumber, body string) (string, error)
}

// SMSMessenger delivers direct messages as SMS.
type SMSMessenger struct {
	client smsSender
	logger *logging.Logger
}

func NewSMSMessenger(client smsSender, logger *logging.Logger) *SMSMessenger {
	return &SMSMessenger{client: client, logger: logger}
}

func (m *SMSMessenger) SendDirectMessage(ctx context.Context, msg models.DirectMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sid, err := m.client.Send(msg.To, msg.Text)
	if err != nil {
		return err
	}
	m.logger.WithField("sid", sid).Infof("SMS queued to %s", msg.To)
	return nil
}
