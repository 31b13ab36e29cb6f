package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/internal/utils"
)

// chatSender is satisfied by *telegram.Client.
type chatSender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramMessenger delivers direct messages to Telegram chat ids.
type TelegramMessenger struct {
	client  chatSender
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewTelegramMessenger sends at most ratePerSecond messages per second; a
// non-positive rate falls back to one.
func NewTelegramMessenger(client chatSender, ratePerSecond int, logger *logging.Logger) *TelegramMessenger {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &TelegramMessenger{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger,
	}
}

func (m *TelegramMessenger) SendDirectMessage(ctx context.Context, msg models.DirectMessage) error {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(msg.To), "tg:"), 10, 64)
	if err != nil || chatID == 0 {
		return fmt.Errorf("invalid telegram chat id %q", msg.To)
	}

	// Check rate limit
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	return utils.Retry(ctx, m.logger, 3, time.Second, func() error {
		return m.client.Send(ctx, chatID, msg.Text)
	})
}
