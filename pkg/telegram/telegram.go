package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
)

// Client sends chat messages through one bot token. The bot is created on first use.
type Client struct {
	token string
	opts  []bot.Option

	mu  sync.Mutex
	bot *bot.Bot
}

func New(token string, opts ...bot.Option) *Client {
	return &Client{token: token, opts: opts}
}

func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	b, err := c.client()
	if err != nil {
		return err
	}
	// Plain text: names and diagnoses carry '_' and '*' that Markdown rejects.
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
	}
	return nil
}

func (c *Client) client() (*bot.Bot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		return c.bot, nil
	}
	b, err := bot.New(c.token, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	c.bot = b
	return b, nil
}
