package providers

import (
	"context"
	"errors"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
)

type stubMailer struct {
	err     error
	to      string
	subject string
	body    string
}

func (m *stubMailer) Send(to, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

func TestEmailRenderEscalationTemplate(t *testing.T) {
	m := &stubMailer{}
	p := NewEmailProvider(m, logging.NewNop())

	res, err := p.SendEmail(context.Background(), "oncall@clinic.test", "critical-escalation", map[string]any{
		"PatientName":  "Jane Roe & Co",
		"Reason":       "BP dropping",
		"EscalatedBy":  "nurse-7",
		"EscalationID": "e-1",
		"Instructions": "Page cardiology",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "oncall@clinic.test", m.to)
	assert.Equal(t, "[CRITICAL] Escalation for Jane Roe & Co", m.subject)
	assert.Contains(t, m.body, "BP dropping")
	assert.Contains(t, m.body, "Jane Roe &amp; Co")
	assert.Contains(t, m.body, "Page cardiology")
	assert.NotContains(t, m.body, "Urgency")
}

func TestEmailUnknownTemplateIsAnError(t *testing.T) {
	p := NewEmailProvider(&stubMailer{}, logging.NewNop())
	_, err := p.SendEmail(context.Background(), "a@b.c", "no-such-template", nil)
	assert.Error(t, err)
}

func TestEmailRecipientRejectionIsAResult(t *testing.T) {
	m := &stubMailer{err: &textproto.Error{Code: 550, Msg: "mailbox unavailable"}}
	p := NewEmailProvider(m, logging.NewNop())

	res, err := p.SendEmail(context.Background(), "gone@clinic.test", "critical-escalation", map[string]any{"PatientName": "X"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "mailbox unavailable")
}

func TestEmailTransportFailureIsAnError(t *testing.T) {
	m := &stubMailer{err: errors.New("dial tcp: connection refused")}
	p := NewEmailProvider(m, logging.NewNop())

	_, err := p.SendEmail(context.Background(), "a@clinic.test", "critical-escalation", map[string]any{"PatientName": "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

type stubPusher struct {
	sessions int
	user     string
	url      string
}

func (p *stubPusher) PushLink(userID, url string) int {
	p.user, p.url = userID, url
	return p.sessions
}

func TestWhatsAppPushesLinkToActor(t *testing.T) {
	pusher := &stubPusher{sessions: 1}
	m := NewWhatsAppMessenger(pusher, logging.NewNop())

	err := m.SendDirectMessage(context.Background(), models.DirectMessage{ActorID: "dr-1", To: "+15550100199", Text: "call me"})
	require.NoError(t, err)
	assert.Equal(t, "dr-1", pusher.user)
	assert.Equal(t, "https://wa.me/15550100199?text=call+me", pusher.url)
}

func TestWhatsAppWithoutSessionFails(t *testing.T) {
	m := NewWhatsAppMessenger(&stubPusher{}, logging.NewNop())
	err := m.SendDirectMessage(context.Background(), models.DirectMessage{ActorID: "dr-1", To: "+15550100199", Text: "x"})
	assert.Error(t, err)
}

type stubChat struct {
	calls  int
	chatID int64
}

func (c *stubChat) Send(_ context.Context, chatID int64, _ string) error {
	c.calls++
	c.chatID = chatID
	return nil
}

func TestTelegramParsesChatID(t *testing.T) {
	chat := &stubChat{}
	m := NewTelegramMessenger(chat, 10, logging.NewNop())

	require.NoError(t, m.SendDirectMessage(context.Background(), models.DirectMessage{To: "tg:424242", Text: "x"}))
	assert.Equal(t, int64(424242), chat.chatID)

	err := m.SendDirectMessage(context.Background(), models.DirectMessage{To: "@handle", Text: "x"})
	assert.Error(t, err)
	assert.Equal(t, 1, chat.calls)
}

func TestTelegramZeroRateStillSends(t *testing.T) {
	chat := &stubChat{}
	m := NewTelegramMessenger(chat, 0, logging.NewNop())

	require.NoError(t, m.SendDirectMessage(context.Background(), models.DirectMessage{To: "tg:7", Text: "x"}))
	assert.Equal(t, 1, chat.calls)
}

type stubSMS struct{ err error }

func (s stubSMS) Send(string, string) (string, error) { return "SM123", s.err }

func TestSMSMessengerPropagatesErrors(t *testing.T) {
	ok := NewSMSMessenger(stubSMS{}, logging.NewNop())
	assert.NoError(t, ok.SendDirectMessage(context.Background(), models.DirectMessage{To: "+15550100"}))

	bad := NewSMSMessenger(stubSMS{err: errors.New("invalid phone number")}, logging.NewNop())
	assert.Error(t, bad.SendDirectMessage(context.Background(), models.DirectMessage{To: "555"}))
}
