package email

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/textproto"
	"strings"

	"gopkg.in/gomail.v2"
)

// Client sends HTML mail through one SMTP relay.
type Client struct {
	dialer      *gomail.Dialer
	fromAddress string
	fromName    string
}

func New(server string, port int, username, password, fromAddress, fromName string) *Client {
	d := gomail.NewDialer(server, port, username, password)
	d.TLSConfig = &tls.Config{ServerName: server}
	return &Client{dialer: d, fromAddress: fromAddress, fromName: fromName}
}

func (c *Client) Send(to, subject, body string) error {
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", c.fromAddress, c.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	return c.dialer.DialAndSend(msg)
}

// IsRecipientRejected reports whether err is a permanent per-recipient SMTP
// rejection (5xx on RCPT) rather than a transport or auth failure.
func IsRecipientRejected(err error) bool {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return false
	}
	switch tpErr.Code {
	case 550, 551, 552, 553:
		return true
	}
	return false
}
