// Package whatsapp builds click-to-chat deep links.
package whatsapp

import (
	"fmt"
	"net/url"
	"strings"
)

const baseURL = "https://wa.me/"

// Link returns a wa.me link that opens a chat with phone prefilled with text.
// Everything but digits is stripped from phone.
func Link(phone, text string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) < 7 {
		return "", fmt.Errorf("invalid phone number: %q", phone)
	}
	return baseURL + digits + "?text=" + url.QueryEscape(text), nil
}
