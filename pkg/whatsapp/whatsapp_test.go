package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkEncodesText(t *testing.T) {
	link, err := Link("+1 (555) 010-0199", "URGENT: Jane Roe & bed 4")
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/15550100199?text=URGENT%3A+Jane+Roe+%26+bed+4", link)
}

func TestLinkRejectsShortNumbers(t *testing.T) {
	_, err := Link("ext. 12", "hi")
	assert.Error(t, err)
}
