package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPProviderSend_BuildsPlainTextMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "no-reply@simcore.local"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	p.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.Send(context.Background(), []string{"buyer@example.com"}, "Your eSIM is ready", "line one\nline two")
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"buyer@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: no-reply@simcore.local\r\n"))
	assert.Contains(t, gotMsg, "Content-Type: text/plain")
	assert.Contains(t, gotMsg, "line one\r\nline two")
}

func TestSMTPProviderSend_RequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}
