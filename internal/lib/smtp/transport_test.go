package smtp

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ewaste-hub/internal/config"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTransport_From(t *testing.T) {
	tr := NewTransport(config.SMTP{User: "apikey"}, newNoopLogger())
	assert.Equal(t, "apikey", tr.From())

	tr = NewTransport(config.SMTP{User: "apikey", From: "noreply@ewaste.example"}, newNoopLogger())
	assert.Equal(t, "noreply@ewaste.example", tr.From())
}

func TestTransport_ConnectWithoutHost(t *testing.T) {
	_, err := NewTransport(config.SMTP{}, newNoopLogger()).Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestTransport_ConnectUnreachable(t *testing.T) {
	_, err := NewTransport(config.SMTP{Host: "127.0.0.1", Port: "1"}, newNoopLogger()).Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to dial")
}
