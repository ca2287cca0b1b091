package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/bissquit/deploy-sentry/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.NotificationsConfig
		wantErr bool
	}{
		{
			name:    "disabled needs nothing",
			cfg:     config.NotificationsConfig{Enabled: false},
			wantErr: false,
		},
		{
			name:    "enabled without host",
			cfg:     config.NotificationsConfig{Enabled: true, FromAddress: "a@b.c", ToAddress: "d@e.f"},
			wantErr: true,
		},
		{
			name:    "enabled without from",
			cfg:     config.NotificationsConfig{Enabled: true, SMTPHost: "smtp.example.com", ToAddress: "d@e.f"},
			wantErr: true,
		},
		{
			name:    "enabled without to",
			cfg:     config.NotificationsConfig{Enabled: true, SMTPHost: "smtp.example.com", FromAddress: "a@b.c"},
			wantErr: true,
		},
		{
			name: "enabled fully configured",
			cfg: config.NotificationsConfig{
				Enabled: true, SMTPHost: "smtp.example.com",
				FromAddress: "a@b.c", ToAddress: "d@e.f",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSender(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSend_DisabledIsNoop(t *testing.T) {
	sender, err := NewSender(config.NotificationsConfig{Enabled: false})
	require.NoError(t, err)

	assert.NoError(t, sender.Send(context.Background(), "subject", "body"))
}

func TestBuildMessage(t *testing.T) {
	sender, err := NewSender(config.NotificationsConfig{
		FromAddress: "Deploy Sentry <sentry@example.com>",
		ToAddress:   "ops@example.com",
	})
	require.NoError(t, err)

	msg := string(sender.buildMessage("[Incident] boom", "<html>body</html>"))

	assert.True(t, strings.HasPrefix(msg, "From: Deploy Sentry <sentry@example.com>\r\n"))
	assert.Contains(t, msg, "To: ops@example.com\r\n")
	assert.Contains(t, msg, "Subject: [Incident] boom\r\n")
	assert.Contains(t, msg, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(msg, "\r\n<html>body</html>"))
}

func TestExtractEmail(t *testing.T) {
	assert.Equal(t, "a@b.c", extractEmail("Name <a@b.c>"))
	assert.Equal(t, "a@b.c", extractEmail("a@b.c"))
}
