package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "email",
			input: "login failed for alice@example.com",
			want:  "login failed for [EMAIL]",
		},
		{
			name:  "bearer token",
			input: "auth header: Bearer eyJhbGciOiJIUzI1NiJ9.payload.sig",
			want:  "auth header: Bearer [REDACTED]",
		},
		{
			name:  "api key pair",
			input: "request with api_key=sk_live_abcdef123456 rejected",
			want:  "request with api_key=[REDACTED] rejected",
		},
		{
			name:  "password with colon separator",
			input: "password: hunter2hunter2",
			want:  "password: [REDACTED]",
		},
		{
			name:  "short value untouched",
			input: "pwd=abc",
			want:  "pwd=abc",
		},
		{
			name:  "case insensitive key",
			input: "SECRET=deadbeefcafe1234",
			want:  "SECRET=[REDACTED]",
		},
		{
			name:  "no sensitive content",
			input: "upstream request timeout after 30000ms",
			want:  "upstream request timeout after 30000ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Redact(tt.input))
		})
	}
}

func TestRedactIdempotent(t *testing.T) {
	inputs := []string{
		"login failed for alice@example.com",
		"Bearer abcdef123456 token=deadbeefcafe",
		"password: hunter2hunter2 from bob@example.org",
		"plain message",
	}

	for _, in := range inputs {
		once := Redact(in)
		assert.Equal(t, once, Redact(once), "redact must be idempotent for %q", in)
	}
}

func TestRedactMultipleOccurrences(t *testing.T) {
	got := Redact("from a@b.co to c@d.io with token=12345678abc")
	assert.Equal(t, "from [EMAIL] to [EMAIL] with token=[REDACTED]", got)
}
