package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureStableAcrossIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{
			name: "differing uuids",
			a:    "user 3f2b8c1a-9d4e-4f6a-8b2c-1d3e5f7a9b0c not found",
			b:    "user 0a1b2c3d-4e5f-6789-abcd-ef0123456789 not found",
		},
		{
			name: "differing counters",
			a:    "Connection timed out after 30000ms attempt 3",
			b:    "Connection timed out after 45000ms attempt 17",
		},
		{
			name: "uuid and number mixed",
			a:    "order 42 for 3f2b8c1a-9d4e-4f6a-8b2c-1d3e5f7a9b0c failed",
			b:    "order 7 for 0a1b2c3d-4e5f-6789-abcd-ef0123456789 failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Signature(tt.a, "/api/users"), Signature(tt.b, "/api/users"))
		})
	}
}

func TestSignatureDiffersForDifferentErrors(t *testing.T) {
	assert.NotEqual(t,
		Signature("upstream request timeout", "/api/users"),
		Signature("database connection refused", "/api/users"),
	)
}

func TestSignatureDiffersByPath(t *testing.T) {
	assert.NotEqual(t,
		Signature("upstream request timeout", "/api/users"),
		Signature("upstream request timeout", "/api/orders"),
	)
}

func TestSignatureEmptyInputs(t *testing.T) {
	sig := Signature("", "")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Signature("", ""))
}

func TestNormalize(t *testing.T) {
	got := Normalize("req 3f2b8c1a-9d4e-4f6a-8b2c-1d3e5f7a9b0c took 512ms")
	assert.Equal(t, "req {uuid} took 512ms", got)

	got = Normalize("retry 3 of 5")
	assert.Equal(t, "retry {n} of {n}", got)
}

func TestNormalizeTruncates(t *testing.T) {
	long := strings.Repeat("x", 2000)
	assert.Len(t, Normalize(long), 500)

	// Same prefix means same signature once past the truncation point.
	assert.Equal(t, Signature(long+"a", ""), Signature(long+"b", ""))
}

func TestUppercaseUUIDNotNormalized(t *testing.T) {
	// Matches only lowercase hex, same as the digest column it feeds.
	a := Normalize("id 3F2B8C1A-9D4E-4F6A-8B2C-1D3E5F7A9B0C")
	assert.NotContains(t, a, "{uuid}")
}
