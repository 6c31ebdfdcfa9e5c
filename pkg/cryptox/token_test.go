package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"jwt shaped", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.c2ln"},
		{"opaque", "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := FingerprintToken(tt.token)
			require.Len(t, fp, fingerprintLen)
			require.Equal(t, fp, FingerprintToken(tt.token), "fingerprint must be deterministic")
		})
	}

	require.NotEqual(t, FingerprintToken("a"), FingerprintToken("b"))
	require.Empty(t, FingerprintToken(""))
}
