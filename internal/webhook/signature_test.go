package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	payload := []byte(`{"type":"face.matched","data":{"urn":"urn:x"}}`)

	sig := Sign("alert-secret", payload)
	assert.True(t, strings.HasPrefix(sig, "sha256="))
	assert.Len(t, sig, len("sha256=")+64)

	// deterministic, and keyed
	assert.Equal(t, sig, Sign("alert-secret", payload))
	assert.NotEqual(t, sig, Sign("other-secret", payload))
}

func TestVerify(t *testing.T) {
	secret := "alert-secret"
	payload := []byte(`{"type":"face.matched"}`)
	valid := Sign(secret, payload)

	tests := []struct {
		name      string
		secret    string
		payload   []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, payload, valid, true},
		{"wrong secret", "wrong-secret", payload, valid, false},
		{"modified payload", secret, []byte(`{"type":"tampered"}`), valid, false},
		{"missing prefix", secret, payload, strings.TrimPrefix(valid, "sha256="), false},
		{"not hex", secret, payload, "sha256=zz", false},
		{"empty secret", "", payload, Sign("", payload), false},
		{"empty signature", secret, payload, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.secret, tt.payload, tt.signature))
		})
	}
}
