package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domailsErrors "github.com/customeros/domails/internal/errors"
)

func sign(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func flipLast(s string) string {
	b := []byte(s)
	if b[len(b)-1] == 'x' {
		b[len(b)-1] = 'y'
	} else {
		b[len(b)-1] = 'x'
	}
	return string(b)
}

func TestValidateSignature_Valid(t *testing.T) {
	key := "key-3ax6xnjp29jd6fds4gc373sgvjxteol0"
	signature := sign(key, "1700000000abc123")

	ok, err := ValidateSignature("1700000000", "abc123", signature, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, signature, ComputeSignature("1700000000", "abc123", key))
}

func TestValidateSignature_SingleCharacterTamper(t *testing.T) {
	key := "key-3ax6xnjp29jd6fds4gc373sgvjxteol0"
	signature := sign(key, "1700000000abc123")

	cases := map[string][4]string{
		"timestamp": {"1700000001", "abc123", signature, key},
		"token":     {"1700000000", flipLast("abc123"), signature, key},
		"key":       {"1700000000", "abc123", signature, flipLast(key)},
		"signature": {"1700000000", "abc123", flipLast(signature), key},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := ValidateSignature(c[0], c[1], c[2], c[3])
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestValidateSignature_UppercaseHexAccepted(t *testing.T) {
	key := "secret"
	signature := sign(key, "1700000000abc123")
	upper := []byte(signature)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 'a' + 'A'
		}
	}
	ok, err := ValidateSignature("1700000000", "abc123", string(upper), key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateSignature_MissingKeyFailsClosed(t *testing.T) {
	ok, err := ValidateSignature("1700000000", "abc123", sign("", "1700000000abc123"), "")
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, domailsErrors.ErrSigningKeyMissing)
	assert.True(t, domailsErrors.IsWebhookValidationError(err))
}
