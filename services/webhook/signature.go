package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	domailsErrors "github.com/customeros/domails/internal/errors"
)

// ValidateSignature reports whether signature is the hex HMAC-SHA256 of
// timestamp+token under signingKey. An unset key fails closed.
func ValidateSignature(timestamp, token, signature, signingKey string) (bool, error) {
	if signingKey == "" {
		return false, domailsErrors.ErrSigningKeyMissing
	}
	expected := ComputeSignature(timestamp, token, signingKey)
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	want, _ := hex.DecodeString(expected)
	return hmac.Equal(want, given), nil
}

// ComputeSignature is what the provider sends for timestamp and token.
func ComputeSignature(timestamp, token, signingKey string) string {
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
