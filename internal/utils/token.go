package utils

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
)

const (
	DefaultTokenLength  = 32
	DefaultTokenCharset = "0123456789abcdef"

	// characters that would need quoting or escaping inside a TXT record
	txtUnsafeChars = "\";\\ \t\r\n"
)

var (
	ErrInvalidTokenLength  = errors.New("token length must be positive")
	ErrInvalidTokenCharset = errors.New("token charset must be non-empty and TXT-safe")
)

// GenerateToken draws length characters uniformly from charset using a
// cryptographically secure source.
func GenerateToken(length int, charset string) (string, error) {
	if length <= 0 {
		return "", ErrInvalidTokenLength
	}
	if charset == "" || strings.ContainsAny(charset, txtUnsafeChars) {
		return "", ErrInvalidTokenCharset
	}
	token, err := gonanoid.Generate(charset, length)
	if err != nil {
		return "", errors.Wrap(err, "gonanoid.Generate")
	}
	return token, nil
}

func GenerateVerificationToken() (string, error) {
	return GenerateToken(DefaultTokenLength, DefaultTokenCharset)
}
