package utils

import (
	"net/mail"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
)

// CleanEmailAddress validates a single bare address and returns its
// normalized form. The domain must contain a dot.
func CleanEmailAddress(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	parsed, err := mail.ParseAddress(raw)
	if err != nil {
		return "", false
	}
	address := parsed.Address
	if strings.Count(address, "@") != 1 {
		return "", false
	}
	if !strings.Contains(DomainFromAddress(address), ".") {
		return "", false
	}

	validation := mailvalidate.ValidateEmailSyntax(address)
	if !validation.IsValid {
		return "", false
	}
	if validation.CleanEmail != "" {
		address = validation.CleanEmail
	}
	return address, true
}

func IsValidEmailAddress(raw string) bool {
	_, ok := CleanEmailAddress(raw)
	return ok
}

// SplitAddressList splits a comma separated header value, keeps only valid
// addresses and drops duplicates while preserving order.
func SplitAddressList(value string) []string {
	result := make([]string, 0)
	seen := make(map[string]struct{})
	for _, part := range strings.Split(value, ",") {
		address, ok := CleanEmailAddress(part)
		if !ok {
			continue
		}
		key := strings.ToLower(address)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, address)
	}
	return result
}
