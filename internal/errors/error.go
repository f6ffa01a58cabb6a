package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// common errors
	ErrTenantMissing     = errors.New("tenant is missing")
	ErrConnectionTimeout = errors.New("connection timeout")

	// domain errors
	ErrDomainNotFound          = errors.New("domain not found")
	ErrDomainAlreadyRegistered = errors.New("domain already registered")
	ErrDomainNotVerified       = errors.New("domain is not verified")
	ErrProvisioningInProgress  = errors.New("provisioning already in progress for domain")

	// provider errors
	ErrProviderNotFound = errors.New("provider resource not found")
	ErrProviderConflict = errors.New("provider resource already exists")

	// webhook errors
	ErrSigningKeyMissing = &WebhookValidationError{Reason: "webhook signing key is not configured"}
	ErrInvalidSignature  = &WebhookValidationError{Reason: "webhook signature mismatch"}
	ErrStaleWebhook      = &WebhookValidationError{Reason: "webhook timestamp outside accepted window"}
	ErrReplayedWebhook   = &WebhookValidationError{Reason: "webhook token already used"}
)

// FieldError is a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every rejected field of one input.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func NewValidationError() *ValidationError {
	return &ValidationError{}
}

func NewFieldError(field, message string) *ValidationError {
	v := NewValidationError()
	v.Add(field, message)
	return v
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Has reports whether field was rejected.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// ByField groups messages per field.
func (e *ValidationError) ByField() map[string][]string {
	grouped := make(map[string][]string, len(e.Fields))
	for _, f := range e.Fields {
		grouped[f.Field] = append(grouped[f.Field], f.Message)
	}
	return grouped
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return strings.Join(parts, " | ")
}

// OrNil returns nil when no field was rejected, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

// WebhookValidationError rejects an inbound webhook before its payload is trusted.
type WebhookValidationError struct {
	Reason string
}

func (e *WebhookValidationError) Error() string {
	return e.Reason
}

// DNSLookupError is a transport-level resolver failure. Absence of records is never one.
type DNSLookupError struct {
	Name  string
	Type  string
	Cause error
}

func (e *DNSLookupError) Error() string {
	return fmt.Sprintf("dns lookup %s %s failed: %v", e.Type, e.Name, e.Cause)
}

func (e *DNSLookupError) Unwrap() error {
	return e.Cause
}

// ProviderAPIError is a non-2xx response or transport failure from the mail provider.
type ProviderAPIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Cause      error
}

func (e *ProviderAPIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("provider %s %s failed: %v", e.Method, e.Path, e.Cause)
	}
	return fmt.Sprintf("provider %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *ProviderAPIError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is worth retrying.
func (e *ProviderAPIError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// StateConflictError signals an operation that found the domain already in the
// requested state. Callers treat it as a successful no-op.
type StateConflictError struct {
	Domain string
	State  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("domain %s is already %s", e.Domain, e.State)
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsWebhookValidationError(err error) bool {
	var v *WebhookValidationError
	return errors.As(err, &v)
}

func IsStateConflict(err error) bool {
	var v *StateConflictError
	return errors.As(err, &v)
}
