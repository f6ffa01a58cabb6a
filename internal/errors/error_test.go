package errors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidationError_CollectsFields(t *testing.T) {
	v := NewValidationError()
	assert.NoError(t, v.OrNil())

	v.Add("subject", "subject is required")
	v.Add("content", "text or html body is required")

	err := v.OrNil()
	assert.Error(t, err)
	assert.True(t, IsValidationError(errors.Wrap(err, "send")))
	assert.True(t, v.Has("subject"))
	assert.False(t, v.Has("from"))
	assert.Equal(t, "subject: subject is required | content: text or html body is required", v.Error())
}

func TestProviderAPIError_Retryable(t *testing.T) {
	assert.True(t, (&ProviderAPIError{StatusCode: 503}).Retryable())
	assert.True(t, (&ProviderAPIError{StatusCode: 429}).Retryable())
	assert.True(t, (&ProviderAPIError{Cause: errors.New("reset")}).Retryable())
	assert.False(t, (&ProviderAPIError{StatusCode: 400}).Retryable())
}

func TestWebhookSentinels(t *testing.T) {
	wrapped := errors.Wrap(ErrInvalidSignature, "verify")
	assert.True(t, IsWebhookValidationError(wrapped))
	assert.True(t, errors.Is(wrapped, ErrInvalidSignature))
	assert.False(t, errors.Is(wrapped, ErrStaleWebhook))
}
