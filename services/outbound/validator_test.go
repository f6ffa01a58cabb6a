package outbound

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/domails/internal/config"
	"github.com/customeros/domails/internal/enum"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/utils"
	"github.com/customeros/domails/services/provider"
)

func validRequest() *models.OutboundSendRequest {
	return &models.OutboundSendRequest{
		From:    "alice@example.org",
		To:      []string{"bob@example.com"},
		Subject: "Hello",
		Text:    "Hi Bob",
	}
}

func asValidation(t *testing.T, err error) *domailsErrors.ValidationError {
	t.Helper()
	var validation *domailsErrors.ValidationError
	require.ErrorAs(t, err, &validation)
	return validation
}

func TestValidate_Accepts(t *testing.T) {
	v := NewValidator(&config.AttachmentConfig{MaxBytes: 1024})
	assert.NoError(t, v.Validate(validRequest()))

	htmlOnly := validRequest()
	htmlOnly.Text = ""
	htmlOnly.HTML = "<p>Hi</p>"
	assert.NoError(t, v.Validate(htmlOnly))
}

func TestValidate_SubjectAndContentCitedTogether(t *testing.T) {
	v := NewValidator(&config.AttachmentConfig{})
	request := validRequest()
	request.Subject = "   "
	request.Text = ""

	validation := asValidation(t, v.Validate(request))
	assert.True(t, validation.Has("subject"))
	assert.True(t, validation.Has("content"))
	assert.Len(t, validation.Fields, 2)
}

func TestValidate_Addresses(t *testing.T) {
	v := NewValidator(&config.AttachmentConfig{})
	request := validRequest()
	request.From = "alice"
	request.To = nil
	request.Cc = []string{"carol@example.com", "bad@@example.com"}
	request.Bcc = []string{"dave@localhost"}
	request.ReplyTo = "nope"

	validation := asValidation(t, v.Validate(request))
	for _, field := range []string{"from", "to", "cc", "bcc", "replyTo"} {
		assert.True(t, validation.Has(field), field)
	}
	assert.Len(t, validation.ByField()["cc"], 1)
}

func TestValidate_AttachmentLimits(t *testing.T) {
	v := NewValidator(&config.AttachmentConfig{MaxBytes: 10, AllowedTypes: []string{"text/plain", "application/pdf"}})

	request := validRequest()
	request.Attachments = []models.Attachment{
		{Filename: "a.txt", ContentType: "text/plain; charset=utf-8", Data: []byte("123456")},
		{Filename: "b.txt", ContentType: "text/plain", Data: []byte("123456")},
	}
	validation := asValidation(t, v.Validate(request))
	assert.Equal(t, []string{"total size 12 exceeds 10 bytes"}, validation.ByField()["attachments"])

	request.Attachments = []models.Attachment{
		{Filename: "pic", Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")},
	}
	validation = asValidation(t, v.Validate(request))
	assert.Contains(t, validation.Error(), "image/png is not allowed")
}

func TestAttachmentContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", AttachmentContentType(models.Attachment{ContentType: "Application/PDF"}))
	assert.Equal(t, "application/pdf", AttachmentContentType(models.Attachment{Data: []byte("%PDF-1.7\n")}))
}

type stubDomains struct {
	domain *models.Domain
	tenant string
}

func (s *stubDomains) GetDomain(_ context.Context, tenant, _ string) (*models.Domain, error) {
	s.tenant = tenant
	return s.domain, nil
}

func newTestService(domains DomainLookup, fake *provider.FakeClient) *emailService {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return NewEmailService(appLogger, NewValidator(&config.AttachmentConfig{MaxBytes: 1 << 20}), fake, domains).(*emailService)
}

func TestSend_UsesSenderDomain(t *testing.T) {
	fake := provider.NewFakeClient()
	domains := &stubDomains{domain: &models.Domain{Domain: "example.org", Status: enum.DomainStatusVerified}}
	svc := newTestService(domains, fake)
	ctx := utils.WithCustomContext(context.Background(), &utils.CustomContext{Tenant: "acme"})

	result, err := svc.Send(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "<1@example.org>", result.ProviderMessageID)
	assert.Equal(t, "acme", domains.tenant)
	require.Len(t, fake.Sent(), 1)
}

func TestSend_Rejections(t *testing.T) {
	fake := provider.NewFakeClient()

	_, err := newTestService(&stubDomains{}, fake).Send(context.Background(), validRequest())
	assert.ErrorIs(t, err, domailsErrors.ErrDomainNotFound)

	pending := &stubDomains{domain: &models.Domain{Domain: "example.org", Status: enum.DomainStatusPending}}
	_, err = newTestService(pending, fake).Send(context.Background(), validRequest())
	assert.ErrorIs(t, err, domailsErrors.ErrDomainNotVerified)

	invalid := validRequest()
	invalid.Subject = ""
	_, err = newTestService(pending, fake).Send(context.Background(), invalid)
	assert.True(t, domailsErrors.IsValidationError(err))

	assert.Equal(t, 0, fake.Calls("SendMessage"))
}
