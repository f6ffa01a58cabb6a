package outbound

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/config"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/utils"
)

type validator struct {
	maxAttachmentBytes int64
	allowedTypes       map[string]struct{}
}

// NewValidator has no side effects; it only reads the attachment limits.
func NewValidator(cfg *config.AttachmentConfig) interfaces.OutboundValidator {
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			allowed[t] = struct{}{}
		}
	}
	return &validator{maxAttachmentBytes: cfg.MaxBytes, allowedTypes: allowed}
}

// Validate reports every rejected field at once.
func (v *validator) Validate(request *models.OutboundSendRequest) error {
	validation := domailsErrors.NewValidationError()
	if request == nil {
		validation.Add("request", "is required")
		return validation
	}

	if strings.TrimSpace(request.From) == "" {
		validation.Add("from", "is required")
	} else if !utils.IsValidEmailAddress(request.From) {
		validation.Add("from", fmt.Sprintf("invalid address %q", request.From))
	}

	if len(request.To) == 0 {
		validation.Add("to", "at least one recipient is required")
	}
	checkAddresses(validation, "to", request.To)
	checkAddresses(validation, "cc", request.Cc)
	checkAddresses(validation, "bcc", request.Bcc)
	if request.ReplyTo != "" && !utils.IsValidEmailAddress(request.ReplyTo) {
		validation.Add("replyTo", fmt.Sprintf("invalid address %q", request.ReplyTo))
	}

	if strings.TrimSpace(request.Subject) == "" {
		validation.Add("subject", "is required")
	}
	if strings.TrimSpace(request.Text) == "" && strings.TrimSpace(request.HTML) == "" {
		validation.Add("content", "text or html body is required")
	}

	v.checkAttachments(validation, request.Attachments)
	return validation.OrNil()
}

func checkAddresses(validation *domailsErrors.ValidationError, field string, addresses []string) {
	for _, address := range addresses {
		if !utils.IsValidEmailAddress(address) {
			validation.Add(field, fmt.Sprintf("invalid address %q", address))
		}
	}
}

func (v *validator) checkAttachments(validation *domailsErrors.ValidationError, attachments []models.Attachment) {
	var total int64
	for _, a := range attachments {
		total += attachmentSize(a)
		if len(v.allowedTypes) == 0 {
			continue
		}
		contentType := AttachmentContentType(a)
		if _, ok := v.allowedTypes[contentType]; !ok {
			validation.Add("attachments", fmt.Sprintf("%s: content type %s is not allowed", a.Filename, contentType))
		}
	}
	if v.maxAttachmentBytes > 0 && total > v.maxAttachmentBytes {
		validation.Add("attachments", fmt.Sprintf("total size %d exceeds %d bytes", total, v.maxAttachmentBytes))
	}
}

func attachmentSize(a models.Attachment) int64 {
	if len(a.Data) > 0 {
		return int64(len(a.Data))
	}
	return int64(a.Size)
}

// AttachmentContentType returns the declared media type without parameters,
// sniffing the content when none was declared.
func AttachmentContentType(a models.Attachment) string {
	contentType := a.ContentType
	if strings.TrimSpace(contentType) == "" {
		contentType = mimetype.Detect(a.Data).String()
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
