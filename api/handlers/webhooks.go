package handlers

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	apiErrors "github.com/customeros/domails/api/errors"
	"github.com/customeros/domails/interfaces"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
)

const maxInboundMemory = 32 << 20

type WebhookHandler struct {
	log        logger.Logger
	validator  interfaces.WebhookValidator
	normalizer interfaces.InboundNormalizer
	publisher  interfaces.EventPublisher
}

func NewWebhookHandler(log logger.Logger, validator interfaces.WebhookValidator, normalizer interfaces.InboundNormalizer, publisher interfaces.EventPublisher) *WebhookHandler {
	return &WebhookHandler{
		log:        log,
		validator:  validator,
		normalizer: normalizer,
		publisher:  publisher,
	}
}

// providerEventPayload is the JSON body of delivery and engagement webhooks.
type providerEventPayload struct {
	Signature models.WebhookSignature `json:"signature"`
	EventData map[string]interface{}  `json:"event-data"`
}

// Provider receives both JSON event webhooks and forwarded inbound mail
// (multipart or urlencoded). Nothing in the body is trusted before the
// signature is verified.
func (h *WebhookHandler) Provider() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "WebhookHandler.Provider")
		defer span.Finish()
		tracing.TagComponentWebhook(span)

		if c.ContentType() == gin.MIMEJSON {
			h.handleEvent(ctx, c, span)
			return
		}
		h.handleInbound(ctx, c, span)
	}
}

func (h *WebhookHandler) handleEvent(ctx context.Context, c *gin.Context, span opentracing.Span) {
	var payload providerEventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.reject(c, span, domailsErrors.NewFieldError("body", err.Error()))
		return
	}

	if err := h.validator.Verify(ctx, payload.Signature); err != nil {
		h.reject(c, span, err)
		return
	}

	event := providerEventFromData(payload.EventData)
	span.LogKV("event", event.Event, "eventId", event.ID)

	if err := h.publisher.PublishProviderEvent(ctx, event); err != nil {
		h.log.Errorf("Publishing provider event %s failed: %v", event.ID, err)
		tracing.TraceErr(span, err)
		h.validator.Release(ctx, payload.Signature)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, apiErrors.ErrorResponse{Error: "event not accepted, retry later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": event.ID})
}

func (h *WebhookHandler) handleInbound(ctx context.Context, c *gin.Context, span opentracing.Span) {
	envelope, err := parseInboundEnvelope(c)
	if err != nil {
		h.reject(c, span, domailsErrors.NewFieldError("body", err.Error()))
		return
	}

	if err := h.validator.Verify(ctx, envelope.Signature); err != nil {
		h.reject(c, span, err)
		return
	}

	message, err := h.normalizer.Normalize(ctx, envelope)
	if err != nil {
		h.reject(c, span, err)
		return
	}
	tracing.TagDomain(span, message.Domain)
	tracing.TagEntity(span, message.ID)

	if err := h.publisher.PublishInboundMessage(ctx, message); err != nil {
		h.log.Errorf("Publishing inbound message %s failed: %v", message.MessageID, err)
		tracing.TraceErr(span, err)
		h.validator.Release(ctx, envelope.Signature)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, apiErrors.ErrorResponse{Error: "message not accepted, retry later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": message.ID, "messageId": message.MessageID})
}

// reject answers a malformed payload with 406 so the provider stops retrying it.
func (h *WebhookHandler) reject(c *gin.Context, span opentracing.Span, err error) {
	if domailsErrors.IsValidationError(err) {
		tracing.TraceErr(span, err)
		c.AbortWithStatusJSON(http.StatusNotAcceptable, apiErrors.NewErrorResponse(http.StatusBadRequest, err))
		return
	}
	if domailsErrors.IsWebhookValidationError(err) {
		h.log.Warnf("Rejected provider webhook: %v", err)
	}
	apiErrors.Respond(c, span, err)
}

func parseInboundEnvelope(c *gin.Context) (*models.InboundWebhookEnvelope, error) {
	if strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm) {
		if err := c.Request.ParseMultipartForm(maxInboundMemory); err != nil {
			return nil, errors.Wrap(err, "parsing multipart form")
		}
	} else if err := c.Request.ParseForm(); err != nil {
		return nil, errors.Wrap(err, "parsing form")
	}

	headers := parseMessageHeaders(c.PostForm("message-headers"))
	field := func(name string) string {
		if value := c.PostForm(name); value != "" {
			return value
		}
		return headers[strings.ToLower(name)]
	}

	payload := models.InboundPayload{
		Recipient:    c.PostForm("recipient"),
		Sender:       c.PostForm("sender"),
		From:         field("from"),
		To:           field("To"),
		Cc:           field("Cc"),
		Bcc:          field("Bcc"),
		Subject:      field("subject"),
		BodyPlain:    c.PostForm("body-plain"),
		BodyHTML:     c.PostForm("body-html"),
		StrippedText: c.PostForm("stripped-text"),
		StrippedHTML: c.PostForm("stripped-html"),
		MessageID:    field("Message-Id"),
		InReplyTo:    field("In-Reply-To"),
		References:   field("References"),
		BodyMIME:     c.PostForm("body-mime"),
		Headers:      headers,
	}
	// the catch-all route forwards to the matched recipient only
	if payload.To == "" && payload.BodyMIME == "" {
		payload.To = payload.Recipient
	}

	attachments, err := readAttachments(c)
	if err != nil {
		return nil, err
	}
	payload.Attachments = attachments

	return &models.InboundWebhookEnvelope{
		Signature: models.WebhookSignature{
			Timestamp: c.PostForm("timestamp"),
			Token:     c.PostForm("token"),
			Signature: c.PostForm("signature"),
		},
		Payload: payload,
	}, nil
}

// parseMessageHeaders reads the [["Name","value"],...] list the provider
// sends alongside forwarded messages. Keys are lowercased; the first value wins.
func parseMessageHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	if raw == "" {
		return headers
	}
	var pairs [][]string
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return headers
	}
	for _, pair := range pairs {
		if len(pair) != 2 {
			continue
		}
		key := strings.ToLower(pair[0])
		if _, exists := headers[key]; !exists {
			headers[key] = pair[1]
		}
	}
	return headers
}

func readAttachments(c *gin.Context) ([]models.InboundAttachment, error) {
	if c.Request.MultipartForm == nil || len(c.Request.MultipartForm.File) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(c.Request.MultipartForm.File))
	for field := range c.Request.MultipartForm.File {
		if strings.HasPrefix(field, "attachment") {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	attachments := make([]models.InboundAttachment, 0, len(fields))
	for _, field := range fields {
		for _, fileHeader := range c.Request.MultipartForm.File[field] {
			file, err := fileHeader.Open()
			if err != nil {
				return nil, errors.Wrapf(err, "opening %s", field)
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, errors.Wrapf(err, "reading %s", field)
			}
			attachments = append(attachments, models.InboundAttachment{
				Filename:    fileHeader.Filename,
				ContentType: fileHeader.Header.Get("Content-Type"),
				Size:        len(data),
				Data:        data,
			})
		}
	}
	return attachments, nil
}

func providerEventFromData(data map[string]interface{}) *models.ProviderEvent {
	event := &models.ProviderEvent{
		ID:        stringValue(data, "id"),
		Event:     stringValue(data, "event"),
		Recipient: stringValue(data, "recipient"),
		Raw:       data,
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if seconds, ok := data["timestamp"].(float64); ok {
		whole, frac := math.Modf(seconds)
		event.Timestamp = time.Unix(int64(whole), int64(frac*1e9)).UTC()
	}
	if message, ok := data["message"].(map[string]interface{}); ok {
		if headers, ok := message["headers"].(map[string]interface{}); ok {
			event.MessageID = stringValue(headers, "message-id")
		}
	}
	return event
}

func stringValue(data map[string]interface{}, key string) string {
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}
