package inbound

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domails/interfaces"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
	"github.com/customeros/domails/internal/utils"
)

type normalizer struct {
	log logger.Logger
}

func NewNormalizer(log logger.Logger) interfaces.InboundNormalizer {
	return &normalizer{log: log}
}

// Normalize turns a forwarded provider payload into a NormalizedMessage. The
// envelope signature must already have been verified.
func (n *normalizer) Normalize(ctx context.Context, envelope *models.InboundWebhookEnvelope) (*models.NormalizedMessage, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "InboundNormalizer.Normalize")
	defer span.Finish()
	tracing.TagComponentWebhook(span)

	payload := envelope.Payload
	validation := domailsErrors.NewValidationError()

	var parsed *enmime.Envelope
	if !hasBodyFields(payload) && strings.TrimSpace(payload.BodyMIME) != "" {
		var err error
		parsed, err = enmime.ReadEnvelope(strings.NewReader(payload.BodyMIME))
		if err != nil {
			n.log.Warnf("Could not parse body-mime of inbound message: %v", err)
			parsed = nil
		}
	}

	from, ok := utils.CleanEmailAddress(firstNonEmpty(payload.From, header(parsed, "From")))
	if !ok {
		validation.Add("from", "missing or invalid sender address")
	}

	to := utils.SplitAddressList(firstNonEmpty(payload.To, header(parsed, "To")))
	if len(to) == 0 {
		validation.Add("to", "no valid recipient address")
	}
	cc := utils.SplitAddressList(firstNonEmpty(payload.Cc, header(parsed, "Cc")))
	bcc := utils.SplitAddressList(payload.Bcc)

	bodyText, bodyHTML := selectBodies(payload, parsed)
	if bodyText == "" && bodyHTML != "" {
		derived, err := HTMLToPlainText(bodyHTML)
		if err != nil {
			n.log.Warnf("Could not derive plain text from html body: %v", err)
		}
		bodyText = derived
	}
	if bodyText == "" && bodyHTML == "" {
		validation.Add("body", "message has no text or html body")
	}

	receivedAt, err := parseTimestamp(envelope.Signature.Timestamp)
	if err != nil {
		validation.Add("timestamp", "must be unix seconds")
	}

	if err := validation.OrNil(); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	recipient, _ := utils.CleanEmailAddress(payload.Recipient)
	domain := utils.DomainFromAddress(firstNonEmpty(recipient, to[0]))

	messageID := firstNonEmpty(payload.MessageID, header(parsed, "Message-Id"))
	if strings.TrimSpace(messageID) == "" {
		messageID = utils.GenerateMessageID(domain)
	}

	message := &models.NormalizedMessage{
		ID:          uuid.New().String(),
		Domain:      domain,
		Recipient:   recipient,
		MessageID:   strings.TrimSpace(messageID),
		InReplyTo:   strings.TrimSpace(firstNonEmpty(payload.InReplyTo, header(parsed, "In-Reply-To"))),
		References:  utils.SplitReferences(firstNonEmpty(payload.References, header(parsed, "References"))),
		From:        from,
		To:          to,
		Cc:          cc,
		Bcc:         bcc,
		Subject:     strings.TrimSpace(firstNonEmpty(payload.Subject, header(parsed, "Subject"))),
		BodyText:    bodyText,
		BodyHTML:    bodyHTML,
		ReceivedAt:  receivedAt,
		Attachments: collectAttachments(payload.Attachments, parsed),
	}
	message.Classification, message.ClassificationReason = Classify(headerLookup(payload.Headers, parsed), message)

	tracing.TagDomain(span, domain)
	tracing.TagEntity(span, message.ID)
	span.LogKV("messageId", message.MessageID, "attachments", len(message.Attachments), "classification", message.Classification)
	return message, nil
}

func hasBodyFields(p models.InboundPayload) bool {
	return p.BodyPlain != "" || p.BodyHTML != "" || p.StrippedText != "" || p.StrippedHTML != ""
}

// selectBodies prefers the full bodies over the stripped ones.
func selectBodies(p models.InboundPayload, parsed *enmime.Envelope) (string, string) {
	text := firstNonEmpty(p.BodyPlain, p.StrippedText)
	html := firstNonEmpty(p.BodyHTML, p.StrippedHTML)
	if parsed != nil {
		text = firstNonEmpty(text, parsed.Text)
		html = firstNonEmpty(html, parsed.HTML)
	}
	return strings.TrimSpace(text), strings.TrimSpace(html)
}

func collectAttachments(inbound []models.InboundAttachment, parsed *enmime.Envelope) []models.Attachment {
	attachments := make([]models.Attachment, 0, len(inbound))
	for _, a := range inbound {
		attachments = append(attachments, newAttachment(a.Filename, a.ContentType, a.Data, a.Size))
	}
	if len(inbound) == 0 && parsed != nil {
		for _, part := range parsed.Attachments {
			attachments = append(attachments, newAttachment(part.FileName, part.ContentType, part.Content, 0))
		}
	}
	return attachments
}

func newAttachment(filename, contentType string, data []byte, size int) models.Attachment {
	if contentType == "" && len(data) > 0 {
		contentType = mimetype.Detect(data).String()
	}
	if size == 0 {
		size = len(data)
	}
	return models.Attachment{
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		Data:        data,
	}
}

func parseTimestamp(value string) (time.Time, error) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, 0).UTC(), nil
}

// HTMLToPlainText drops script and style content and collapses blank lines.
func HTMLToPlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()

	lines := strings.Split(doc.Text(), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func header(parsed *enmime.Envelope, name string) string {
	if parsed == nil {
		return ""
	}
	return parsed.GetHeader(name)
}

// headerLookup reads forwarded headers first and falls back to the parsed MIME body.
func headerLookup(headers map[string]string, parsed *enmime.Envelope) HeaderLookup {
	return func(name string) string {
		if value, ok := headers[strings.ToLower(name)]; ok {
			return value
		}
		return header(parsed, name)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
