package models

import (
	"time"

	"github.com/customeros/domails/internal/enum"
)

type WebhookSignature struct {
	Timestamp string `json:"timestamp"`
	Token     string `json:"token"`
	Signature string `json:"signature"`
}

type InboundAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// InboundPayload mirrors the fields the provider posts when forwarding a message.
type InboundPayload struct {
	Recipient    string
	Sender       string
	From         string
	To           string
	Cc           string
	Bcc          string
	Subject      string
	BodyPlain    string
	BodyHTML     string
	StrippedText string
	StrippedHTML string
	MessageID    string
	InReplyTo    string
	References   string
	BodyMIME     string
	Attachments  []InboundAttachment

	// Headers holds the forwarded message headers keyed by lowercased name.
	Headers map[string]string
}

type InboundWebhookEnvelope struct {
	Signature WebhookSignature
	Payload   InboundPayload
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Data        []byte `json:"data,omitempty"`
}

type NormalizedMessage struct {
	ID          string       `json:"id"`
	Domain      string       `json:"domain"`
	Recipient   string       `json:"recipient,omitempty"`
	MessageID   string       `json:"messageId"`
	InReplyTo   string       `json:"inReplyTo,omitempty"`
	References  []string     `json:"references"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Cc          []string     `json:"cc"`
	Bcc         []string     `json:"bcc"`
	Subject     string       `json:"subject"`
	BodyText    string       `json:"bodyText"`
	BodyHTML    string       `json:"bodyHtml"`
	ReceivedAt  time.Time    `json:"receivedAt"`
	Attachments []Attachment `json:"attachments"`

	Classification       enum.InboundClassification `json:"classification"`
	ClassificationReason string                     `json:"classificationReason,omitempty"`
}

// ProviderEvent is a delivery or engagement notification for a sent message.
type ProviderEvent struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Recipient string                 `json:"recipient"`
	MessageID string                 `json:"messageId,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
}
