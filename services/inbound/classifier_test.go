package inbound

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/domails/internal/enum"
	"github.com/customeros/domails/internal/models"
)

func headersOf(pairs map[string]string) HeaderLookup {
	lowered := make(map[string]string, len(pairs))
	for k, v := range pairs {
		lowered[strings.ToLower(k)] = v
	}
	return headerLookup(lowered, nil)
}

func TestClassify(t *testing.T) {
	person := &models.NormalizedMessage{From: "jane@example.com", Subject: "Lunch tomorrow?"}

	tests := []struct {
		name     string
		headers  map[string]string
		message  *models.NormalizedMessage
		expected enum.InboundClassification
	}{
		{"plain conversation", nil, person, enum.InboundClassificationOK},
		{"matching reply-to", map[string]string{"Reply-To": "Jane <jane@example.com>"}, person, enum.InboundClassificationOK},
		{"failed recipients header", map[string]string{"X-Failed-Recipients": "bob@example.org"}, person, enum.InboundClassificationBounce},
		{"mailer daemon sender", nil, &models.NormalizedMessage{From: "mailer-daemon@example.com", Subject: "hi"}, enum.InboundClassificationBounce},
		{"bounce subject", nil, &models.NormalizedMessage{From: "jane@example.com", Subject: "Undeliverable: Lunch"}, enum.InboundClassificationBounce},
		{"auto submitted", map[string]string{"Auto-Submitted": "auto-replied"}, person, enum.InboundClassificationAutoReply},
		{"auto submitted no", map[string]string{"Auto-Submitted": "no"}, person, enum.InboundClassificationOK},
		{"precedence auto reply", map[string]string{"Precedence": "auto_reply"}, person, enum.InboundClassificationAutoReply},
		{"list unsubscribe", map[string]string{"List-Unsubscribe": "<https://example.com/u>"}, person, enum.InboundClassificationBulk},
		{"precedence bulk", map[string]string{"Precedence": "bulk"}, person, enum.InboundClassificationBulk},
		{"reply-to differs", map[string]string{"Reply-To": "noreply@news.example.com"}, person, enum.InboundClassificationBulk},
		{"forwarded ignores reply-to", map[string]string{"Reply-To": "other@example.com", "X-Forwarded-For": "jane@example.com"}, person, enum.InboundClassificationOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classification, reason := Classify(headersOf(tt.headers), tt.message)
			assert.Equal(t, tt.expected, classification)
			if tt.expected == enum.InboundClassificationOK {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}
