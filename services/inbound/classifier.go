package inbound

import (
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/customeros/domails/internal/enum"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/utils"
)

// HeaderLookup returns the first value of a message header, or "" when absent.
type HeaderLookup func(name string) string

var bounceSubjects = []string{
	"mail delivery failure",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"failure notice",
	"returned mail",
	"returned to sender",
}

// Classify tags bounce notifications, auto-replies and bulk mail so consumers
// can route them away from conversations. The first matching class wins.
func Classify(header HeaderLookup, message *models.NormalizedMessage) (enum.InboundClassification, string) {
	if reason, ok := bounceReason(header, message); ok {
		return enum.InboundClassificationBounce, reason
	}
	if reason, ok := autoReplyReason(header); ok {
		return enum.InboundClassificationAutoReply, reason
	}
	if reason, ok := bulkReason(header, message); ok {
		return enum.InboundClassificationBulk, reason
	}
	return enum.InboundClassificationOK, ""
}

func bounceReason(header HeaderLookup, message *models.NormalizedMessage) (string, bool) {
	switch {
	case header("X-Failed-Recipients") != "":
		return "X-FAILED-RECIPIENTS header present", true
	case strings.EqualFold(header("Content-Description"), "delivery report"):
		return "CONTENT-DESCRIPTION: DELIVERY REPORT header present", true
	case hasBounceKeywords(header("Return-Path")):
		return "RETURN-PATH contains bounce keywords", true
	case hasBounceKeywords(message.From):
		return "FROM contains bounce keywords", true
	case isBounceSubject(message.Subject):
		return "SUBJECT contains bounce keywords", true
	default:
		return "", false
	}
}

func autoReplyReason(header HeaderLookup) (string, bool) {
	autoSubmitted := header("Auto-Submitted")
	switch {
	case header("X-Autoreply") != "":
		return "X-AUTOREPLY header present", true
	case header("X-Autorespond") != "":
		return "X-AUTORESPOND header present", true
	case autoSubmitted != "" && !strings.EqualFold(autoSubmitted, "no"):
		return "AUTO-SUBMITTED header present", true
	case header("X-Loop") != "":
		return "X-LOOP header present", true
	case strings.EqualFold(header("Precedence"), "auto_reply"):
		return "PRECEDENCE: AUTO_REPLY header present", true
	default:
		return "", false
	}
}

func bulkReason(header HeaderLookup, message *models.NormalizedMessage) (string, bool) {
	from := message.From

	if header("X-Forwarded-For") == "" {
		replyTo := header("Reply-To")
		returnPath := header("Return-Path")
		switch {
		case replyTo != "" && !sameAddress(replyTo, from):
			return "REPLY-TO != FROM", true
		case returnPath != "" && !strings.Contains(strings.ToLower(returnPath), strings.ToLower(from)):
			return "RETURN-PATH != FROM", true
		}
	}

	precedence := header("Precedence")
	sender := header("Sender")
	switch {
	case header("List-Unsubscribe") != "":
		return "LIST-UNSUBSCRIBE header present", true
	case strings.EqualFold(precedence, "bulk"), strings.EqualFold(precedence, "list"):
		return "PRECEDENCE: " + strings.ToUpper(precedence) + " header present", true
	case sender != "" && !sameAddress(sender, from):
		return "SENDER != FROM", true
	}

	validation := mailvalidate.ValidateEmailSyntax(from)
	switch {
	case validation.IsRoleAccount:
		return "FROM is a role account", true
	case validation.IsSystemGenerated:
		return "FROM is system generated", true
	default:
		return "", false
	}
}

func sameAddress(raw, address string) bool {
	cleaned, ok := utils.CleanEmailAddress(raw)
	if !ok {
		return false
	}
	return strings.EqualFold(cleaned, address)
}

func hasBounceKeywords(s string) bool {
	return strings.Contains(strings.ToLower(s), "mailer-daemon")
}

func isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	for _, phrase := range bounceSubjects {
		if strings.Contains(subject, phrase) {
			return true
		}
	}
	return false
}
