package provider

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/mail"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
)

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// SendMessage submits an already validated request through the domain's sending endpoint.
func (c *client) SendMessage(ctx context.Context, domain string, sendRequest *models.OutboundSendRequest) (*models.SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.SendMessage")
	defer span.Finish()
	tracing.TagDomain(span, domain)

	body, contentType, err := encodeMessage(sendRequest)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var resp sendResponse
	req := request{
		method:      http.MethodPost,
		path:        "/v3/" + url.PathEscape(domain) + "/messages",
		body:        body,
		contentType: contentType,
	}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}

	span.LogKV("providerMessageId", resp.ID)
	return &models.SendResult{ProviderMessageID: resp.ID, Message: resp.Message}, nil
}

func encodeMessage(r *models.OutboundSendRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	from := r.From
	if r.FromName != "" {
		from = (&mail.Address{Name: r.FromName, Address: r.From}).String()
	}

	fields := []struct {
		name   string
		values []string
	}{
		{"from", []string{from}},
		{"to", r.To},
		{"cc", r.Cc},
		{"bcc", r.Bcc},
		{"subject", []string{strings.TrimSpace(r.Subject)}},
		{"text", []string{r.Text}},
		{"html", []string{r.HTML}},
		{"h:Reply-To", []string{r.ReplyTo}},
		{"h:In-Reply-To", []string{r.InReplyTo}},
		{"h:References", []string{strings.Join(r.References, " ")}},
	}
	for _, field := range fields {
		for _, value := range field.values {
			if value == "" {
				continue
			}
			if err := writer.WriteField(field.name, value); err != nil {
				return nil, "", errors.Wrapf(err, "writing field %s", field.name)
			}
		}
	}

	for _, attachment := range r.Attachments {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="attachment"; filename="`+escapeQuotes(attachment.Filename)+`"`)
		if attachment.ContentType != "" {
			header.Set("Content-Type", attachment.ContentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", errors.Wrap(err, "creating attachment part")
		}
		if _, err := part.Write(attachment.Data); err != nil {
			return nil, "", errors.Wrap(err, "writing attachment")
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", errors.Wrap(err, "closing multipart body")
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
