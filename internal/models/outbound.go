package models

type OutboundSendRequest struct {
	From        string       `json:"from"`
	FromName    string       `json:"fromName"`
	To          []string     `json:"to"`
	Cc          []string     `json:"cc"`
	Bcc         []string     `json:"bcc"`
	ReplyTo     string       `json:"replyTo"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text"`
	HTML        string       `json:"html"`
	InReplyTo   string       `json:"inReplyTo"`
	References  []string     `json:"references"`
	Attachments []Attachment `json:"attachments"`
}

type SendResult struct {
	ProviderMessageID string `json:"providerMessageId"`
	Message           string `json:"message"`
}
