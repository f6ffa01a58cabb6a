package handlers

import (
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/services"
)

type APIHandlers struct {
	Domains  *DomainsHandler
	Emails   *EmailsHandler
	Webhooks *WebhookHandler
}

func InitHandlers(s *services.Services, log logger.Logger) *APIHandlers {
	return &APIHandlers{
		Domains:  NewDomainsHandler(s.DomainService),
		Emails:   NewEmailsHandler(s.EmailService),
		Webhooks: NewWebhookHandler(log, s.WebhookValidator, s.InboundNormalizer, s.EventsService.Publisher),
	}
}
