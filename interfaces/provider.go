package interfaces

import (
	"context"

	"github.com/customeros/domails/internal/enum"
	"github.com/customeros/domails/internal/models"
)

type ProviderClient interface {
	GetDomain(ctx context.Context, domain string) (*models.ProviderDomain, error)
	CreateDomain(ctx context.Context, domain string) (*models.ProviderDomain, error)
	VerifyDomain(ctx context.Context, domain string) (*models.ProviderDomain, error)
	GetWebhook(ctx context.Context, domain string, event enum.WebhookEvent) (*models.ProviderWebhook, error)
	CreateWebhook(ctx context.Context, domain string, event enum.WebhookEvent, url string) (*models.ProviderWebhook, error)
	UpdateWebhook(ctx context.Context, domain string, event enum.WebhookEvent, url string) (*models.ProviderWebhook, error)
	ListRoutes(ctx context.Context) ([]models.ProviderRoute, error)
	CreateRoute(ctx context.Context, route models.ProviderRoute) (*models.ProviderRoute, error)
	SendMessage(ctx context.Context, domain string, request *models.OutboundSendRequest) (*models.SendResult, error)
}

type ProvisioningService interface {
	EnsureProvisioned(ctx context.Context, domain, webhookURL string) (*models.ProvisioningResult, error)
}
