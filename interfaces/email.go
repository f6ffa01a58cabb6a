package interfaces

import (
	"context"

	"github.com/customeros/domails/internal/models"
)

type WebhookValidator interface {
	Verify(ctx context.Context, signature models.WebhookSignature) error
	Release(ctx context.Context, signature models.WebhookSignature)
}

type InboundNormalizer interface {
	Normalize(ctx context.Context, envelope *models.InboundWebhookEnvelope) (*models.NormalizedMessage, error)
}

type OutboundValidator interface {
	Validate(request *models.OutboundSendRequest) error
}

type EmailService interface {
	Send(ctx context.Context, request *models.OutboundSendRequest) (*models.SendResult, error)
}
