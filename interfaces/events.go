package interfaces

import (
	"context"

	"github.com/customeros/domails/internal/enum"
	"github.com/customeros/domails/internal/models"
)

type EventPublisher interface {
	PublishInboundMessage(ctx context.Context, message *models.NormalizedMessage) error
	PublishProviderEvent(ctx context.Context, event *models.ProviderEvent) error
	PublishDomainEvent(ctx context.Context, domain *models.Domain, event enum.DomainEvent) error
	Close() error
}
