package events

import (
	"context"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/enum"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
)

type EventsService struct {
	Publisher interfaces.EventPublisher
}

// NewEventsService connects to RabbitMQ. Without a URL every event is only
// logged, which keeps local runs free of a broker.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, events will only be logged")
		return &EventsService{Publisher: NewLogPublisher(log)}, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	return &EventsService{
		Publisher: publisher,
	}, nil
}

func (s *EventsService) Close() error {
	if s.Publisher == nil {
		return nil
	}
	return s.Publisher.Close()
}

type logPublisher struct {
	log logger.Logger
}

func NewLogPublisher(log logger.Logger) interfaces.EventPublisher {
	return &logPublisher{log: log}
}

func (p *logPublisher) PublishInboundMessage(_ context.Context, message *models.NormalizedMessage) error {
	p.log.Infof("Inbound message %s for %s from %s", message.MessageID, message.Domain, message.From)
	return nil
}

func (p *logPublisher) PublishProviderEvent(_ context.Context, event *models.ProviderEvent) error {
	p.log.Infof("Provider event %s for %s", event.Event, event.Recipient)
	return nil
}

func (p *logPublisher) PublishDomainEvent(_ context.Context, domain *models.Domain, event enum.DomainEvent) error {
	p.log.Infof("Domain event %s for %s (%s)", event, domain.Domain, domain.Tenant)
	return nil
}

func (p *logPublisher) Close() error {
	return nil
}
