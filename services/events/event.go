package events

import (
	"context"
	"reflect"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domails/internal/enum"
	"github.com/customeros/domails/internal/tracing"
	"github.com/customeros/domails/internal/utils"
)

const eventIdPrefix = "event"

// Event is the envelope every message published by domails is wrapped in.
type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string          `json:"id"`
	Tenant     string          `json:"tenant"`
	EntityId   string          `json:"entityId"`
	EntityType enum.EntityType `json:"entityType"`
	EventType  string          `json:"eventType"`
	Data       interface{}     `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	UserId      string `json:"userId"`
	Timestamp   string `json:"timestamp"`
}

// DomainEventData is the payload of every domain lifecycle event.
type DomainEventData struct {
	Domain         string     `json:"domain"`
	Status         string     `json:"status"`
	VerifiedAt     *time.Time `json:"verifiedAt,omitempty"`
	ProvisionedAt  *time.Time `json:"provisionedAt,omitempty"`
	MissingRecords []string   `json:"missingRecords,omitempty"`
}

// newEvent wraps message, taking tenant and caller from ctx. An empty
// eventType falls back to the message's type name.
func newEvent(ctx context.Context, span opentracing.Span, entityId string, entityType enum.EntityType, eventType string, message interface{}) Event {
	if eventType == "" {
		messageType := reflect.TypeOf(message)
		if messageType != nil && messageType.Kind() == reflect.Ptr {
			messageType = messageType.Elem()
		}
		if messageType != nil {
			eventType = messageType.Name()
		}
	}

	var traceId string
	if span != nil {
		traceId = tracing.ExtractTextMapCarrier(span.Context())["uber-trace-id"]
	}

	return Event{
		Event: EventDetails{
			Id:         utils.GenerateNanoIDWithPrefix(eventIdPrefix, 21),
			EntityId:   entityId,
			EntityType: entityType,
			Tenant:     utils.GetTenantFromContext(ctx),
			EventType:  eventType,
			Data:       message,
		},
		Metadata: EventMetadata{
			UberTraceId: traceId,
			AppSource:   utils.GetAppSourceFromContext(ctx),
			UserId:      utils.GetUserIdFromContext(ctx),
			Timestamp:   utils.Now().Format(time.RFC3339),
		},
	}
}
