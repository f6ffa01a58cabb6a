package enum

type EntityType string

const (
	DOMAIN          EntityType = "DOMAIN"
	INBOUND_MESSAGE EntityType = "INBOUND_MESSAGE"
	PROVIDER_EVENT  EntityType = "PROVIDER_EVENT"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
