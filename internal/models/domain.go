package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/customeros/domails/internal/enum"
)

type Domain struct {
	ID                    string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Tenant                string            `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	Domain                string            `gorm:"column:domain;type:varchar(255);NOT NULL;uniqueIndex" json:"domain"`
	VerificationToken     string            `gorm:"column:verification_token;type:varchar(255);NOT NULL;uniqueIndex" json:"verificationToken"`
	Status                enum.DomainStatus `gorm:"column:status;type:varchar(20);NOT NULL;DEFAULT:'pending';index" json:"status"`
	VerifiedAt            *time.Time        `gorm:"column:verified_at;type:timestamp" json:"verifiedAt,omitempty"`
	LastCheckedAt         *time.Time        `gorm:"column:last_checked_at;type:timestamp" json:"lastCheckedAt,omitempty"`
	MissingRecords        pq.StringArray    `gorm:"column:missing_records;type:text[]" json:"missingRecords"`
	ProviderDomainExists  bool              `gorm:"column:provider_domain_exists;type:boolean;NOT NULL;DEFAULT:false" json:"providerDomainExists"`
	ProviderRouteID       *string           `gorm:"column:provider_route_id;type:varchar(255)" json:"providerRouteId,omitempty"`
	WebhookSubscriptions  StringMap         `gorm:"column:webhook_subscriptions;type:jsonb" json:"webhookSubscriptions"`
	ProvisioningStartedAt *time.Time        `gorm:"column:provisioning_started_at;type:timestamp" json:"provisioningStartedAt,omitempty"`
	ProvisionedAt         *time.Time        `gorm:"column:provisioned_at;type:timestamp" json:"provisionedAt,omitempty"`
	CreatedAt             time.Time         `gorm:"column:created_at;type:timestamp;autoCreateTime" json:"createdAt"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;type:timestamp;autoUpdateTime" json:"updatedAt"`
}

func (Domain) TableName() string {
	return "domains"
}

func (d *Domain) IsVerified() bool {
	return d.Status == enum.DomainStatusVerified
}

// ProvisioningRecord returns the provider state last persisted for the domain.
func (d *Domain) ProvisioningRecord() ProvisioningRecord {
	record := ProvisioningRecord{
		ProviderDomainExists:   d.ProviderDomainExists,
		WebhookSubscriptionIDs: make(map[enum.WebhookEvent]string, len(d.WebhookSubscriptions)),
	}
	for event, id := range d.WebhookSubscriptions {
		record.WebhookSubscriptionIDs[enum.WebhookEvent(event)] = id
	}
	if d.ProviderRouteID != nil {
		record.InboundRouteID = *d.ProviderRouteID
	}
	return record
}

// VerificationOutcome is returned by verify and refresh operations.
type VerificationOutcome struct {
	Domain                *Domain           `json:"domain"`
	Check                 *DNSCheckResult   `json:"check,omitempty"`
	PreviousStatus        enum.DomainStatus `json:"previousStatus"`
	AlreadyVerified       bool              `json:"alreadyVerified"`
	ProvisioningTriggered bool              `json:"provisioningTriggered"`
	Instructions          []DNSInstruction  `json:"instructions,omitempty"`
}
