package enum

type WebhookEvent string

const (
	WebhookDelivered     WebhookEvent = "delivered"
	WebhookPermanentFail WebhookEvent = "permanent_fail"
	WebhookTemporaryFail WebhookEvent = "temporary_fail"
	WebhookComplained    WebhookEvent = "complained"
	WebhookUnsubscribed  WebhookEvent = "unsubscribed"
	WebhookOpened        WebhookEvent = "opened"
	WebhookClicked       WebhookEvent = "clicked"
)

// ProvisionedWebhookEvents is every event the provider is subscribed to per domain.
var ProvisionedWebhookEvents = []WebhookEvent{
	WebhookDelivered,
	WebhookPermanentFail,
	WebhookTemporaryFail,
	WebhookComplained,
	WebhookUnsubscribed,
	WebhookOpened,
	WebhookClicked,
}

func (e WebhookEvent) String() string {
	return string(e)
}

type ProvisioningAction string

const (
	ProvisioningCreated   ProvisioningAction = "created"
	ProvisioningUpdated   ProvisioningAction = "updated"
	ProvisioningUnchanged ProvisioningAction = "unchanged"
	ProvisioningSkipped   ProvisioningAction = "skipped"
	ProvisioningError     ProvisioningAction = "error"
)

func (a ProvisioningAction) String() string {
	return string(a)
}

type ProviderRegion string

const (
	ProviderRegionUS ProviderRegion = "us"
	ProviderRegionEU ProviderRegion = "eu"
)

func (r ProviderRegion) BaseURL() string {
	if r == ProviderRegionEU {
		return "https://api.eu.mailgun.net"
	}
	return "https://api.mailgun.net"
}
