package models

import (
	"go.uber.org/multierr"

	"github.com/customeros/domails/internal/enum"
)

// ProvisioningRecord is the provider-side end state of a domain. Two runs
// against an unchanged provider produce equal records.
type ProvisioningRecord struct {
	ProviderDomainExists   bool                         `json:"providerDomainExists"`
	WebhookSubscriptionIDs map[enum.WebhookEvent]string `json:"webhookSubscriptionIds"`
	InboundRouteID         string                       `json:"inboundRouteId,omitempty"`
}

// MergedWith fills what this run could not establish from a previously
// persisted record, so a partially failed run never erases known state.
func (r ProvisioningRecord) MergedWith(previous ProvisioningRecord) ProvisioningRecord {
	merged := ProvisioningRecord{
		ProviderDomainExists:   r.ProviderDomainExists || previous.ProviderDomainExists,
		WebhookSubscriptionIDs: make(map[enum.WebhookEvent]string, len(previous.WebhookSubscriptionIDs)+len(r.WebhookSubscriptionIDs)),
		InboundRouteID:         r.InboundRouteID,
	}
	for event, id := range previous.WebhookSubscriptionIDs {
		merged.WebhookSubscriptionIDs[event] = id
	}
	for event, id := range r.WebhookSubscriptionIDs {
		merged.WebhookSubscriptionIDs[event] = id
	}
	if merged.InboundRouteID == "" {
		merged.InboundRouteID = previous.InboundRouteID
	}
	return merged
}

type StepOutcome struct {
	Action enum.ProvisioningAction `json:"action"`
	Err    error                   `json:"-"`
	Error  string                  `json:"error,omitempty"`
}

func NewStepOutcome(action enum.ProvisioningAction, err error) StepOutcome {
	outcome := StepOutcome{Action: action, Err: err}
	if err != nil {
		outcome.Action = enum.ProvisioningError
		outcome.Error = err.Error()
	}
	return outcome
}

type ProvisioningResult struct {
	Domain       string                            `json:"domain"`
	Record       ProvisioningRecord                `json:"record"`
	DomainStep   StepOutcome                       `json:"domainStep"`
	VerifyStep   StepOutcome                       `json:"verifyStep"`
	WebhookSteps map[enum.WebhookEvent]StepOutcome `json:"webhookSteps"`
	RouteStep    StepOutcome                       `json:"routeStep"`
}

func NewProvisioningResult(domain string) *ProvisioningResult {
	return &ProvisioningResult{
		Domain: domain,
		Record: ProvisioningRecord{
			WebhookSubscriptionIDs: make(map[enum.WebhookEvent]string),
		},
		WebhookSteps: make(map[enum.WebhookEvent]StepOutcome),
	}
}

// Err combines the errors of every required step. The provider-side verify
// request is advisory and never contributes.
func (r *ProvisioningResult) Err() error {
	var err error
	err = multierr.Append(err, r.DomainStep.Err)
	for _, event := range enum.ProvisionedWebhookEvents {
		if step, ok := r.WebhookSteps[event]; ok {
			err = multierr.Append(err, step.Err)
		}
	}
	err = multierr.Append(err, r.RouteStep.Err)
	return err
}

func (r *ProvisioningResult) Failed() bool {
	return r.Err() != nil
}
