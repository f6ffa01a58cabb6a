package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/enum"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
	"github.com/customeros/domails/services/provider"
)

const defaultLockTTL = 2 * time.Minute

type provisioningService struct {
	log      logger.Logger
	provider interfaces.ProviderClient
	locker   interfaces.Locker
	lockTTL  time.Duration
	group    singleflight.Group
}

// NewProvisioningService wires the orchestrator. locker may be nil, in which
// case concurrent runs are only deduplicated inside this process.
func NewProvisioningService(log logger.Logger, providerClient interfaces.ProviderClient, locker interfaces.Locker, lockTTL time.Duration) interfaces.ProvisioningService {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &provisioningService{
		log:      log,
		provider: providerClient,
		locker:   locker,
		lockTTL:  lockTTL,
	}
}

// InboundRouteExpression is the catch-all filter for every recipient of domain.
func InboundRouteExpression(domain string) string {
	return fmt.Sprintf(`match_recipient(".*@%s")`, domain)
}

func inboundRouteActions(webhookURL string) []string {
	return []string{fmt.Sprintf(`forward("%s")`, webhookURL), "stop()"}
}

// EnsureProvisioned brings the provider to the desired state for domain. Each
// step checks before it acts, so repeated calls converge without duplicates.
// Step failures are reported in the result; the returned error is only set
// when the run did not happen at all.
func (s *provisioningService) EnsureProvisioned(ctx context.Context, domain, webhookURL string) (*models.ProvisioningResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.EnsureProvisioned")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDomain(span, domain)

	flight := s.group.DoChan(domain, func() (interface{}, error) {
		// the run is shared by every concurrent caller, so no single caller may cancel it
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lockTTL)
		defer cancel()
		return s.provisionLocked(runCtx, domain, webhookURL)
	})

	var outcome singleflight.Result
	select {
	case outcome = <-flight:
	case <-ctx.Done():
		tracing.TraceErr(span, ctx.Err())
		return nil, ctx.Err()
	}
	span.LogFields(tracingLog.Bool("shared", outcome.Shared))
	result, _ := outcome.Val.(*models.ProvisioningResult)
	err := outcome.Err
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	if result.Failed() {
		span.LogFields(tracingLog.String("stepErrors", result.Err().Error()))
	}
	return result, nil
}

func (s *provisioningService) provisionLocked(ctx context.Context, domain, webhookURL string) (*models.ProvisioningResult, error) {
	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, "provisioning:"+domain, s.lockTTL)
		if err != nil {
			s.log.Warnf("Provisioning lock unavailable for %s, continuing without it: %v", domain, err)
		} else if !acquired {
			return skippedResult(domain, domailsErrors.ErrProvisioningInProgress), domailsErrors.ErrProvisioningInProgress
		} else {
			defer release()
		}
	}
	return s.provision(ctx, domain, webhookURL), nil
}

func (s *provisioningService) provision(ctx context.Context, domain, webhookURL string) *models.ProvisioningResult {
	result := models.NewProvisioningResult(domain)

	result.DomainStep = s.ensureDomainExists(ctx, domain)
	if result.DomainStep.Err != nil {
		s.log.Errorf("Provider domain step failed for %s: %v", domain, result.DomainStep.Err)
		skipRemaining(result)
		return result
	}
	result.Record.ProviderDomainExists = true

	if _, err := s.provider.VerifyDomain(ctx, domain); err != nil {
		s.log.Warnf("Provider verify request failed for %s: %v", domain, err)
		result.VerifyStep = models.NewStepOutcome(enum.ProvisioningError, err)
	} else {
		result.VerifyStep = models.NewStepOutcome(enum.ProvisioningUpdated, nil)
	}

	for _, event := range enum.ProvisionedWebhookEvents {
		step := s.ensureWebhook(ctx, domain, event, webhookURL)
		result.WebhookSteps[event] = step
		if step.Err == nil {
			result.Record.WebhookSubscriptionIDs[event] = event.String()
		} else {
			s.log.Errorf("Provider webhook %s failed for %s: %v", event, domain, step.Err)
		}
	}

	routeID, step := s.ensureInboundRoute(ctx, domain, webhookURL)
	result.RouteStep = step
	if step.Err == nil {
		result.Record.InboundRouteID = routeID
	} else {
		s.log.Errorf("Provider inbound route failed for %s: %v", domain, step.Err)
	}

	return result
}

func (s *provisioningService) ensureDomainExists(ctx context.Context, domain string) models.StepOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.ensureDomainExists")
	defer span.Finish()

	_, err := s.provider.GetDomain(ctx, domain)
	if err == nil {
		return models.NewStepOutcome(enum.ProvisioningUnchanged, nil)
	}
	if !provider.IsNotFound(err) {
		tracing.TraceErr(span, err)
		return models.NewStepOutcome(enum.ProvisioningError, errors.Wrap(err, "looking up provider domain"))
	}

	_, err = s.provider.CreateDomain(ctx, domain)
	if err == nil {
		return models.NewStepOutcome(enum.ProvisioningCreated, nil)
	}
	if provider.IsConflict(err) {
		return models.NewStepOutcome(enum.ProvisioningUnchanged, nil)
	}
	tracing.TraceErr(span, err)
	return models.NewStepOutcome(enum.ProvisioningError, errors.Wrap(err, "creating provider domain"))
}

func (s *provisioningService) ensureWebhook(ctx context.Context, domain string, event enum.WebhookEvent, webhookURL string) models.StepOutcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.ensureWebhook")
	defer span.Finish()
	span.LogKV("event", event)

	existing, err := s.provider.GetWebhook(ctx, domain, event)
	switch {
	case err == nil && existing.HasURL(webhookURL):
		return models.NewStepOutcome(enum.ProvisioningUnchanged, nil)
	case err == nil:
		if _, err = s.provider.UpdateWebhook(ctx, domain, event, webhookURL); err != nil {
			tracing.TraceErr(span, err)
			return models.NewStepOutcome(enum.ProvisioningError, errors.Wrapf(err, "updating %s webhook", event))
		}
		return models.NewStepOutcome(enum.ProvisioningUpdated, nil)
	case provider.IsNotFound(err):
		if _, err = s.provider.CreateWebhook(ctx, domain, event, webhookURL); err != nil && !provider.IsConflict(err) {
			tracing.TraceErr(span, err)
			return models.NewStepOutcome(enum.ProvisioningError, errors.Wrapf(err, "creating %s webhook", event))
		}
		return models.NewStepOutcome(enum.ProvisioningCreated, nil)
	default:
		tracing.TraceErr(span, err)
		return models.NewStepOutcome(enum.ProvisioningError, errors.Wrapf(err, "looking up %s webhook", event))
	}
}

func (s *provisioningService) ensureInboundRoute(ctx context.Context, domain, webhookURL string) (string, models.StepOutcome) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProvisioningService.ensureInboundRoute")
	defer span.Finish()

	expression := InboundRouteExpression(domain)
	routes, err := s.provider.ListRoutes(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", models.NewStepOutcome(enum.ProvisioningError, errors.Wrap(err, "listing provider routes"))
	}
	for _, route := range routes {
		if strings.EqualFold(route.Expression, expression) {
			span.LogKV("routeId", route.ID)
			return route.ID, models.NewStepOutcome(enum.ProvisioningUnchanged, nil)
		}
	}

	created, err := s.provider.CreateRoute(ctx, models.ProviderRoute{
		Priority:    0,
		Description: "Catch-all inbound for " + domain,
		Expression:  expression,
		Actions:     inboundRouteActions(webhookURL),
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", models.NewStepOutcome(enum.ProvisioningError, errors.Wrap(err, "creating provider route"))
	}
	span.LogKV("routeId", created.ID)
	return created.ID, models.NewStepOutcome(enum.ProvisioningCreated, nil)
}

func skipRemaining(result *models.ProvisioningResult) {
	skipped := models.NewStepOutcome(enum.ProvisioningSkipped, nil)
	result.VerifyStep = skipped
	for _, event := range enum.ProvisionedWebhookEvents {
		result.WebhookSteps[event] = skipped
	}
	result.RouteStep = skipped
}

func skippedResult(domain string, reason error) *models.ProvisioningResult {
	result := models.NewProvisioningResult(domain)
	skipRemaining(result)
	result.DomainStep = models.NewStepOutcome(enum.ProvisioningSkipped, nil)
	result.DomainStep.Error = reason.Error()
	return result
}
