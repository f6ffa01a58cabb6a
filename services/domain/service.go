package domain

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/enum"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/repository"
	"github.com/customeros/domails/internal/tracing"
	"github.com/customeros/domails/internal/utils"
	"github.com/customeros/domails/services/verification"
)

const (
	domainIdPrefix       = "dom"
	refreshBatchSize     = 500
	defaultProvisionTime = 2 * time.Minute
)

type domainService struct {
	log              logger.Logger
	repository       repository.DomainRepository
	verification     interfaces.VerificationService
	provisioning     interfaces.ProvisioningService
	events           interfaces.EventPublisher
	webhookURL       string
	provisionTimeout time.Duration
	now              func() time.Time

	// background provisioning runs, waited on at shutdown
	running sync.WaitGroup
}

// Service is the domain lifecycle plus a way to drain background provisioning.
type Service interface {
	interfaces.DomainService
	// Wait blocks until every background provisioning run has finished.
	Wait()
}

type Option func(*domainService)

// WithEventPublisher announces domain changes. Without it nothing is published.
func WithEventPublisher(events interfaces.EventPublisher) Option {
	return func(s *domainService) {
		s.events = events
	}
}

func WithProvisionTimeout(timeout time.Duration) Option {
	return func(s *domainService) {
		if timeout > 0 {
			s.provisionTimeout = timeout
		}
	}
}

func NewDomainService(log logger.Logger, repo repository.DomainRepository, verificationService interfaces.VerificationService, provisioning interfaces.ProvisioningService, webhookURL string, opts ...Option) Service {
	s := &domainService{
		log:              log,
		repository:       repo,
		verification:     verificationService,
		provisioning:     provisioning,
		webhookURL:       webhookURL,
		provisionTimeout: defaultProvisionTime,
		now:              utils.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *domainService) Wait() {
	s.running.Wait()
}

func (s *domainService) AddDomain(ctx context.Context, name string) (*models.Domain, []models.DNSInstruction, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.AddDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domain", name)

	tenant, domainName, err := s.requestScope(ctx, name)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}

	existing, err := s.repository.GetDomainCrossTenant(ctx, domainName)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, errors.Wrap(err, "checking existing domain")
	}
	if existing != nil {
		return nil, nil, domailsErrors.ErrDomainAlreadyRegistered
	}

	token, err := utils.GenerateVerificationToken()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, errors.Wrap(err, "generating verification token")
	}

	domain := &models.Domain{
		ID:                   utils.GenerateNanoIDWithPrefix(domainIdPrefix, 16),
		Tenant:               tenant,
		Domain:               domainName,
		VerificationToken:    token,
		Status:               enum.DomainStatusPending,
		WebhookSubscriptions: models.StringMap{},
	}
	if err := s.repository.CreateDomain(ctx, domain); err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}
	tracing.TagEntity(span, domain.ID)
	s.log.Infof("Domain %s added for tenant %s", domainName, tenant)

	s.publish(ctx, domain, enum.DomainEventAdded)
	return domain, s.verification.ExpectedRecords(domainName, token), nil
}

func (s *domainService) GetDomain(ctx context.Context, name string) (*models.Domain, []models.DNSInstruction, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.GetDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domain", name)

	domain, err := s.loadDomain(ctx, name)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}
	return domain, s.lastKnownInstructions(domain), nil
}

// VerifyDomain runs an explicit verification. A domain that is already
// verified is returned as is without touching DNS.
func (s *domainService) VerifyDomain(ctx context.Context, name string) (*models.VerificationOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.VerifyDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domain", name)

	domain, err := s.loadDomain(ctx, name)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if domain.IsVerified() {
		conflict := &domailsErrors.StateConflictError{Domain: domain.Domain, State: domain.Status.String()}
		span.LogFields(tracingLog.String("result", conflict.Error()))
		return &models.VerificationOutcome{
			Domain:          domain,
			PreviousStatus:  domain.Status,
			AlreadyVerified: true,
			Instructions:    s.lastKnownInstructions(domain),
		}, nil
	}

	return s.checkAndReconcile(ctx, domain, enum.VerificationExplicit)
}

// RefreshStatus re-checks DNS without user intent, e.g. a dashboard poll.
func (s *domainService) RefreshStatus(ctx context.Context, name string) (*models.VerificationOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.RefreshStatus")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domain", name)

	domain, err := s.loadDomain(ctx, name)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return s.checkAndReconcile(ctx, domain, enum.VerificationPassive)
}

// ProvisionDomain re-runs provisioning synchronously for a verified domain.
func (s *domainService) ProvisionDomain(ctx context.Context, name string) (*models.ProvisioningResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.ProvisionDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domain", name)

	domain, err := s.loadDomain(ctx, name)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !domain.IsVerified() {
		return nil, domailsErrors.ErrDomainNotVerified
	}

	// keeps a later first verification from starting a second run
	if _, err := s.repository.ClaimProvisioning(ctx, domain.ID, s.now()); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "claiming provisioning")
	}

	return s.provision(ctx, domain)
}

// RefreshAllDomains passively re-checks every pending and verified domain.
func (s *domainService) RefreshAllDomains(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.RefreshAllDomains")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	domains, err := s.repository.ListDomainsForRefresh(ctx, refreshBatchSize)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogFields(tracingLog.Int("domains.count", len(domains)))

	var combined error
	for i := range domains {
		if ctx.Err() != nil {
			return multierr.Append(combined, ctx.Err())
		}
		domain := domains[i]
		domainCtx := utils.SetTenantInContext(ctx, domain.Tenant)
		if _, err := s.checkAndReconcile(domainCtx, &domain, enum.VerificationPassive); err != nil {
			s.log.Errorf("Refreshing domain %s failed: %v", domain.Domain, err)
			combined = multierr.Append(combined, errors.Wrap(err, domain.Domain))
		}
	}
	if combined != nil {
		tracing.TraceErr(span, combined)
	}
	return combined
}

func (s *domainService) checkAndReconcile(ctx context.Context, domain *models.Domain, policy enum.VerificationPolicy) (*models.VerificationOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.checkAndReconcile")
	defer span.Finish()
	tracing.TagDomain(span, domain.Domain)
	span.LogKV("policy", policy)

	result := s.verification.CheckDomain(ctx, domain.Domain, domain.VerificationToken)
	transition := Reconcile(policy, domain, result, s.now())
	missing := verification.MissingChecks(result)

	err := s.repository.UpdateVerificationStatus(ctx, domain.ID, repository.VerificationUpdate{
		Status:         transition.To,
		VerifiedAt:     transition.VerifiedAt,
		CheckedAt:      result.CheckedAt,
		MissingRecords: missing,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "saving verification status")
	}

	previous := domain.Status
	domain.Status = transition.To
	domain.VerifiedAt = transition.VerifiedAt
	checkedAt := result.CheckedAt
	domain.LastCheckedAt = &checkedAt
	domain.MissingRecords = missing

	span.LogFields(
		tracingLog.String("transition.from", previous.String()),
		tracingLog.String("transition.to", transition.To.String()),
	)
	if transition.Regressed {
		s.log.Warnf("Domain %s lost required DNS records, downgraded to failed", domain.Domain)
	}

	outcome := &models.VerificationOutcome{
		Domain:         domain,
		Check:          result,
		PreviousStatus: previous,
	}
	outcome.Instructions, _ = verification.MarkValidity(s.verification.ExpectedRecords(domain.Domain, domain.VerificationToken), result)

	if transition.Changed() {
		if transition.To == enum.DomainStatusVerified {
			s.publish(ctx, domain, enum.DomainEventVerified)
		} else if transition.To == enum.DomainStatusFailed {
			s.publish(ctx, domain, enum.DomainEventFailed)
		}
	}

	if transition.FirstVerification {
		outcome.ProvisioningTriggered = s.triggerProvisioning(ctx, domain)
	}
	return outcome, nil
}

// triggerProvisioning starts the one provisioning run a domain gets on its
// first verification. It never blocks or fails the caller.
func (s *domainService) triggerProvisioning(ctx context.Context, domain *models.Domain) bool {
	startedAt := s.now()
	claimed, err := s.repository.ClaimProvisioning(ctx, domain.ID, startedAt)
	if err != nil {
		s.log.Errorf("Could not claim provisioning for %s: %v", domain.Domain, err)
		return false
	}
	if !claimed {
		return false
	}
	domain.ProvisioningStartedAt = &startedAt

	snapshot := *domain
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer tracing.RecoverAndLogToJaeger(s.log)

		span, detachedCtx := tracing.StartDetachedSpan(ctx, "DomainService.backgroundProvisioning")
		defer span.Finish()
		tracing.TagDomain(span, snapshot.Domain)

		runCtx, cancel := context.WithTimeout(detachedCtx, s.provisionTimeout)
		defer cancel()
		if _, err := s.provision(runCtx, &snapshot); err != nil {
			tracing.TraceErr(span, err)
		}
	}()
	return true
}

func (s *domainService) provision(ctx context.Context, domain *models.Domain) (*models.ProvisioningResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.provision")
	defer span.Finish()
	tracing.TagDomain(span, domain.Domain)

	result, err := s.provisioning.EnsureProvisioned(ctx, domain.Domain, s.webhookURL)
	if err != nil {
		s.log.Warnf("Provisioning %s did not run: %v", domain.Domain, err)
		tracing.TraceErr(span, err)
		return result, err
	}

	var provisionedAt *time.Time
	if !result.Failed() {
		provisionedAt = utils.NowPtr()
	} else {
		s.log.Errorf("Provisioning %s finished with errors: %v", domain.Domain, result.Err())
	}

	record := result.Record.MergedWith(domain.ProvisioningRecord())

	// the store write must outlive a cancelled request
	saveCtx := context.WithoutCancel(ctx)
	if err := s.repository.SaveProvisioning(saveCtx, domain.ID, record, provisionedAt); err != nil {
		tracing.TraceErr(span, err)
		return result, errors.Wrap(err, "saving provisioning record")
	}

	domain.ProviderDomainExists = record.ProviderDomainExists
	domain.WebhookSubscriptions = make(models.StringMap, len(record.WebhookSubscriptionIDs))
	for event, subscriptionID := range record.WebhookSubscriptionIDs {
		domain.WebhookSubscriptions[event.String()] = subscriptionID
	}
	if record.InboundRouteID != "" {
		domain.ProviderRouteID = utils.StringPtr(record.InboundRouteID)
	}
	if provisionedAt != nil {
		domain.ProvisionedAt = provisionedAt
		s.publish(saveCtx, domain, enum.DomainEventProvisioned)
	}
	return result, nil
}

func (s *domainService) requestScope(ctx context.Context, name string) (string, string, error) {
	if err := utils.ValidateTenant(ctx); err != nil {
		return "", "", domailsErrors.ErrTenantMissing
	}
	domainName, err := utils.CanonicalDomain(name)
	if err != nil {
		return "", "", domailsErrors.NewFieldError("domain", err.Error())
	}
	return utils.GetTenantFromContext(ctx), domainName, nil
}

func (s *domainService) loadDomain(ctx context.Context, name string) (*models.Domain, error) {
	tenant, domainName, err := s.requestScope(ctx, name)
	if err != nil {
		return nil, err
	}
	domain, err := s.repository.GetDomain(ctx, tenant, domainName)
	if err != nil {
		return nil, errors.Wrap(err, "loading domain")
	}
	if domain == nil {
		return nil, domailsErrors.ErrDomainNotFound
	}
	return domain, nil
}

// lastKnownInstructions marks instructions valid according to the last persisted check.
func (s *domainService) lastKnownInstructions(domain *models.Domain) []models.DNSInstruction {
	instructions := s.verification.ExpectedRecords(domain.Domain, domain.VerificationToken)
	if domain.LastCheckedAt == nil {
		return instructions
	}
	missing := make(map[string]struct{}, len(domain.MissingRecords))
	for _, check := range domain.MissingRecords {
		missing[check] = struct{}{}
	}
	for i := range instructions {
		_, isMissing := missing[instructions[i].Purpose]
		instructions[i].Valid = !isMissing
	}
	return instructions
}

func (s *domainService) publish(ctx context.Context, domain *models.Domain, event enum.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishDomainEvent(ctx, domain, event); err != nil {
		s.log.Errorf("Publishing %s for %s failed: %v", event, domain.Domain, err)
	}
}
