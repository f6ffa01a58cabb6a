package domain

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/domails/internal/config"
	"github.com/customeros/domails/internal/enum"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/repository"
	"github.com/customeros/domails/internal/utils"
	"github.com/customeros/domails/services/dns"
	"github.com/customeros/domails/services/provider"
	"github.com/customeros/domails/services/provisioning"
	"github.com/customeros/domails/services/verification"
)

const webhookURL = "https://hooks.example.com/webhooks/provider"

type memoryRepository struct {
	mu      sync.Mutex
	domains map[string]*models.Domain
	claims  int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{domains: make(map[string]*models.Domain)}
}

func (r *memoryRepository) CreateDomain(_ context.Context, domain *models.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.domains {
		if d.Domain == domain.Domain || d.VerificationToken == domain.VerificationToken {
			return domailsErrors.ErrDomainAlreadyRegistered
		}
	}
	copied := *domain
	r.domains[domain.ID] = &copied
	return nil
}

func (r *memoryRepository) find(match func(*models.Domain) bool) *models.Domain {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.domains {
		if match(d) {
			copied := *d
			return &copied
		}
	}
	return nil
}

func (r *memoryRepository) GetDomain(_ context.Context, tenant, domain string) (*models.Domain, error) {
	return r.find(func(d *models.Domain) bool { return d.Tenant == tenant && d.Domain == domain }), nil
}

func (r *memoryRepository) GetDomainCrossTenant(_ context.Context, domain string) (*models.Domain, error) {
	return r.find(func(d *models.Domain) bool { return d.Domain == domain }), nil
}

func (r *memoryRepository) ListDomainsForRefresh(_ context.Context, _ int) ([]models.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.Domain
	for _, d := range r.domains {
		if d.Status != enum.DomainStatusFailed {
			result = append(result, *d)
		}
	}
	return result, nil
}

func (r *memoryRepository) UpdateVerificationStatus(_ context.Context, id string, update repository.VerificationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.domains[id]
	d.Status = update.Status
	d.VerifiedAt = update.VerifiedAt
	checkedAt := update.CheckedAt
	d.LastCheckedAt = &checkedAt
	d.MissingRecords = update.MissingRecords
	return nil
}

func (r *memoryRepository) ClaimProvisioning(_ context.Context, id string, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.domains[id]
	if d.ProvisioningStartedAt != nil {
		return false, nil
	}
	d.ProvisioningStartedAt = &startedAt
	r.claims++
	return true, nil
}

func (r *memoryRepository) SaveProvisioning(_ context.Context, id string, record models.ProvisioningRecord, provisionedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.domains[id]
	d.ProviderDomainExists = record.ProviderDomainExists
	if d.WebhookSubscriptions == nil {
		d.WebhookSubscriptions = models.StringMap{}
	}
	for event, subscriptionID := range record.WebhookSubscriptionIDs {
		d.WebhookSubscriptions[event.String()] = subscriptionID
	}
	if record.InboundRouteID != "" {
		d.ProviderRouteID = utils.StringPtr(record.InboundRouteID)
	}
	if provisionedAt != nil {
		d.ProvisionedAt = provisionedAt
	}
	return nil
}

type countingResolver struct {
	*dns.MockResolver
	queries int32
}

func (r *countingResolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	atomic.AddInt32(&r.queries, 1)
	return r.MockResolver.ResolveTXT(ctx, name)
}

func (r *countingResolver) ResolveMX(ctx context.Context, name string) ([]models.MXRecord, error) {
	atomic.AddInt32(&r.queries, 1)
	return r.MockResolver.ResolveMX(ctx, name)
}

func (r *countingResolver) ResolveCNAME(ctx context.Context, name string) ([]string, error) {
	atomic.AddInt32(&r.queries, 1)
	return r.MockResolver.ResolveCNAME(ctx, name)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []enum.DomainEvent
}

func (p *recordingPublisher) PublishInboundMessage(context.Context, *models.NormalizedMessage) error {
	return nil
}

func (p *recordingPublisher) PublishProviderEvent(context.Context, *models.ProviderEvent) error {
	return nil
}

func (p *recordingPublisher) PublishDomainEvent(_ context.Context, _ *models.Domain, event enum.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func (p *recordingPublisher) Events() []enum.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]enum.DomainEvent(nil), p.events...)
}

type fixture struct {
	svc       Service
	repo      *memoryRepository
	resolver  *countingResolver
	provider  *provider.FakeClient
	publisher *recordingPublisher
	ctx       context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()

	f := &fixture{
		repo:      newMemoryRepository(),
		resolver:  &countingResolver{MockResolver: dns.NewMockResolver()},
		provider:  provider.NewFakeClient(),
		publisher: &recordingPublisher{},
		ctx:       utils.WithCustomContext(context.Background(), &utils.CustomContext{Tenant: "acme"}),
	}
	verificationService := verification.NewVerificationService(appLogger, f.resolver, &config.VerificationConfig{
		VerifyHostPrefix:  "_domails-verify",
		MXSuffixes:        []string{"mailgun.org"},
		MXHosts:           []string{"mxa.mailgun.org", "mxb.mailgun.org"},
		SPFInclude:        "mailgun.org",
		DKIMSelector:      "mx",
		TrackingSubdomain: "email",
		TrackingHost:      "mailgun.org",
	})
	provisioningService := provisioning.NewProvisioningService(appLogger, f.provider, nil, time.Minute)
	f.svc = NewDomainService(appLogger, f.repo, verificationService, provisioningService, webhookURL,
		WithEventPublisher(f.publisher), WithProvisionTimeout(10*time.Second))
	return f
}

func (f *fixture) publishOwnership(domain *models.Domain) {
	f.resolver.SetTXT("_domails-verify."+domain.Domain, domain.VerificationToken)
	f.resolver.SetMX(domain.Domain, models.MXRecord{Host: "mxa.mailgun.org", Preference: 10})
}

func TestAddDomain(t *testing.T) {
	f := newFixture(t)

	domain, instructions, err := f.svc.AddDomain(f.ctx, "  Example.ORG. ")
	require.NoError(t, err)
	assert.Equal(t, "example.org", domain.Domain)
	assert.Equal(t, "acme", domain.Tenant)
	assert.Equal(t, enum.DomainStatusPending, domain.Status)
	assert.Len(t, domain.VerificationToken, 32)
	assert.True(t, strings.HasPrefix(domain.ID, "dom"))

	require.NotEmpty(t, instructions)
	assert.Equal(t, "_domails-verify.example.org", instructions[0].Host)
	assert.Equal(t, domain.VerificationToken, instructions[0].Value)
	assert.Equal(t, []enum.DomainEvent{enum.DomainEventAdded}, f.publisher.Events())

	_, _, err = f.svc.AddDomain(utils.SetTenantInContext(f.ctx, "other"), "example.org")
	assert.ErrorIs(t, err, domailsErrors.ErrDomainAlreadyRegistered)
}

func TestAddDomain_Rejections(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.AddDomain(f.ctx, "not a domain")
	assert.True(t, domailsErrors.IsValidationError(err))

	_, _, err = f.svc.AddDomain(context.Background(), "example.org")
	assert.ErrorIs(t, err, domailsErrors.ErrTenantMissing)
}

func TestGetDomain_ScopedToTenant(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.AddDomain(f.ctx, "example.org")
	require.NoError(t, err)

	domain, instructions, err := f.svc.GetDomain(f.ctx, "EXAMPLE.org")
	require.NoError(t, err)
	assert.Equal(t, "example.org", domain.Domain)
	assert.NotEmpty(t, instructions)

	_, _, err = f.svc.GetDomain(utils.SetTenantInContext(f.ctx, "other"), "example.org")
	assert.ErrorIs(t, err, domailsErrors.ErrDomainNotFound)
}

func TestEndToEnd_FailedThenVerifiedProvisionsOnce(t *testing.T) {
	f := newFixture(t)
	domain, _, err := f.svc.AddDomain(f.ctx, "example.org")
	require.NoError(t, err)

	// ownership TXT and MX are published, SPF is not
	f.publishOwnership(domain)

	outcome, err := f.svc.VerifyDomain(f.ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusFailed, outcome.Domain.Status)
	assert.False(t, outcome.ProvisioningTriggered)
	assert.True(t, outcome.Check.VerificationTxtFound)
	assert.True(t, outcome.Check.MxValid)
	assert.False(t, outcome.Check.SpfValid)

	var missingPurposes []string
	for _, instruction := range outcome.Instructions {
		if !instruction.Valid && instruction.Required {
			missingPurposes = append(missingPurposes, instruction.Purpose)
		}
	}
	assert.Equal(t, []string{"spf"}, missingPurposes)

	f.resolver.SetTXT("example.org", "v=spf1 include:mailgun.org ~all")

	outcome, err = f.svc.VerifyDomain(f.ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusVerified, outcome.Domain.Status)
	assert.NotNil(t, outcome.Domain.VerifiedAt)
	assert.True(t, outcome.ProvisioningTriggered)

	// a refresh right after must not start a second run
	_, err = f.svc.RefreshStatus(f.ctx, "example.org")
	require.NoError(t, err)
	f.svc.Wait()

	assert.Equal(t, 1, f.provider.Calls("CreateDomain"))
	assert.Equal(t, 7, f.provider.Calls("CreateWebhook"))
	assert.Equal(t, 1, f.provider.Calls("CreateRoute"))
	assert.Equal(t, 1, f.repo.claims)

	stored, _ := f.repo.GetDomain(f.ctx, "acme", "example.org")
	assert.True(t, stored.ProviderDomainExists)
	assert.NotNil(t, stored.ProviderRouteID)
	assert.NotNil(t, stored.ProvisionedAt)
	assert.Len(t, stored.WebhookSubscriptions, 7)

	events := f.publisher.Events()
	assert.Contains(t, events, enum.DomainEventFailed)
	assert.Contains(t, events, enum.DomainEventVerified)
	assert.Contains(t, events, enum.DomainEventProvisioned)
}

func TestVerifyDomain_AlreadyVerifiedIsNoOp(t *testing.T) {
	f := newFixture(t)
	domain, _, err := f.svc.AddDomain(f.ctx, "example.org")
	require.NoError(t, err)
	f.publishOwnership(domain)
	f.resolver.SetTXT("example.org", "v=spf1 include:mailgun.org ~all")

	_, err = f.svc.VerifyDomain(f.ctx, "example.org")
	require.NoError(t, err)
	f.svc.Wait()

	before := atomic.LoadInt32(&f.resolver.queries)
	outcome, err := f.svc.VerifyDomain(f.ctx, "example.org")
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyVerified)
	assert.Equal(t, enum.DomainStatusVerified, outcome.Domain.Status)
	assert.Nil(t, outcome.Check)
	assert.Equal(t, before, atomic.LoadInt32(&f.resolver.queries))
}

func TestRefreshStatus_RegressionClearsVerifiedAt(t *testing.T) {
	f := newFixture(t)
	domain, _, err := f.svc.AddDomain(f.ctx, "example.org")
	require.NoError(t, err)
	f.publishOwnership(domain)
	f.resolver.SetTXT("example.org", "v=spf1 include:mailgun.org ~all")

	_, err = f.svc.VerifyDomain(f.ctx, "example.org")
	require.NoError(t, err)
	f.svc.Wait()

	f.resolver.SetTXT("example.org")

	outcome, err := f.svc.RefreshStatus(f.ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusVerified, outcome.PreviousStatus)
	assert.Equal(t, enum.DomainStatusFailed, outcome.Domain.Status)
	assert.Nil(t, outcome.Domain.VerifiedAt)

	stored, _ := f.repo.GetDomain(f.ctx, "acme", "example.org")
	assert.Nil(t, stored.VerifiedAt)
	assert.Contains(t, []string(stored.MissingRecords), "spf")
}

func TestRefreshStatus_PendingStaysPending(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.AddDomain(f.ctx, "example.org")
	require.NoError(t, err)

	outcome, err := f.svc.RefreshStatus(f.ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusPending, outcome.Domain.Status)
	assert.False(t, outcome.ProvisioningTriggered)
}

func TestProvisionDomain(t *testing.T) {
	f := newFixture(t)
	domain, _, err := f.svc.AddDomain(f.ctx, "example.org")
	require.NoError(t, err)

	_, err = f.svc.ProvisionDomain(f.ctx, "example.org")
	assert.ErrorIs(t, err, domailsErrors.ErrDomainNotVerified)

	f.publishOwnership(domain)
	f.resolver.SetTXT("example.org", "v=spf1 include:mailgun.org ~all")
	_, err = f.svc.VerifyDomain(f.ctx, "example.org")
	require.NoError(t, err)
	f.svc.Wait()

	result, err := f.svc.ProvisionDomain(f.ctx, "example.org")
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, enum.ProvisioningUnchanged, result.DomainStep.Action)
	assert.Equal(t, 1, f.provider.Calls("CreateDomain"))
}

func TestProvisionDomain_PartialRerunKeepsStoredState(t *testing.T) {
	f := newFixture(t)
	domain, _, err := f.svc.AddDomain(f.ctx, "example.org")
	require.NoError(t, err)
	f.publishOwnership(domain)
	f.resolver.SetTXT("example.org", "v=spf1 include:mailgun.org ~all")
	_, err = f.svc.VerifyDomain(f.ctx, "example.org")
	require.NoError(t, err)
	f.svc.Wait()

	stored, _ := f.repo.GetDomain(f.ctx, "acme", "example.org")
	require.NotNil(t, stored.ProviderRouteID)
	routeID := *stored.ProviderRouteID
	require.Len(t, stored.WebhookSubscriptions, len(enum.ProvisionedWebhookEvents))

	providerDown := errors.New("provider unavailable")
	f.provider.Errors["ListRoutes"] = providerDown
	f.provider.Errors["GetWebhook"] = providerDown

	result, err := f.svc.ProvisionDomain(f.ctx, "example.org")
	require.NoError(t, err)
	assert.True(t, result.Failed())

	stored, _ = f.repo.GetDomain(f.ctx, "acme", "example.org")
	require.NotNil(t, stored.ProviderRouteID)
	assert.Equal(t, routeID, *stored.ProviderRouteID)
	assert.Len(t, stored.WebhookSubscriptions, len(enum.ProvisionedWebhookEvents))
	assert.True(t, stored.ProviderDomainExists)
}

func TestRefreshAllDomains(t *testing.T) {
	f := newFixture(t)
	first, _, err := f.svc.AddDomain(f.ctx, "example.org")
	require.NoError(t, err)
	_, _, err = f.svc.AddDomain(utils.SetTenantInContext(f.ctx, "globex"), "globex.com")
	require.NoError(t, err)

	f.publishOwnership(first)
	f.resolver.SetTXT("example.org", "v=spf1 include:mailgun.org ~all")

	require.NoError(t, f.svc.RefreshAllDomains(context.Background()))
	f.svc.Wait()

	example, _ := f.repo.GetDomain(f.ctx, "acme", "example.org")
	globex, _ := f.repo.GetDomain(f.ctx, "globex", "globex.com")
	assert.Equal(t, enum.DomainStatusVerified, example.Status)
	assert.Equal(t, enum.DomainStatusPending, globex.Status)
	assert.NotNil(t, globex.LastCheckedAt)
	assert.Equal(t, 1, f.provider.Calls("CreateRoute"))
}
