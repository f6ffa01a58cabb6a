package provider

import (
	"context"
	"strconv"
	"sync"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/enum"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
)

// FakeClient is an in-memory provider used by tests. It records every call
// by operation name, e.g. "CreateDomain".
type FakeClient struct {
	mu       sync.Mutex
	domains  map[string]*models.ProviderDomain
	webhooks map[string]map[enum.WebhookEvent][]string
	routes   []models.ProviderRoute
	calls    map[string]int
	sent     []*models.OutboundSendRequest

	// Errors forces an operation to fail, keyed by operation name.
	Errors map[string]error
}

var _ interfaces.ProviderClient = (*FakeClient)(nil)

func NewFakeClient() *FakeClient {
	return &FakeClient{
		domains:  make(map[string]*models.ProviderDomain),
		webhooks: make(map[string]map[enum.WebhookEvent][]string),
		calls:    make(map[string]int),
		Errors:   make(map[string]error),
	}
}

// Calls returns how many times op was invoked.
func (f *FakeClient) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeClient) Sent() []*models.OutboundSendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.OutboundSendRequest(nil), f.sent...)
}

func (f *FakeClient) Routes() []models.ProviderRoute {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ProviderRoute(nil), f.routes...)
}

func (f *FakeClient) record(op string) error {
	f.calls[op]++
	return f.Errors[op]
}

func notFound(op string) error {
	return &domailsErrors.ProviderAPIError{Method: op, StatusCode: 404, Body: "not found", Cause: domailsErrors.ErrProviderNotFound}
}

func (f *FakeClient) GetDomain(_ context.Context, domain string) (*models.ProviderDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetDomain"); err != nil {
		return nil, err
	}
	d, ok := f.domains[domain]
	if !ok {
		return nil, notFound("GetDomain")
	}
	copied := *d
	return &copied, nil
}

func (f *FakeClient) CreateDomain(_ context.Context, domain string) (*models.ProviderDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateDomain"); err != nil {
		return nil, err
	}
	if _, ok := f.domains[domain]; ok {
		return nil, &domailsErrors.ProviderAPIError{Method: "CreateDomain", StatusCode: 400, Body: "domain already exists", Cause: domailsErrors.ErrProviderConflict}
	}
	d := &models.ProviderDomain{Name: domain, State: "unverified"}
	f.domains[domain] = d
	copied := *d
	return &copied, nil
}

func (f *FakeClient) VerifyDomain(_ context.Context, domain string) (*models.ProviderDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("VerifyDomain"); err != nil {
		return nil, err
	}
	d, ok := f.domains[domain]
	if !ok {
		return nil, notFound("VerifyDomain")
	}
	d.State = "active"
	copied := *d
	return &copied, nil
}

func (f *FakeClient) GetWebhook(_ context.Context, domain string, event enum.WebhookEvent) (*models.ProviderWebhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetWebhook"); err != nil {
		return nil, err
	}
	urls, ok := f.webhooks[domain][event]
	if !ok {
		return nil, notFound("GetWebhook")
	}
	return &models.ProviderWebhook{Event: event.String(), URLs: append([]string(nil), urls...)}, nil
}

func (f *FakeClient) CreateWebhook(_ context.Context, domain string, event enum.WebhookEvent, url string) (*models.ProviderWebhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateWebhook"); err != nil {
		return nil, err
	}
	if _, ok := f.webhooks[domain]; !ok {
		f.webhooks[domain] = make(map[enum.WebhookEvent][]string)
	}
	if _, ok := f.webhooks[domain][event]; ok {
		return nil, &domailsErrors.ProviderAPIError{Method: "CreateWebhook", StatusCode: 400, Body: "webhook already exists", Cause: domailsErrors.ErrProviderConflict}
	}
	f.webhooks[domain][event] = []string{url}
	return &models.ProviderWebhook{Event: event.String(), URLs: []string{url}}, nil
}

func (f *FakeClient) UpdateWebhook(_ context.Context, domain string, event enum.WebhookEvent, url string) (*models.ProviderWebhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateWebhook"); err != nil {
		return nil, err
	}
	if _, ok := f.webhooks[domain][event]; !ok {
		return nil, notFound("UpdateWebhook")
	}
	f.webhooks[domain][event] = []string{url}
	return &models.ProviderWebhook{Event: event.String(), URLs: []string{url}}, nil
}

func (f *FakeClient) ListRoutes(_ context.Context) ([]models.ProviderRoute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListRoutes"); err != nil {
		return nil, err
	}
	return append([]models.ProviderRoute(nil), f.routes...), nil
}

func (f *FakeClient) CreateRoute(_ context.Context, route models.ProviderRoute) (*models.ProviderRoute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRoute"); err != nil {
		return nil, err
	}
	route.ID = "route-" + strconv.Itoa(len(f.routes)+1)
	f.routes = append(f.routes, route)
	return &route, nil
}

func (f *FakeClient) SendMessage(_ context.Context, domain string, request *models.OutboundSendRequest) (*models.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SendMessage"); err != nil {
		return nil, err
	}
	f.sent = append(f.sent, request)
	return &models.SendResult{
		ProviderMessageID: "<" + strconv.Itoa(len(f.sent)) + "@" + domain + ">",
		Message:           "Queued. Thank you.",
	}, nil
}

// SeedWebhook registers an existing subscription.
func (f *FakeClient) SeedWebhook(domain string, event enum.WebhookEvent, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.webhooks[domain]; !ok {
		f.webhooks[domain] = make(map[enum.WebhookEvent][]string)
	}
	f.webhooks[domain][event] = []string{url}
}
