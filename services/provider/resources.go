package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domails/internal/enum"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
)

type domainResponse struct {
	Domain  models.ProviderDomain `json:"domain"`
	Message string                `json:"message"`
}

type webhookResponse struct {
	Webhook struct {
		URLs []string `json:"urls"`
	} `json:"webhook"`
	Message string `json:"message"`
}

type routesResponse struct {
	TotalCount int                    `json:"total_count"`
	Items      []models.ProviderRoute `json:"items"`
}

type routeResponse struct {
	Route   models.ProviderRoute `json:"route"`
	Message string               `json:"message"`
}

func (c *client) GetDomain(ctx context.Context, domain string) (*models.ProviderDomain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.GetDomain")
	defer span.Finish()
	tracing.TagDomain(span, domain)

	var resp domainResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/v4/domains/" + url.PathEscape(domain)}, &resp); err != nil {
		return nil, err
	}
	return &resp.Domain, nil
}

func (c *client) CreateDomain(ctx context.Context, domain string) (*models.ProviderDomain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.CreateDomain")
	defer span.Finish()
	tracing.TagDomain(span, domain)

	form := url.Values{}
	form.Set("name", domain)
	form.Set("wildcard", "true")
	form.Set("spam_action", "disabled")

	var resp domainResponse
	if err := c.do(ctx, formRequest(http.MethodPost, "/v4/domains", form), &resp); err != nil {
		return nil, err
	}
	if resp.Domain.Name == "" {
		resp.Domain.Name = domain
	}
	return &resp.Domain, nil
}

func (c *client) VerifyDomain(ctx context.Context, domain string) (*models.ProviderDomain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.VerifyDomain")
	defer span.Finish()
	tracing.TagDomain(span, domain)

	var resp domainResponse
	if err := c.do(ctx, request{method: http.MethodPut, path: "/v4/domains/" + url.PathEscape(domain) + "/verify"}, &resp); err != nil {
		return nil, err
	}
	return &resp.Domain, nil
}

func webhookPath(domain string) string {
	return "/v3/domains/" + url.PathEscape(domain) + "/webhooks"
}

func (c *client) GetWebhook(ctx context.Context, domain string, event enum.WebhookEvent) (*models.ProviderWebhook, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.GetWebhook")
	defer span.Finish()
	tracing.TagDomain(span, domain)
	span.LogKV("event", event)

	var resp webhookResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: webhookPath(domain) + "/" + event.String()}, &resp); err != nil {
		return nil, err
	}
	return &models.ProviderWebhook{Event: event.String(), URLs: resp.Webhook.URLs}, nil
}

func (c *client) CreateWebhook(ctx context.Context, domain string, event enum.WebhookEvent, webhookURL string) (*models.ProviderWebhook, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.CreateWebhook")
	defer span.Finish()
	tracing.TagDomain(span, domain)
	span.LogKV("event", event)

	form := url.Values{}
	form.Set("id", event.String())
	form.Set("url", webhookURL)

	var resp webhookResponse
	if err := c.do(ctx, formRequest(http.MethodPost, webhookPath(domain), form), &resp); err != nil {
		return nil, err
	}
	return &models.ProviderWebhook{Event: event.String(), URLs: urlsOrDefault(resp.Webhook.URLs, webhookURL)}, nil
}

func (c *client) UpdateWebhook(ctx context.Context, domain string, event enum.WebhookEvent, webhookURL string) (*models.ProviderWebhook, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.UpdateWebhook")
	defer span.Finish()
	tracing.TagDomain(span, domain)
	span.LogKV("event", event)

	form := url.Values{}
	form.Set("url", webhookURL)

	var resp webhookResponse
	if err := c.do(ctx, formRequest(http.MethodPut, webhookPath(domain)+"/"+event.String(), form), &resp); err != nil {
		return nil, err
	}
	return &models.ProviderWebhook{Event: event.String(), URLs: urlsOrDefault(resp.Webhook.URLs, webhookURL)}, nil
}

func urlsOrDefault(urls []string, fallback string) []string {
	if len(urls) == 0 {
		return []string{fallback}
	}
	return urls
}

// ListRoutes pages through every route on the account.
func (c *client) ListRoutes(ctx context.Context) ([]models.ProviderRoute, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.ListRoutes")
	defer span.Finish()

	routes := make([]models.ProviderRoute, 0)
	for skip := 0; ; skip += routesPageSize {
		query := url.Values{}
		query.Set("skip", strconv.Itoa(skip))
		query.Set("limit", strconv.Itoa(routesPageSize))

		var resp routesResponse
		if err := c.do(ctx, request{method: http.MethodGet, path: "/v3/routes", query: query}, &resp); err != nil {
			return nil, err
		}
		routes = append(routes, resp.Items...)
		if len(resp.Items) < routesPageSize {
			break
		}
	}
	span.LogKV("routes", len(routes))
	return routes, nil
}

func (c *client) CreateRoute(ctx context.Context, route models.ProviderRoute) (*models.ProviderRoute, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.CreateRoute")
	defer span.Finish()
	span.LogKV("expression", route.Expression)

	form := url.Values{}
	form.Set("priority", strconv.Itoa(route.Priority))
	form.Set("description", route.Description)
	form.Set("expression", route.Expression)
	for _, action := range route.Actions {
		form.Add("action", action)
	}

	var resp routeResponse
	if err := c.do(ctx, formRequest(http.MethodPost, "/v3/routes", form), &resp); err != nil {
		return nil, err
	}
	return &resp.Route, nil
}
