package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/domails/api/handlers"
	"github.com/customeros/domails/api/middleware"
	"github.com/customeros/domails/internal/tracing"
)

const (
	APIKeyHeader = "X-DOMAILS-API-KEY"
	AppSource    = "domails"

	WebhookPath = "/webhooks/provider"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, h *handlers.APIHandlers, apiKey string) {
	if h == nil {
		panic("Handlers cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	r.GET("/health", handlers.HealthCheck)

	// The provider authenticates with the webhook signature, not the API key.
	r.POST(WebhookPath, h.Webhooks.Provider())

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apiKey,
	})

	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(AppSource))
	api.Use(middleware.TenantValidationMiddleware())
	api.Use(middleware.TracingMiddleware())
	{
		domains := api.Group("/domains")
		{
			domains.POST("", h.Domains.AddDomain())
			domains.GET("/:domain", h.Domains.GetDomain())
			domains.POST("/:domain/verify", h.Domains.VerifyDomain())
			domains.GET("/:domain/status", h.Domains.RefreshStatus())
			domains.POST("/:domain/provision", h.Domains.ProvisionDomain())
		}

		emails := api.Group("/emails")
		{
			emails.POST("", h.Emails.Send())
		}
	}
}
