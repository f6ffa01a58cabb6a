package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apiErrors "github.com/customeros/domails/api/errors"
	"github.com/customeros/domails/interfaces"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
)

type AddDomainRequest struct {
	Domain string `json:"domain"`
}

type DomainResponse struct {
	Domain       *models.Domain          `json:"domain"`
	Instructions []models.DNSInstruction `json:"instructions"`
	// DNSRecords are the instructions as zone file lines, ready to paste
	DNSRecords []string `json:"dnsRecords"`
}

type VerificationResponse struct {
	Domain                *models.Domain          `json:"domain"`
	PreviousStatus        string                  `json:"previousStatus"`
	AlreadyVerified       bool                    `json:"alreadyVerified"`
	ProvisioningTriggered bool                    `json:"provisioningTriggered"`
	Check                 *models.DNSCheckResult  `json:"check,omitempty"`
	MissingRecords        []models.DNSInstruction `json:"missingRecords"`
	Instructions          []models.DNSInstruction `json:"instructions"`
}

type DomainsHandler struct {
	domainService interfaces.DomainService
}

func NewDomainsHandler(domainService interfaces.DomainService) *DomainsHandler {
	return &DomainsHandler{
		domainService: domainService,
	}
}

func newDomainResponse(domain *models.Domain, instructions []models.DNSInstruction) DomainResponse {
	records := make([]string, 0, len(instructions))
	for _, instruction := range instructions {
		records = append(records, instruction.String())
	}
	return DomainResponse{Domain: domain, Instructions: instructions, DNSRecords: records}
}

func newVerificationResponse(outcome *models.VerificationOutcome) VerificationResponse {
	missing := make([]models.DNSInstruction, 0)
	for _, instruction := range outcome.Instructions {
		if instruction.Required && !instruction.Valid {
			missing = append(missing, instruction)
		}
	}
	return VerificationResponse{
		Domain:                outcome.Domain,
		PreviousStatus:        outcome.PreviousStatus.String(),
		AlreadyVerified:       outcome.AlreadyVerified,
		ProvisioningTriggered: outcome.ProvisioningTriggered,
		Check:                 outcome.Check,
		MissingRecords:        missing,
		Instructions:          outcome.Instructions,
	}
}

// AddDomain registers a domain for the tenant and answers the records to publish
func (h *DomainsHandler) AddDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.AddDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var request AddDomainRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			apiErrors.Respond(c, span, domailsErrors.NewFieldError("body", err.Error()))
			return
		}
		if request.Domain == "" {
			apiErrors.Respond(c, span, domailsErrors.NewFieldError("domain", "domain is required"))
			return
		}

		domain, instructions, err := h.domainService.AddDomain(ctx, request.Domain)
		if err != nil {
			apiErrors.Respond(c, span, err)
			return
		}
		tracing.TagEntity(span, domain.ID)

		c.JSON(http.StatusCreated, newDomainResponse(domain, instructions))
	}
}

func (h *DomainsHandler) GetDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.GetDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		domain, instructions, err := h.domainService.GetDomain(ctx, c.Param("domain"))
		if err != nil {
			apiErrors.Respond(c, span, err)
			return
		}

		c.JSON(http.StatusOK, newDomainResponse(domain, instructions))
	}
}

// VerifyDomain answers 200 for any completed check; the domain status tells
// whether it passed and missingRecords lists what is still required.
func (h *DomainsHandler) VerifyDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.VerifyDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		outcome, err := h.domainService.VerifyDomain(ctx, c.Param("domain"))
		if err != nil {
			apiErrors.Respond(c, span, err)
			return
		}

		c.JSON(http.StatusOK, newVerificationResponse(outcome))
	}
}

func (h *DomainsHandler) RefreshStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.RefreshStatus")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		outcome, err := h.domainService.RefreshStatus(ctx, c.Param("domain"))
		if err != nil {
			apiErrors.Respond(c, span, err)
			return
		}

		c.JSON(http.StatusOK, newVerificationResponse(outcome))
	}
}

// ProvisionDomain re-runs provisioning. Step failures are reported in the
// body with 207 so callers can see which parts converged.
func (h *DomainsHandler) ProvisionDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "DomainsHandler.ProvisionDomain")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		result, err := h.domainService.ProvisionDomain(ctx, c.Param("domain"))
		if err != nil {
			apiErrors.Respond(c, span, err)
			return
		}

		if result.Failed() {
			tracing.TraceErr(span, result.Err())
			c.JSON(http.StatusMultiStatus, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
