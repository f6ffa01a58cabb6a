package outbound

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/domails/interfaces"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
	"github.com/customeros/domails/internal/utils"
)

// DomainLookup resolves the sending domain for the current tenant.
type DomainLookup interface {
	GetDomain(ctx context.Context, tenant, domain string) (*models.Domain, error)
}

type emailService struct {
	log       logger.Logger
	validator interfaces.OutboundValidator
	provider  interfaces.ProviderClient
	domains   DomainLookup
}

func NewEmailService(log logger.Logger, validator interfaces.OutboundValidator, provider interfaces.ProviderClient, domains DomainLookup) interfaces.EmailService {
	return &emailService{
		log:       log,
		validator: validator,
		provider:  provider,
		domains:   domains,
	}
}

// Send validates the request and submits it through the sender's domain,
// which must belong to the tenant and be verified.
func (s *emailService) Send(ctx context.Context, request *models.OutboundSendRequest) (*models.SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EmailService.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.validator.Validate(request); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	from, _ := utils.CleanEmailAddress(request.From)
	domain, err := utils.CanonicalDomain(utils.DomainFromAddress(from))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, domailsErrors.NewFieldError("from", err.Error())
	}
	tracing.TagDomain(span, domain)

	record, err := s.domains.GetDomain(ctx, utils.GetTenantFromContext(ctx), domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "loading sending domain")
	}
	if record == nil {
		return nil, domailsErrors.ErrDomainNotFound
	}
	if !record.IsVerified() {
		return nil, domailsErrors.ErrDomainNotVerified
	}

	result, err := s.provider.SendMessage(ctx, domain, request)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Sending from %s failed: %v", domain, err)
		return nil, err
	}
	span.LogKV("providerMessageId", result.ProviderMessageID)
	return result, nil
}
