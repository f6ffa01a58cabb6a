package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/domails/internal/enum"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
	"github.com/customeros/domails/internal/utils"
)

// VerificationUpdate is the persisted part of one verification pass.
type VerificationUpdate struct {
	Status         enum.DomainStatus
	VerifiedAt     *time.Time
	CheckedAt      time.Time
	MissingRecords []string
}

type DomainRepository interface {
	CreateDomain(ctx context.Context, domain *models.Domain) error
	GetDomain(ctx context.Context, tenant, domain string) (*models.Domain, error)
	GetDomainCrossTenant(ctx context.Context, domain string) (*models.Domain, error)
	ListDomainsForRefresh(ctx context.Context, limit int) ([]models.Domain, error)
	UpdateVerificationStatus(ctx context.Context, id string, update VerificationUpdate) error
	ClaimProvisioning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	SaveProvisioning(ctx context.Context, id string, record models.ProvisioningRecord, provisionedAt *time.Time) error
}

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &domainRepository{
		db: db,
	}
}

func (r *domainRepository) CreateDomain(ctx context.Context, domain *models.Domain) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.CreateDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, domain.Tenant)
	tracing.TagDomain(span, domain.Domain)

	now := utils.Now()
	domain.CreatedAt = now
	domain.UpdatedAt = now
	if domain.Status == "" {
		domain.Status = enum.DomainStatusPending
	}
	if domain.MissingRecords == nil {
		domain.MissingRecords = pq.StringArray{}
	}

	err := r.db.WithContext(ctx).Create(domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domailsErrors.ErrDomainAlreadyRegistered
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	tracing.TagEntity(span, domain.ID)
	return nil
}

func (r *domainRepository) GetDomain(ctx context.Context, tenant, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("domain", domain)

	var result models.Domain
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND domain = ?", tenant, domain).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.LogFields(tracingLog.Bool("response.exists", false))
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	span.LogFields(tracingLog.Bool("response.exists", true))
	return &result, nil
}

func (r *domainRepository) GetDomainCrossTenant(ctx context.Context, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDomainCrossTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("domain", domain)

	var result models.Domain
	err := r.db.WithContext(ctx).
		Where("domain = ?", domain).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &result, nil
}

// ListDomainsForRefresh returns pending and verified domains, least recently
// checked first. Failed domains only move again on an explicit verify.
func (r *domainRepository) ListDomainsForRefresh(ctx context.Context, limit int) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.ListDomainsForRefresh")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("limit", limit)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{enum.DomainStatusPending.String(), enum.DomainStatusVerified.String()}).
		Order("last_checked_at ASC NULLS FIRST").
		Limit(limit).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	span.LogFields(tracingLog.Int("response.count", len(domains)))
	return domains, nil
}

func (r *domainRepository) UpdateVerificationStatus(ctx context.Context, id string, update VerificationUpdate) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.UpdateVerificationStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)
	span.LogKV("status", update.Status)

	missing := pq.StringArray(update.MissingRecords)
	if missing == nil {
		missing = pq.StringArray{}
	}

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"status":          update.Status,
			"verified_at":     update.VerifiedAt,
			"last_checked_at": update.CheckedAt,
			"missing_records": missing,
			"updated_at":      utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

// ClaimProvisioning marks provisioning as started unless it already was.
// Exactly one caller ever gets true for a given domain.
func (r *domainRepository) ClaimProvisioning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.ClaimProvisioning")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ? AND provisioning_started_at IS NULL", id).
		UpdateColumns(map[string]interface{}{
			"provisioning_started_at": startedAt,
			"updated_at":              utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	claimed := result.RowsAffected == 1
	span.LogFields(tracingLog.Bool("response.claimed", claimed))
	return claimed, nil
}

func (r *domainRepository) SaveProvisioning(ctx context.Context, id string, record models.ProvisioningRecord, provisionedAt *time.Time) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.SaveProvisioning")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	subscriptions := make(models.StringMap, len(record.WebhookSubscriptionIDs))
	for event, subscriptionID := range record.WebhookSubscriptionIDs {
		subscriptions[event.String()] = subscriptionID
	}

	// stored subscriptions and route survive a run that could not confirm them
	columns := map[string]interface{}{
		"provider_domain_exists": record.ProviderDomainExists,
		"webhook_subscriptions":  gorm.Expr("COALESCE(webhook_subscriptions, '{}'::jsonb) || ?::jsonb", subscriptions),
		"updated_at":             utils.Now(),
	}
	if record.InboundRouteID != "" {
		columns["provider_route_id"] = record.InboundRouteID
	}
	if provisionedAt != nil {
		columns["provisioned_at"] = provisionedAt
	}

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("id = ?", id).
		UpdateColumns(columns).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}
