package services

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/customeros/domails/config"
	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/locker"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/repository"
	"github.com/customeros/domails/services/dns"
	"github.com/customeros/domails/services/domain"
	"github.com/customeros/domails/services/events"
	"github.com/customeros/domails/services/inbound"
	"github.com/customeros/domails/services/outbound"
	"github.com/customeros/domails/services/provider"
	"github.com/customeros/domails/services/provisioning"
	"github.com/customeros/domails/services/verification"
	"github.com/customeros/domails/services/webhook"
)

const replayCacheCleanupInterval = 5 * time.Minute

type Services struct {
	EventsService       *events.EventsService
	ProviderClient      interfaces.ProviderClient
	VerificationService interfaces.VerificationService
	ProvisioningService interfaces.ProvisioningService
	DomainService       domain.Service
	WebhookValidator    interfaces.WebhookValidator
	InboundNormalizer   interfaces.InboundNormalizer
	EmailService        interfaces.EmailService
}

// InitServices wires the engine. redisClient may be nil, in which case
// provisioning is only deduplicated in-process and webhook replay protection
// is per replica.
func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, redisClient redis.UniversalClient) (*Services, error) {
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig())
	if err != nil {
		return nil, err
	}

	var (
		domainLocker interfaces.Locker
		replayCache  webhook.ReplayCache
	)
	if redisClient != nil {
		domainLocker = locker.NewRedisLocker(redisClient)
		replayCache = webhook.NewRedisReplayCache(redisClient)
	} else {
		replayCache = webhook.NewMemoryReplayCache(replayCacheCleanupInterval)
	}

	providerClient := provider.NewProviderClient(cfg.ProviderConfig, log)
	verificationService := verification.NewVerificationService(log, dns.NewResolver(cfg.DNSConfig), cfg.VerificationConfig)
	provisioningService := provisioning.NewProvisioningService(log, providerClient, domainLocker, cfg.ProviderConfig.ProvisionTimeout)

	domainService := domain.NewDomainService(
		log,
		repos.DomainRepository,
		verificationService,
		provisioningService,
		cfg.AppConfig.WebhookURL(),
		domain.WithEventPublisher(eventsService.Publisher),
		domain.WithProvisionTimeout(cfg.ProviderConfig.ProvisionTimeout),
	)

	return &Services{
		EventsService:       eventsService,
		ProviderClient:      providerClient,
		VerificationService: verificationService,
		ProvisioningService: provisioningService,
		DomainService:       domainService,
		WebhookValidator:    webhook.NewValidator(log, cfg.ProviderConfig.WebhookSigningKey, cfg.WebhookConfig, replayCache),
		InboundNormalizer:   inbound.NewNormalizer(log),
		EmailService:        outbound.NewEmailService(log, outbound.NewValidator(cfg.AttachmentConfig), providerClient, repos.DomainRepository),
	}, nil
}
