package config

import (
	internalConfig "github.com/customeros/domails/internal/config"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/tracing"
)

type Config struct {
	AppConfig          *internalConfig.AppConfig
	Logger             *logger.Config
	Tracing            *tracing.JaegerConfig
	DatabaseConfig     *internalConfig.DatabaseConfig
	ProviderConfig     *internalConfig.ProviderConfig
	VerificationConfig *internalConfig.VerificationConfig
	DNSConfig          *internalConfig.DNSConfig
	WebhookConfig      *internalConfig.WebhookConfig
	AttachmentConfig   *internalConfig.AttachmentConfig
}
