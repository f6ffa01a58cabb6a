package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	internalConfig "github.com/customeros/domails/internal/config"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:          &internalConfig.AppConfig{},
		Logger:             &logger.Config{},
		Tracing:            &tracing.JaegerConfig{},
		DatabaseConfig:     &internalConfig.DatabaseConfig{},
		ProviderConfig:     &internalConfig.ProviderConfig{},
		VerificationConfig: &internalConfig.VerificationConfig{},
		DNSConfig:          &internalConfig.DNSConfig{},
		WebhookConfig:      &internalConfig.WebhookConfig{},
		AttachmentConfig:   &internalConfig.AttachmentConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		return nil, errors.Wrap(err, "error loading domails config")
	}

	return config, nil
}
