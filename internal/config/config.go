package config

import (
	"strings"
	"time"

	"github.com/customeros/domails/internal/enum"
)

type AppConfig struct {
	APIPort               string `env:"PORT,required" envDefault:"12222"`
	APIKey                string `env:"API_KEY,required"`
	RabbitMQURL           string `env:"RABBITMQ_URL"`
	RedisURL              string `env:"REDIS_URL"`
	PublicCallbackBaseURL string `env:"PUBLIC_CALLBACK_BASE_URL,required"`
}

// WebhookURL is where the provider posts events and forwards inbound mail.
func (c *AppConfig) WebhookURL() string {
	return strings.TrimSuffix(c.PublicCallbackBaseURL, "/") + "/webhooks/provider"
}

type DatabaseConfig struct {
	Host            string `env:"DOMAILS_POSTGRES_HOST,required"`
	Port            string `env:"DOMAILS_POSTGRES_PORT,required"`
	User            string `env:"DOMAILS_POSTGRES_USER,required"`
	DBName          string `env:"DOMAILS_POSTGRES_DB_NAME,required"`
	Password        string `env:"DOMAILS_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"DOMAILS_POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"DOMAILS_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"DOMAILS_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"DOMAILS_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"DOMAILS_POSTGRES_SSL_MODE" envDefault:"require"`
}

type ProviderConfig struct {
	ApiKey            string              `env:"PROVIDER_API_KEY"`
	Region            enum.ProviderRegion `env:"PROVIDER_REGION" envDefault:"us"`
	BaseURL           string              `env:"PROVIDER_BASE_URL"`
	Timeout           time.Duration       `env:"PROVIDER_TIMEOUT" envDefault:"15s"`
	MaxRetries        int                 `env:"PROVIDER_MAX_RETRIES" envDefault:"3"`
	ProvisionTimeout  time.Duration       `env:"PROVIDER_PROVISION_TIMEOUT" envDefault:"2m"`
	WebhookSigningKey string              `env:"PROVIDER_WEBHOOK_SIGNING_KEY"`
}

// ResolvedBaseURL prefers an explicit base URL over the regional default.
func (c *ProviderConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return c.Region.BaseURL()
}

// VerificationConfig holds the DNS values a domain must publish for this provider.
type VerificationConfig struct {
	VerifyHostPrefix  string   `env:"VERIFY_HOST_PREFIX" envDefault:"_domails-verify"`
	MXSuffixes        []string `env:"PROVIDER_MX_SUFFIXES" envDefault:"mailgun.org"`
	MXHosts           []string `env:"PROVIDER_MX_HOSTS" envDefault:"mxa.mailgun.org,mxb.mailgun.org"`
	SPFInclude        string   `env:"PROVIDER_SPF_INCLUDE" envDefault:"mailgun.org"`
	DKIMSelector      string   `env:"PROVIDER_DKIM_SELECTOR" envDefault:"mx"`
	TrackingSubdomain string   `env:"PROVIDER_TRACKING_SUBDOMAIN" envDefault:"email"`
	TrackingHost      string   `env:"PROVIDER_TRACKING_HOST" envDefault:"mailgun.org"`
}

type DNSConfig struct {
	Nameservers []string      `env:"DNS_NAMESERVERS"`
	Timeout     time.Duration `env:"DNS_TIMEOUT" envDefault:"5s"`
	Retries     int           `env:"DNS_RETRIES" envDefault:"2"`
	Budget      time.Duration `env:"DNS_LOOKUP_BUDGET" envDefault:"10s"`
}

type WebhookConfig struct {
	MaxAge    time.Duration `env:"WEBHOOK_MAX_AGE" envDefault:"15m"`
	ReplayTTL time.Duration `env:"WEBHOOK_REPLAY_TTL" envDefault:"30m"`
}

type AttachmentConfig struct {
	MaxBytes     int64    `env:"ATTACHMENT_MAX_BYTES" envDefault:"26214400"`
	AllowedTypes []string `env:"ATTACHMENT_ALLOWED_TYPES"`
}
