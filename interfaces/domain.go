package interfaces

import (
	"context"

	"github.com/customeros/domails/internal/models"
)

type DomainService interface {
	AddDomain(ctx context.Context, domain string) (*models.Domain, []models.DNSInstruction, error)
	GetDomain(ctx context.Context, domain string) (*models.Domain, []models.DNSInstruction, error)
	VerifyDomain(ctx context.Context, domain string) (*models.VerificationOutcome, error)
	RefreshStatus(ctx context.Context, domain string) (*models.VerificationOutcome, error)
	ProvisionDomain(ctx context.Context, domain string) (*models.ProvisioningResult, error)
	RefreshAllDomains(ctx context.Context) error
}
