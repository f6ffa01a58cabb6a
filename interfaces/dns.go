package interfaces

import (
	"context"

	"github.com/customeros/domails/internal/models"
)

// DNSInspector resolves raw records. Absent records are an empty result,
// never an error.
type DNSInspector interface {
	ResolveMX(ctx context.Context, name string) ([]models.MXRecord, error)
	ResolveTXT(ctx context.Context, name string) ([]string, error)
	ResolveCNAME(ctx context.Context, name string) ([]string, error)
}

type VerificationService interface {
	CheckDomain(ctx context.Context, domain, token string) *models.DNSCheckResult
	ExpectedRecords(domain, token string) []models.DNSInstruction
}
