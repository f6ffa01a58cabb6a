package domain

import (
	"time"

	"github.com/customeros/domails/internal/enum"
	"github.com/customeros/domails/internal/models"
)

// Transition is the state a domain moves to after one DNS check.
type Transition struct {
	From       enum.DomainStatus
	To         enum.DomainStatus
	VerifiedAt *time.Time
	// Regressed is set when a verified domain lost a required record.
	Regressed bool
	// FirstVerification is set when the domain enters verified and was never provisioned.
	FirstVerification bool
}

func (t Transition) Changed() bool {
	return t.From != t.To
}

// Reconcile applies a check result to a domain without side effects.
//
// The two policies intentionally differ on an invalid result. An explicit
// verify marks any domain failed, while a passive refresh only downgrades a
// verified domain and otherwise leaves the status alone.
func Reconcile(policy enum.VerificationPolicy, domain *models.Domain, result *models.DNSCheckResult, now time.Time) Transition {
	t := Transition{
		From:       domain.Status,
		To:         domain.Status,
		VerifiedAt: domain.VerifiedAt,
	}

	if result.AllRecordsValid() {
		t.To = enum.DomainStatusVerified
		if t.VerifiedAt == nil {
			verifiedAt := now
			t.VerifiedAt = &verifiedAt
		}
		t.FirstVerification = t.From != enum.DomainStatusVerified && domain.ProvisioningStartedAt == nil
		return t
	}

	switch {
	case policy == enum.VerificationExplicit:
		t.To = enum.DomainStatusFailed
		t.VerifiedAt = nil
	case domain.Status == enum.DomainStatusVerified:
		t.To = enum.DomainStatusFailed
		t.VerifiedAt = nil
	}
	t.Regressed = t.From == enum.DomainStatusVerified && t.To == enum.DomainStatusFailed
	return t
}
