package enum

type DomainStatus string

const (
	DomainStatusPending  DomainStatus = "pending"
	DomainStatusVerified DomainStatus = "verified"
	DomainStatusFailed   DomainStatus = "failed"
)

func (s DomainStatus) String() string {
	return string(s)
}

// VerificationPolicy selects how a DNS check result moves a domain between states.
type VerificationPolicy string

const (
	// VerificationExplicit is a user-initiated verify: invalid records mark the domain failed.
	VerificationExplicit VerificationPolicy = "explicit"
	// VerificationPassive is a status refresh: only a verified domain can be downgraded.
	VerificationPassive VerificationPolicy = "passive"
)

func (p VerificationPolicy) String() string {
	return string(p)
}

// DomainEvent is published whenever a domain changes in a way downstream consumers care about.
type DomainEvent string

const (
	DomainEventAdded       DomainEvent = "domain.added"
	DomainEventVerified    DomainEvent = "domain.verified"
	DomainEventFailed      DomainEvent = "domain.failed"
	DomainEventProvisioned DomainEvent = "domain.provisioned"
)

func (e DomainEvent) String() string {
	return string(e)
}
