package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/customeros/domails/internal/enum"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
)

func setupRepository(t *testing.T) (DomainRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return NewDomainRepository(db), mock
}

var domainColumns = []string{"id", "tenant", "domain", "verification_token", "status", "verified_at", "missing_records", "provider_domain_exists"}

func TestCreateDomain(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "domains"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	domain := &models.Domain{ID: "dom_1", Tenant: "acme", Domain: "example.org", VerificationToken: "abc"}
	require.NoError(t, repo.CreateDomain(context.Background(), domain))
	assert.Equal(t, enum.DomainStatusPending, domain.Status)
	assert.False(t, domain.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDomain_Duplicate(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "domains"`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.CreateDomain(context.Background(), &models.Domain{ID: "dom_2", Tenant: "acme", Domain: "example.org", VerificationToken: "def"})
	assert.ErrorIs(t, err, domailsErrors.ErrDomainAlreadyRegistered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDomain(t *testing.T) {
	repo, mock := setupRepository(t)

	rows := sqlmock.NewRows(domainColumns).
		AddRow("dom_1", "acme", "example.org", "abc", "verified", time.Unix(1700000000, 0), "{mx,spf}", true)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "domains" WHERE tenant = $1 AND domain = $2`)).
		WillReturnRows(rows)

	domain, err := repo.GetDomain(context.Background(), "acme", "example.org")
	require.NoError(t, err)
	require.NotNil(t, domain)
	assert.Equal(t, "dom_1", domain.ID)
	assert.True(t, domain.IsVerified())
	assert.Equal(t, pq.StringArray{"mx", "spf"}, domain.MissingRecords)
	assert.True(t, domain.ProviderDomainExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDomain_NotFound(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "domains" WHERE tenant = $1 AND domain = $2`)).
		WillReturnRows(sqlmock.NewRows(domainColumns))

	domain, err := repo.GetDomain(context.Background(), "acme", "missing.org")
	require.NoError(t, err)
	assert.Nil(t, domain)
}

func TestGetDomainCrossTenant(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "domains" WHERE domain = $1`)).
		WillReturnRows(sqlmock.NewRows(domainColumns).AddRow("dom_1", "other", "example.org", "abc", "pending", nil, "{}", false))

	domain, err := repo.GetDomainCrossTenant(context.Background(), "example.org")
	require.NoError(t, err)
	require.NotNil(t, domain)
	assert.Equal(t, "other", domain.Tenant)
	assert.Nil(t, domain.VerifiedAt)
}

func TestListDomainsForRefresh(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "domains" WHERE status IN ($1,$2) ORDER BY last_checked_at ASC NULLS FIRST LIMIT`)).
		WillReturnRows(sqlmock.NewRows(domainColumns).
			AddRow("dom_1", "acme", "a.org", "t1", "pending", nil, "{}", false).
			AddRow("dom_2", "acme", "b.org", "t2", "verified", time.Now(), "{}", true))

	domains, err := repo.ListDomainsForRefresh(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, domains, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVerificationStatus(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "domains" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateVerificationStatus(context.Background(), "dom_1", VerificationUpdate{
		Status:         enum.DomainStatusFailed,
		CheckedAt:      time.Now(),
		MissingRecords: []string{"spf"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimProvisioning(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "domains" SET .* WHERE id = \$\d+ AND provisioning_started_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "domains" SET .* WHERE id = \$\d+ AND provisioning_started_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	claimed, err := repo.ClaimProvisioning(context.Background(), "dom_1", time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimProvisioning(context.Background(), "dom_1", time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProvisioning(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "domains" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now()
	err := repo.SaveProvisioning(context.Background(), "dom_1", models.ProvisioningRecord{
		ProviderDomainExists:   true,
		WebhookSubscriptionIDs: map[enum.WebhookEvent]string{enum.WebhookDelivered: "delivered"},
		InboundRouteID:         "route-1",
	}, &now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProvisioning_KeepsStoredRouteAndMergesSubscriptions(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "domains" SET "provider_domain_exists"=\$1,"updated_at"=\$2,"webhook_subscriptions"=COALESCE\(webhook_subscriptions, '\{\}'::jsonb\) \|\| \$3::jsonb WHERE id = \$4`).
		WithArgs(true, sqlmock.AnyArg(), sqlmock.AnyArg(), "dom_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveProvisioning(context.Background(), "dom_1", models.ProvisioningRecord{
		ProviderDomainExists:   true,
		WebhookSubscriptionIDs: map[enum.WebhookEvent]string{enum.WebhookDelivered: "delivered"},
	}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
