package verification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/domails/internal/config"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/services/dns"
)

const testToken = "0123456789abcdef0123456789abcdef"

func testConfig() *config.VerificationConfig {
	return &config.VerificationConfig{
		VerifyHostPrefix:  "_domails-verify",
		MXSuffixes:        []string{"mailgun.org"},
		MXHosts:           []string{"mxa.mailgun.org", "mxb.mailgun.org"},
		SPFInclude:        "mailgun.org",
		DKIMSelector:      "mx",
		TrackingSubdomain: "email",
		TrackingHost:      "mailgun.org",
	}
}

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func fullyConfigured(resolver *dns.MockResolver) {
	resolver.SetTXT("_domails-verify.example.org", "domails-verification="+testToken)
	resolver.SetMX("example.org", models.MXRecord{Host: "MXA.MAILGUN.ORG", Preference: 10})
	resolver.SetTXT("example.org", "google-site-verification=xyz", "v=spf1 include:mailgun.org ~all")
	resolver.SetTXT("mx._domainkey.example.org", "k=rsa; p=MIGfMA0GCSqGSIb3DQEBAQUAA4GNADCBiQKBgQ==")
	resolver.SetCNAME("email.example.org", "mailgun.org")
}

func TestCheckDomain_AllRecordsPresent(t *testing.T) {
	resolver := dns.NewMockResolver()
	fullyConfigured(resolver)
	svc := NewVerificationService(testLogger(), resolver, testConfig())

	result := svc.CheckDomain(context.Background(), "example.org", testToken)

	assert.True(t, result.VerificationTxtFound)
	assert.True(t, result.MxValid)
	assert.True(t, result.SpfValid)
	assert.True(t, result.DkimValid)
	assert.True(t, result.TrackingCnameValid)
	assert.True(t, result.AllRecordsValid())
	assert.True(t, result.FullyValid())
	assert.Empty(t, result.LookupErrors)
	assert.Len(t, result.ApexTXT, 2)
}

func TestCheckDomain_NothingPublished(t *testing.T) {
	svc := NewVerificationService(testLogger(), dns.NewMockResolver(), testConfig())

	result := svc.CheckDomain(context.Background(), "example.org", testToken)

	assert.False(t, result.VerificationTxtFound)
	assert.False(t, result.MxValid)
	assert.False(t, result.SpfValid)
	assert.False(t, result.DkimValid)
	assert.False(t, result.TrackingCnameValid)
	assert.Empty(t, result.LookupErrors)
	assert.Equal(t, []string{"verification_txt", "mx", "spf", "dkim", "tracking_cname"}, MissingChecks(result))
}

func TestCheckDomain_LookupFailureIsFalseNotPanic(t *testing.T) {
	resolver := dns.NewMockResolver()
	fullyConfigured(resolver)
	resolver.Fail = []string{"txt _domails-verify.example.org", "mx example.org"}
	svc := NewVerificationService(testLogger(), resolver, testConfig())

	result := svc.CheckDomain(context.Background(), "example.org", testToken)

	assert.False(t, result.VerificationTxtFound)
	assert.False(t, result.MxValid)
	assert.True(t, result.SpfValid)
	assert.True(t, result.DkimValid)
	assert.Contains(t, result.LookupErrors, "verification_txt")
	assert.Contains(t, result.LookupErrors, "mx")
	assert.False(t, result.AllRecordsValid())
}

func TestCheckDomain_WrongValues(t *testing.T) {
	resolver := dns.NewMockResolver()
	resolver.SetTXT("_domails-verify.example.org", "some-other-token")
	resolver.SetMX("example.org", models.MXRecord{Host: "aspmx.l.google.com", Preference: 1})
	resolver.SetTXT("example.org", "v=spf1 include:_spf.google.com ~all")
	resolver.SetTXT("mx._domainkey.example.org", "k=rsa; p=")
	resolver.SetCNAME("email.example.org", "tracking.elsewhere.net")
	svc := NewVerificationService(testLogger(), resolver, testConfig())

	result := svc.CheckDomain(context.Background(), "example.org", testToken)

	assert.False(t, result.VerificationTxtFound)
	assert.False(t, result.MxValid)
	assert.False(t, result.SpfValid)
	assert.False(t, result.DkimValid)
	assert.False(t, result.TrackingCnameValid)
}

func TestCheckDomain_EmptyTokenNeverMatches(t *testing.T) {
	resolver := dns.NewMockResolver()
	resolver.SetTXT("_domails-verify.example.org", "anything")
	svc := NewVerificationService(testLogger(), resolver, testConfig())

	result := svc.CheckDomain(context.Background(), "example.org", "")
	assert.False(t, result.VerificationTxtFound)
}

func TestExpectedRecords(t *testing.T) {
	svc := NewVerificationService(testLogger(), dns.NewMockResolver(), testConfig())

	instructions := svc.ExpectedRecords("example.org", testToken)
	require.Len(t, instructions, 6)
	assert.Equal(t, "_domails-verify.example.org", instructions[0].Host)
	assert.Equal(t, testToken, instructions[0].Value)
	assert.Equal(t, "v=spf1 include:mailgun.org ~all", instructions[3].Value)
	assert.Equal(t, "mx._domainkey.example.org", instructions[4].Host)
	assert.Equal(t, "email.example.org", instructions[5].Host)

	result := &models.DNSCheckResult{VerificationTxtFound: true, MxValid: true}
	all, missing := MarkValidity(instructions, result)
	assert.Len(t, all, 6)
	assert.Len(t, missing, 3)
	assert.Equal(t, "spf", missing[0].Purpose)
}

func TestMatchers(t *testing.T) {
	assert.True(t, matchSPF([]string{"V=SPF1 INCLUDE:MAILGUN.ORG -all"}, "mailgun.org"))
	assert.False(t, matchSPF([]string{"include:mailgun.org"}, "mailgun.org"))
	assert.True(t, matchDKIM([]string{"v=DKIM1; k=rsa; p=AB=="}))
	assert.False(t, matchDKIM([]string{"v=DKIM1; p=AB=="}))
	assert.True(t, matchCNAME([]string{"Mailgun.org."}, "mailgun.org"))
	assert.True(t, matchMX([]models.MXRecord{{Host: "mxb.eu.mailgun.org."}}, []string{"mailgun.org"}))
}
