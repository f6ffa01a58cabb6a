package verification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/config"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
	"github.com/customeros/domails/internal/utils"
)

const (
	checkVerificationTXT = "verification_txt"
	checkMX              = "mx"
	checkSPF             = "spf"
	checkDKIM            = "dkim"
	checkTrackingCNAME   = "tracking_cname"
)

type verificationService struct {
	log       logger.Logger
	inspector interfaces.DNSInspector
	cfg       *config.VerificationConfig
}

func NewVerificationService(log logger.Logger, inspector interfaces.DNSInspector, cfg *config.VerificationConfig) interfaces.VerificationService {
	return &verificationService{
		log:       log,
		inspector: inspector,
		cfg:       cfg,
	}
}

func (s *verificationService) verificationHost(domain string) string {
	return s.cfg.VerifyHostPrefix + "." + domain
}

func (s *verificationService) dkimHost(domain string) string {
	return s.cfg.DKIMSelector + "._domainkey." + domain
}

func (s *verificationService) trackingHost(domain string) string {
	return s.cfg.TrackingSubdomain + "." + domain
}

// CheckDomain runs the five record checks concurrently. Lookup failures mark
// the affected check invalid and are reported in LookupErrors only.
func (s *verificationService) CheckDomain(ctx context.Context, domain, token string) *models.DNSCheckResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "VerificationService.CheckDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDomain(span, domain)

	result := &models.DNSCheckResult{
		Domain:          domain,
		CheckedAt:       utils.Now(),
		VerificationTXT: []string{},
		MX:              []models.MXRecord{},
		ApexTXT:         []string{},
		DKIM:            []string{},
		TrackingCNAME:   []string{},
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = make(map[string]string)
	)
	recordFailure := func(check string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures[check] = err.Error()
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		records, err := s.inspector.ResolveTXT(ctx, s.verificationHost(domain))
		if err != nil {
			recordFailure(checkVerificationTXT, err)
			return
		}
		result.VerificationTXT = records
		result.VerificationTxtFound = matchVerificationToken(records, token)
	}()
	go func() {
		defer wg.Done()
		records, err := s.inspector.ResolveMX(ctx, domain)
		if err != nil {
			recordFailure(checkMX, err)
			return
		}
		result.MX = records
		result.MxValid = matchMX(records, s.cfg.MXSuffixes)
	}()
	go func() {
		defer wg.Done()
		records, err := s.inspector.ResolveTXT(ctx, domain)
		if err != nil {
			recordFailure(checkSPF, err)
			return
		}
		result.ApexTXT = records
		result.SpfValid = matchSPF(records, s.cfg.SPFInclude)
	}()
	go func() {
		defer wg.Done()
		records, err := s.inspector.ResolveTXT(ctx, s.dkimHost(domain))
		if err != nil {
			recordFailure(checkDKIM, err)
			return
		}
		result.DKIM = records
		result.DkimValid = matchDKIM(records)
	}()
	// tracking CNAME runs on this goroutine
	records, err := s.inspector.ResolveCNAME(ctx, s.trackingHost(domain))
	if err != nil {
		recordFailure(checkTrackingCNAME, err)
	} else {
		result.TrackingCNAME = records
		result.TrackingCnameValid = matchCNAME(records, s.cfg.TrackingHost)
	}
	wg.Wait()

	if len(failures) > 0 {
		result.LookupErrors = failures
		for check, msg := range failures {
			s.log.Warnf("DNS lookup for %s check of %s failed: %s", check, domain, msg)
		}
	}

	span.LogFields(
		tracingLog.Bool("result.verificationTxtFound", result.VerificationTxtFound),
		tracingLog.Bool("result.mxValid", result.MxValid),
		tracingLog.Bool("result.spfValid", result.SpfValid),
		tracingLog.Bool("result.dkimValid", result.DkimValid),
		tracingLog.Bool("result.trackingCnameValid", result.TrackingCnameValid),
	)
	return result
}

func (s *verificationService) ExpectedRecords(domain, token string) []models.DNSInstruction {
	instructions := []models.DNSInstruction{
		{
			Purpose:  checkVerificationTXT,
			Type:     "TXT",
			Host:     s.verificationHost(domain),
			Value:    token,
			Required: true,
		},
	}
	for i, host := range s.cfg.MXHosts {
		instructions = append(instructions, models.DNSInstruction{
			Purpose:  checkMX,
			Type:     "MX",
			Host:     domain,
			Value:    host,
			Priority: 10 * (i + 1),
			Required: true,
		})
	}
	instructions = append(instructions,
		models.DNSInstruction{
			Purpose:  checkSPF,
			Type:     "TXT",
			Host:     domain,
			Value:    fmt.Sprintf("v=spf1 include:%s ~all", s.cfg.SPFInclude),
			Required: true,
		},
		models.DNSInstruction{
			Purpose: checkDKIM,
			Type:    "TXT",
			Host:    s.dkimHost(domain),
			Value:   "k=rsa; p=<public key from provider>",
		},
		models.DNSInstruction{
			Purpose: checkTrackingCNAME,
			Type:    "CNAME",
			Host:    s.trackingHost(domain),
			Value:   s.cfg.TrackingHost,
		},
	)
	return instructions
}

// MarkValidity copies check results onto instructions and returns the ones still missing.
func MarkValidity(instructions []models.DNSInstruction, result *models.DNSCheckResult) (all, missing []models.DNSInstruction) {
	valid := map[string]bool{
		checkVerificationTXT: result.VerificationTxtFound,
		checkMX:              result.MxValid,
		checkSPF:             result.SpfValid,
		checkDKIM:            result.DkimValid,
		checkTrackingCNAME:   result.TrackingCnameValid,
	}
	all = make([]models.DNSInstruction, 0, len(instructions))
	missing = make([]models.DNSInstruction, 0)
	for _, instruction := range instructions {
		instruction.Valid = valid[instruction.Purpose]
		all = append(all, instruction)
		if !instruction.Valid {
			missing = append(missing, instruction)
		}
	}
	return all, missing
}

// MissingChecks names every failed check, used as a persisted diagnostic.
func MissingChecks(result *models.DNSCheckResult) []string {
	missing := make([]string, 0, 5)
	if !result.VerificationTxtFound {
		missing = append(missing, checkVerificationTXT)
	}
	if !result.MxValid {
		missing = append(missing, checkMX)
	}
	if !result.SpfValid {
		missing = append(missing, checkSPF)
	}
	if !result.DkimValid {
		missing = append(missing, checkDKIM)
	}
	if !result.TrackingCnameValid {
		missing = append(missing, checkTrackingCNAME)
	}
	return missing
}

func matchVerificationToken(records []string, token string) bool {
	if token == "" {
		return false
	}
	for _, record := range records {
		if strings.Contains(record, token) {
			return true
		}
	}
	return false
}

func matchMX(records []models.MXRecord, suffixes []string) bool {
	for _, record := range records {
		host := strings.ToLower(strings.TrimSuffix(record.Host, "."))
		for _, suffix := range suffixes {
			suffix = strings.ToLower(strings.TrimSpace(suffix))
			if suffix != "" && strings.Contains(host, suffix) {
				return true
			}
		}
	}
	return false
}

func matchSPF(records []string, include string) bool {
	if include == "" {
		return false
	}
	mechanism := "include:" + strings.ToLower(include)
	for _, record := range records {
		lower := strings.ToLower(record)
		if strings.Contains(lower, "v=spf1") && strings.Contains(lower, mechanism) {
			return true
		}
	}
	return false
}

func matchDKIM(records []string) bool {
	for _, record := range records {
		tags := parseTags(record)
		if strings.EqualFold(tags["k"], "rsa") && tags["p"] != "" {
			return true
		}
	}
	return false
}

func matchCNAME(records []string, trackingHost string) bool {
	expected := strings.ToLower(strings.TrimSuffix(trackingHost, "."))
	if expected == "" {
		return false
	}
	for _, record := range records {
		if strings.ToLower(strings.TrimSuffix(record, ".")) == expected {
			return true
		}
	}
	return false
}

// parseTags splits a "k=v; k=v" record into a map with trimmed keys and values.
func parseTags(record string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(record, ";") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		tags[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return tags
}
