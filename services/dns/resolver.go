package dns

import (
	"context"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/config"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
	"github.com/customeros/domails/internal/tracing"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 2
	DefaultBudget  = 10 * time.Second

	ednsBufferSize = 4096
)

var (
	errServFail = errors.New("dns: server failure")
	errRefused  = errors.New("dns: query refused")
)

// exchanger is satisfied by *mdns.Client.
type exchanger interface {
	ExchangeContext(ctx context.Context, m *mdns.Msg, address string) (*mdns.Msg, time.Duration, error)
}

type resolver struct {
	nameservers []string
	retries     int
	timeout     time.Duration
	budget      time.Duration
	client      exchanger
	tcpClient   exchanger
}

func NewResolver(cfg *config.DNSConfig) interfaces.DNSInspector {
	r := &resolver{
		timeout: DefaultTimeout,
		retries: DefaultRetries,
		budget:  DefaultBudget,
	}
	if cfg != nil {
		if cfg.Timeout > 0 {
			r.timeout = cfg.Timeout
		}
		if cfg.Budget > 0 {
			r.budget = cfg.Budget
		}
		if cfg.Retries > 0 {
			r.retries = cfg.Retries
		}
		r.nameservers = normalizeNameservers(cfg.Nameservers)
	}
	if len(r.nameservers) == 0 {
		r.nameservers = systemNameservers()
	}
	r.client = &mdns.Client{Timeout: r.timeout, UDPSize: ednsBufferSize}
	r.tcpClient = &mdns.Client{Net: "tcp", Timeout: r.timeout}
	return r
}

func systemNameservers() []string {
	clientConfig, err := mdns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(clientConfig.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	return normalizeNameservers(clientConfig.Servers)
}

func normalizeNameservers(servers []string) []string {
	result := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
		}
		result = append(result, s)
	}
	return result
}

// query returns the answer section. NXDOMAIN, empty answers and timeouts from
// every server yield an empty slice and no error. The whole lookup, retries
// included, is bounded by the resolver budget.
func (r *resolver) query(ctx context.Context, name string, qtype uint16) ([]mdns.RR, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	m.RecursionDesired = true
	m.SetEdns0(ednsBufferSize, false)

	lookupCtx := ctx
	if r.budget > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, r.budget)
		defer cancel()
	}

	var lastErr error
	timedOut := false

attempts:
	for attempt := 0; attempt <= r.retries; attempt++ {
		for _, server := range r.nameservers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if lookupCtx.Err() != nil {
				timedOut = true
				break attempts
			}

			resp, err := r.exchange(lookupCtx, m, server)
			if err != nil {
				if isTimeout(err) {
					timedOut = true
				} else {
					lastErr = err
				}
				continue
			}

			switch resp.Rcode {
			case mdns.RcodeSuccess:
				return resp.Answer, nil
			case mdns.RcodeNameError:
				return nil, nil
			case mdns.RcodeServerFailure:
				lastErr = errServFail
			case mdns.RcodeRefused:
				lastErr = errRefused
			default:
				lastErr = errors.Errorf("dns: unexpected rcode %s", mdns.RcodeToString[resp.Rcode])
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lastErr == nil && timedOut {
		return nil, nil
	}
	if lastErr == nil {
		lastErr = errServFail
	}
	return nil, &domailsErrors.DNSLookupError{Name: name, Type: mdns.TypeToString[qtype], Cause: lastErr}
}

// exchange asks one server, repeating the question over TCP when the UDP
// answer comes back truncated.
func (r *resolver) exchange(ctx context.Context, m *mdns.Msg, server string) (*mdns.Msg, error) {
	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, _, err := r.client.ExchangeContext(queryCtx, m, server)
	if err != nil {
		return nil, err
	}
	if !resp.Truncated || r.tcpClient == nil {
		return resp, nil
	}

	resp, _, err = r.tcpClient.ExchangeContext(queryCtx, m, server)
	if err != nil {
		return nil, errors.Wrap(err, "dns: tcp retry after truncated answer")
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func (r *resolver) ResolveMX(ctx context.Context, name string) ([]models.MXRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DNSResolver.ResolveMX")
	defer span.Finish()
	tracing.TagComponentDNS(span)
	span.LogKV("name", name)

	answers, err := r.query(ctx, name, mdns.TypeMX)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	records := make([]models.MXRecord, 0, len(answers))
	for _, rr := range answers {
		if mx, ok := rr.(*mdns.MX); ok {
			records = append(records, models.MXRecord{
				Host:       canonicalHost(mx.Mx),
				Preference: mx.Preference,
			})
		}
	}
	span.LogKV("records", len(records))
	return records, nil
}

func (r *resolver) ResolveTXT(ctx context.Context, name string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DNSResolver.ResolveTXT")
	defer span.Finish()
	tracing.TagComponentDNS(span)
	span.LogKV("name", name)

	answers, err := r.query(ctx, name, mdns.TypeTXT)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	records := make([]string, 0, len(answers))
	for _, rr := range answers {
		if txt, ok := rr.(*mdns.TXT); ok {
			// long TXT values arrive split into 255 byte strings
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	span.LogKV("records", len(records))
	return records, nil
}

func (r *resolver) ResolveCNAME(ctx context.Context, name string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DNSResolver.ResolveCNAME")
	defer span.Finish()
	tracing.TagComponentDNS(span)
	span.LogKV("name", name)

	answers, err := r.query(ctx, name, mdns.TypeCNAME)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	records := make([]string, 0, len(answers))
	for _, rr := range answers {
		if cname, ok := rr.(*mdns.CNAME); ok {
			records = append(records, canonicalHost(cname.Target))
		}
	}
	span.LogKV("records", len(records))
	return records, nil
}

func canonicalHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
