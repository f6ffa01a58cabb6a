package dns

import (
	"context"
	"net"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/models"
)

type fakeExchanger struct {
	handler func(m *mdns.Msg, server string) (*mdns.Msg, error)
	calls   int
}

func (f *fakeExchanger) ExchangeContext(_ context.Context, m *mdns.Msg, server string) (*mdns.Msg, time.Duration, error) {
	f.calls++
	resp, err := f.handler(m, server)
	return resp, time.Millisecond, err
}

func reply(m *mdns.Msg, rcode int, answers ...string) *mdns.Msg {
	resp := new(mdns.Msg)
	resp.SetRcode(m, rcode)
	for _, a := range answers {
		rr, err := mdns.NewRR(a)
		if err != nil {
			panic(err)
		}
		resp.Answer = append(resp.Answer, rr)
	}
	return resp
}

func newTestResolver(handler func(m *mdns.Msg, server string) (*mdns.Msg, error)) (*resolver, *fakeExchanger) {
	fake := &fakeExchanger{handler: handler}
	return &resolver{
		nameservers: []string{"10.0.0.1:53", "10.0.0.2:53"},
		retries:     1,
		timeout:     time.Second,
		client:      fake,
	}, fake
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestResolver_ResolveMX(t *testing.T) {
	r, _ := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		assert.Equal(t, "example.org.", m.Question[0].Name)
		assert.Equal(t, mdns.TypeMX, m.Question[0].Qtype)
		return reply(m, mdns.RcodeSuccess,
			"example.org. 300 IN MX 10 MXA.Mailgun.org.",
			"example.org. 300 IN MX 20 mxb.mailgun.org.",
		), nil
	})

	records, err := r.ResolveMX(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Equal(t, []models.MXRecord{
		{Host: "mxa.mailgun.org", Preference: 10},
		{Host: "mxb.mailgun.org", Preference: 20},
	}, records)
}

func TestResolver_ResolveTXT_JoinsStrings(t *testing.T) {
	r, _ := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return reply(m, mdns.RcodeSuccess,
			`example.org. 300 IN TXT "v=spf1 " "include:mailgun.org ~all"`,
		), nil
	})

	records, err := r.ResolveTXT(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"v=spf1 include:mailgun.org ~all"}, records)
}

func TestResolver_ResolveCNAME(t *testing.T) {
	r, _ := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return reply(m, mdns.RcodeSuccess, "email.example.org. 300 IN CNAME Mailgun.org."), nil
	})

	records, err := r.ResolveCNAME(context.Background(), "email.example.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"mailgun.org"}, records)
}

func TestResolver_NXDomainIsEmpty(t *testing.T) {
	r, fake := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return reply(m, mdns.RcodeNameError), nil
	})

	records, err := r.ResolveTXT(context.Background(), "missing.example.org")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, fake.calls)
}

func TestResolver_NoAnswerIsEmpty(t *testing.T) {
	r, _ := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return reply(m, mdns.RcodeSuccess), nil
	})

	records, err := r.ResolveMX(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResolver_TimeoutIsEmpty(t *testing.T) {
	r, fake := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return nil, timeoutErr{}
	})

	records, err := r.ResolveTXT(context.Background(), "slow.example.org")
	require.NoError(t, err)
	assert.Empty(t, records)
	// two servers, one retry
	assert.Equal(t, 4, fake.calls)
}

func TestResolver_ServFailEverywhereIsLookupError(t *testing.T) {
	r, _ := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return reply(m, mdns.RcodeServerFailure), nil
	})

	_, err := r.ResolveTXT(context.Background(), "broken.example.org")
	var lookupErr *domailsErrors.DNSLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "TXT", lookupErr.Type)
}

func TestResolver_FallsBackToNextServer(t *testing.T) {
	r, _ := newTestResolver(func(m *mdns.Msg, server string) (*mdns.Msg, error) {
		if server == "10.0.0.1:53" {
			return reply(m, mdns.RcodeRefused), nil
		}
		return reply(m, mdns.RcodeSuccess, `example.org. 300 IN TXT "hello"`), nil
	})

	records, err := r.ResolveTXT(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, records)
}

func TestResolver_CancelledContext(t *testing.T) {
	r, fake := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return reply(m, mdns.RcodeSuccess), nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ResolveTXT(ctx, "example.org")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fake.calls)
}

func TestResolver_TruncatedAnswerRetriedOverTCP(t *testing.T) {
	apex := []string{
		`example.org. 300 IN TXT "google-site-verification=aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"`,
		`example.org. 300 IN TXT "MS=ms12345678"`,
		`example.org. 300 IN TXT "facebook-domain-verification=bbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"`,
		`example.org. 300 IN TXT "atlassian-domain-verification=cccccccccccccccccccccccccccccccccc"`,
		`example.org. 300 IN TXT "v=spf1 include:mailgun.org ~all"`,
	}
	r, udp := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		require.NotNil(t, m.IsEdns0())
		assert.Equal(t, uint16(ednsBufferSize), m.IsEdns0().UDPSize())
		resp := reply(m, mdns.RcodeSuccess, apex[:2]...)
		resp.Truncated = true
		return resp, nil
	})
	tcp := &fakeExchanger{handler: func(m *mdns.Msg, server string) (*mdns.Msg, error) {
		assert.Equal(t, "10.0.0.1:53", server)
		return reply(m, mdns.RcodeSuccess, apex...), nil
	}}
	r.tcpClient = tcp

	records, err := r.ResolveTXT(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Len(t, records, len(apex))
	assert.Contains(t, records, "v=spf1 include:mailgun.org ~all")
	assert.Equal(t, 1, udp.calls)
	assert.Equal(t, 1, tcp.calls)
}

func TestResolver_CompleteAnswerSkipsTCP(t *testing.T) {
	r, _ := newTestResolver(func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return reply(m, mdns.RcodeSuccess, `example.org. 300 IN TXT "hello"`), nil
	})
	tcp := &fakeExchanger{handler: func(m *mdns.Msg, _ string) (*mdns.Msg, error) {
		return nil, errors.New("unexpected tcp query")
	}}
	r.tcpClient = tcp

	_, err := r.ResolveTXT(context.Background(), "example.org")
	require.NoError(t, err)
	assert.Zero(t, tcp.calls)
}

type hangingExchanger struct {
	calls int
}

func (h *hangingExchanger) ExchangeContext(ctx context.Context, _ *mdns.Msg, _ string) (*mdns.Msg, time.Duration, error) {
	h.calls++
	<-ctx.Done()
	return nil, 0, ctx.Err()
}

func TestResolver_LookupBoundedByBudget(t *testing.T) {
	hanging := &hangingExchanger{}
	r := &resolver{
		nameservers: []string{"10.0.0.1:53", "10.0.0.2:53"},
		retries:     2,
		timeout:     time.Second,
		budget:      150 * time.Millisecond,
		client:      hanging,
	}

	started := time.Now()
	records, err := r.ResolveTXT(context.Background(), "slow.example.org")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 1, hanging.calls)
}

func TestNormalizeNameservers(t *testing.T) {
	assert.Equal(t,
		[]string{"8.8.8.8:53", "1.1.1.1:5353", "[::1]:53"},
		normalizeNameservers([]string{"8.8.8.8", " 1.1.1.1:5353 ", "::1", ""}),
	)
}
