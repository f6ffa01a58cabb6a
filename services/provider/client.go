package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/domails/interfaces"
	"github.com/customeros/domails/internal/config"
	domailsErrors "github.com/customeros/domails/internal/errors"
	"github.com/customeros/domails/internal/logger"
	"github.com/customeros/domails/internal/tracing"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	routesPageSize        = 100
)

type client struct {
	log            logger.Logger
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewProviderClient talks to a Mailgun-compatible REST API using basic auth
// with the "api" user.
func NewProviderClient(cfg *config.ProviderConfig, log logger.Logger) interfaces.ProviderClient {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &client{
		log:            log,
		baseURL:        cfg.ResolvedBaseURL(),
		apiKey:         cfg.ApiKey,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func formRequest(method, path string, form url.Values) request {
	return request{
		method:      method,
		path:        path,
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}
}

// do executes req, retrying transport failures, 429 and 5xx with exponential
// backoff. Any other non-2xx status is returned immediately as a ProviderAPIError.
// POST creates are only resent when the provider cannot have acted on them.
func (c *client) do(ctx context.Context, req request, out interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ProviderClient.do")
	defer span.Finish()
	tracing.TagComponentExternalAPI(span)
	span.LogKV("method", req.method, "path", req.path)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = c.maxBackoff
	policy.MaxElapsedTime = 0

	attempt := 0
	var respBody []byte
	operation := func() error {
		attempt++
		body, err := c.execute(ctx, span, req)
		if err == nil {
			respBody = body
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		var apiErr *domailsErrors.ProviderAPIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return backoff.Permanent(err)
		}
		if req.method == http.MethodPost && !safeToResend(err) {
			return backoff.Permanent(err)
		}
		c.log.Warnf("Provider %s %s attempt %d failed: %v", req.method, req.path, attempt, err)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx))
	span.LogKV("attempts", attempt)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrapf(err, "decoding %s %s response", req.method, req.path)
		}
	}
	return nil
}

func (c *client) execute(ctx context.Context, span opentracing.Span, req request) ([]byte, error) {
	fullURL := c.baseURL + req.path
	if len(req.query) > 0 {
		fullURL += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, fullURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	httpReq.SetBasicAuth("api", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	tracing.InjectSpanContextIntoHTTPRequest(httpReq, span)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domailsErrors.ProviderAPIError{Method: req.method, Path: req.path, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domailsErrors.ProviderAPIError{Method: req.method, Path: req.path, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &domailsErrors.ProviderAPIError{
			Method:     req.method,
			Path:       req.path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			apiErr.Cause = domailsErrors.ErrProviderNotFound
		case resp.StatusCode == http.StatusConflict, isAlreadyExists(resp.StatusCode, apiErr.Body):
			apiErr.Cause = domailsErrors.ErrProviderConflict
		}
		return nil, apiErr
	}

	return respBody, nil
}

// safeToResend reports whether a failed POST was certainly not applied: the
// provider throttled it or the connection was never established.
func safeToResend(err error) bool {
	var apiErr *domailsErrors.ProviderAPIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// isAlreadyExists recognises the 400 the provider answers for duplicate creates.
func isAlreadyExists(status int, body string) bool {
	if status != http.StatusBadRequest {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "already exists") || strings.Contains(lower, "already taken")
}

func IsNotFound(err error) bool {
	return errors.Is(err, domailsErrors.ErrProviderNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, domailsErrors.ErrProviderConflict)
}
