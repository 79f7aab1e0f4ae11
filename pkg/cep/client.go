// Package cep normalizes Brazilian postal codes (CEP) and resolves them to
// street addresses through a ViaCEP-compatible lookup service.
package cep

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/cep-loader/internal/model"
	"github.com/sells-group/cep-loader/internal/resilience"
)

// DefaultBaseURL is the public ViaCEP endpoint.
const DefaultBaseURL = "https://viacep.com.br"

// maxBodyBytes bounds how much of a lookup response is read.
const maxBodyBytes = 64 << 10

// Resolver turns a normalized CEP into an address. The bool is false when
// the service has no street entry for the code, including when the lookup
// itself failed.
type Resolver interface {
	Resolve(ctx context.Context, code string) (model.Address, bool)
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a different ViaCEP-compatible host.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient sets the HTTP client shared by every lookup.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. It is applied to a copy of the
// HTTP client, so a client passed to WithHTTPClient is never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with each lookup.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimit caps lookups per second across all goroutines. Zero or
// negative leaves the client unlimited.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry retries transient lookup failures (timeouts, 429, 5xx).
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger used to report failed lookups.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Client performs CEP lookups. It is safe for concurrent use; all calls
// share one HTTP client and connection pool.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	log        *zap.Logger
}

// NewClient creates a lookup Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:   DefaultBaseURL,
		userAgent: "cep-loader/1.0",
		limiter:   rate.NewLimiter(rate.Inf, 1),
		retry:     resilience.SingleAttempt(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger(c.log, "cep lookup")
	}
	return c
}

// Resolve looks up code and never fails: any lookup error is logged and
// reported as not found.
func (c *Client) Resolve(ctx context.Context, code string) (model.Address, bool) {
	addr, found, err := c.Lookup(ctx, code)
	if err != nil {
		c.log.Error("cep lookup failed", zap.String("cep", code), zap.Error(err))
		return model.Address{}, false
	}
	return addr, found
}

// Lookup queries the service for code. found is true when the body has a
// "logradouro" key, even if its value is null. Otherwise the zero Address is
// returned with a nil error.
func (c *Client) Lookup(ctx context.Context, code string) (addr model.Address, found bool, err error) {
	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (lookupResult, error) {
		return c.fetch(ctx, code)
	})
	return res.addr, res.found, err
}

type lookupResult struct {
	addr  model.Address
	found bool
}

// parseLookup reads a ViaCEP JSON body. Unknown codes come back as
// {"erro": true}, which has no "logradouro" key.
func parseLookup(r io.Reader) (lookupResult, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return lookupResult{}, err
	}
	if _, ok := body["logradouro"]; !ok {
		return lookupResult{}, nil
	}

	var res lookupResult
	for key, dst := range map[string]**string{
		"logradouro": &res.addr.Street,
		"uf":         &res.addr.State,
		"regiao":     &res.addr.Region,
	} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return lookupResult{}, eris.Wrapf(err, "field %s", key)
		}
	}
	res.found = true
	return res, nil
}

func (c *Client) endpoint(code string) string {
	return c.baseURL + "/ws/" + url.PathEscape(code) + "/json/"
}

func (c *Client) fetch(ctx context.Context, code string) (lookupResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return lookupResult{}, eris.Wrap(err, "cep: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(code), nil)
	if err != nil {
		return lookupResult{}, eris.Wrap(err, "cep: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := eris.Wrapf(err, "cep: get %s", code)
		if resilience.IsTransient(err) {
			return lookupResult{}, resilience.NewTransientError(wrapped, 0)
		}
		return lookupResult{}, wrapped
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		statusErr := eris.Errorf("cep: unexpected status %d for %s", resp.StatusCode, code)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return lookupResult{}, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return lookupResult{}, statusErr
	}

	res, err := parseLookup(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return lookupResult{}, eris.Wrapf(err, "cep: decode response for %s", code)
	}
	return res, nil
}
