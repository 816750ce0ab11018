package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
	"github.com/chronicle-labs/chronicler/internal/logger"
)

const (
	// DefaultMaxRetries is the retry budget for transient failures.
	DefaultMaxRetries = 5

	// DefaultSleepTime is the delay between retry attempts.
	DefaultSleepTime = time.Second

	// DefaultTimeout is the per-request transport timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the client to providers.
	DefaultUserAgent = "chronicler/" + Version

	// Version of the client, recorded for traceability.
	Version = "0.3.0"
)

// defaultRetryStatuses are HTTP statuses treated as transient.
// 429 is not here: quota exhaustion goes through the rate-limit path.
var defaultRetryStatuses = []int{
	http.StatusRequestTimeout,    // 408
	http.StatusLocked,            // 423
	http.StatusServiceUnavailable, // 503
	http.StatusGatewayTimeout,    // 504
}

// defaultSnapshotHeaders are the response headers preserved in the
// archive. Link is kept so pagination replays identically.
var defaultSnapshotHeaders = []string{
	"Content-Type",
	"Link",
	HeaderRetryAfter,
}

// RequestSpec describes one outbound call.
type RequestSpec struct {
	Method  string
	URL     string
	Params  url.Values
	Headers map[string]string
	Body    []byte
}

// Credential is one authentication context. Rotation follows the order
// credentials were supplied, wrapping to the first after the last.
type Credential struct {
	Token string
}

// Options configures a Client. The zero value gets sensible defaults.
type Options struct {
	MaxRetries       int
	SleepTime        time.Duration
	ExtraRetryStatus []int

	SleepForRate   bool
	MinRateToSleep int

	RateLimitHeader      string
	RateLimitResetHeader string

	// ProactiveRate throttles outbound requests per second before any
	// quota header is ever seen. Zero disables the bucket.
	ProactiveRate float64

	UserAgent string
	Timeout   time.Duration
}

func (o *Options) withDefaults() {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.SleepTime == 0 {
		o.SleepTime = DefaultSleepTime
	}
	if o.MinRateToSleep == 0 {
		o.MinRateToSleep = DefaultMinRateToSleep
	}
	if o.MinRateToSleep > MaxMinRateToSleep {
		logger.Warn("min rate to sleep %d exceeds %d, capped", o.MinRateToSleep, MaxMinRateToSleep)
		o.MinRateToSleep = MaxMinRateToSleep
	}
	if o.RateLimitHeader == "" {
		o.RateLimitHeader = HeaderRateRemaining
	}
	if o.RateLimitResetHeader == "" {
		o.RateLimitResetHeader = HeaderRateReset
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
}

// Client issues rate-limited, retried, optionally archived requests.
// Not safe for concurrent use: one fetch run owns one client.
type Client struct {
	opts    Options
	creds   []Credential
	https   []*http.Client
	quotas  []quota
	current int

	bucket  *rate.Limiter
	retry   map[int]bool
	archive driven.ArchiveWriter
	reader  driven.ArchiveReader

	// scopes mirrors the open fetch scopes so responses carry their
	// innermost label in live mode too.
	scopes []string

	seq uint64

	// Test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a live client. With no credentials a single anonymous
// context is used. Authenticated contexts are carried as oauth2 static
// token sources, one HTTP client per credential.
func New(opts Options, creds ...Credential) *Client {
	opts.withDefaults()

	c := &Client{
		opts:  opts,
		creds: creds,
		now:   time.Now,
		sleep: sleepContext,
	}

	if len(creds) == 0 {
		c.https = []*http.Client{{Timeout: opts.Timeout}}
		c.quotas = []quota{newQuota()}
	} else {
		for _, cred := range creds {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token})
			hc := oauth2.NewClient(context.Background(), ts)
			hc.Timeout = opts.Timeout
			c.https = append(c.https, hc)
			c.quotas = append(c.quotas, newQuota())
		}
	}

	if opts.ProactiveRate > 0 {
		c.bucket = rate.NewLimiter(rate.Limit(opts.ProactiveRate), 1)
	}

	c.retry = make(map[int]bool)
	for _, s := range defaultRetryStatuses {
		c.retry[s] = true
	}
	for _, s := range opts.ExtraRetryStatus {
		c.retry[s] = true
	}

	return c
}

// NewReplay creates a client that serves every request from the given
// archive, in original write order, without touching the network.
func NewReplay(reader driven.ArchiveReader) *Client {
	return &Client{
		reader: reader,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// SetArchive enables write-through archiving of every successful
// response.
func (c *Client) SetArchive(w driven.ArchiveWriter) {
	c.archive = w
}

// Replaying reports whether the client serves from an archive.
func (c *Client) Replaying() bool {
	return c.reader != nil
}

// BeginScope opens a nested fetch scope. Responses obtained until the
// matching EndScope carry the label as their Scope. During replay the
// reader tracks scopes itself and this is a no-op.
func (c *Client) BeginScope(label string) error {
	if c.reader != nil {
		return nil
	}
	c.scopes = append(c.scopes, label)
	if c.archive == nil {
		return nil
	}
	return c.archive.BeginScope(label)
}

// EndScope closes the innermost open scope.
func (c *Client) EndScope(label string) error {
	if c.reader != nil {
		return nil
	}
	if n := len(c.scopes); n > 0 {
		c.scopes = c.scopes[:n-1]
	}
	if c.archive == nil {
		return nil
	}
	return c.archive.EndScope(label)
}

// Request performs one call per spec and returns its raw response.
// Transient failures are retried, quota exhaustion rotates credentials
// and then sleeps or fails depending on configuration. In replay mode
// the next archived response is returned instead.
func (c *Client) Request(ctx context.Context, spec RequestSpec) (*domain.RawResponse, error) {
	if c.reader != nil {
		return c.replay()
	}

	if c.bucket != nil {
		if err := c.bucket.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// Preflight: the previous response may have told us this context
	// is dry.
	if c.quotas[c.current].exhausted(c.opts.MinRateToSleep) {
		if err := c.rotateOrSleep(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.attempt(ctx, spec)
	if err != nil {
		return nil, err
	}

	if c.rateLimited(resp) {
		c.quotas[c.current].updateFrom(resp.header, c.opts.RateLimitHeader, c.opts.RateLimitResetHeader)
		if err := c.rotateOrSleep(ctx); err != nil {
			return nil, err
		}
		// Exactly one retry once quota should be available again.
		resp, err = c.attempt(ctx, spec)
		if err != nil {
			return nil, err
		}
		if c.rateLimited(resp) {
			q := c.quotas[c.current]
			return nil, &domain.RateLimitError{
				SleepFor:  q.sleepFor(c.now()),
				ResetAt:   q.resetAt,
				Remaining: q.remaining,
			}
		}
	}

	c.quotas[c.current].updateFrom(resp.header, c.opts.RateLimitHeader, c.opts.RateLimitResetHeader)

	if err := c.classify(resp, spec); err != nil {
		return nil, err
	}

	raw := c.snapshot(resp)
	if c.archive != nil {
		entry := domain.ArchiveEntry{Kind: domain.EntryData, Response: *raw}
		if err := c.archive.Append(entry); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// result is one completed HTTP exchange with the body drained.
type result struct {
	status int
	header http.Header
	body   []byte
	url    string
}

// attempt runs the request with the transient-retry policy. The
// attempt counter is per logical request, not per redirect.
func (c *Client) attempt(ctx context.Context, spec RequestSpec) (*result, error) {
	var last error

	for n := 0; n <= c.opts.MaxRetries; n++ {
		if n > 0 {
			logger.Debug("transient failure, retry %d/%d in %s: %v",
				n, c.opts.MaxRetries, c.opts.SleepTime, last)
			if err := c.sleep(ctx, c.opts.SleepTime); err != nil {
				return nil, err
			}
		}

		resp, err := c.do(ctx, spec)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			last = err
			continue
		}
		if c.retry[resp.status] {
			last = &APIError{StatusCode: resp.status, URL: resp.url, Body: string(resp.body)}
			continue
		}
		return resp, nil
	}

	return nil, &domain.RetryExhaustedError{Attempts: c.opts.MaxRetries + 1, Last: last}
}

func (c *Client) do(ctx context.Context, spec RequestSpec) (*result, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	target := spec.URL
	if len(spec.Params) > 0 {
		target += "?" + spec.Params.Encode()
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.https[c.current].Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &result{
		status: resp.StatusCode,
		header: resp.Header,
		body:   data,
		url:    target,
	}, nil
}

// rateLimited reports whether the response signals quota exhaustion.
func (c *Client) rateLimited(r *result) bool {
	if r.status == http.StatusTooManyRequests {
		return true
	}
	return r.status == http.StatusForbidden &&
		r.header.Get(c.opts.RateLimitHeader) == "0"
}

// classify maps non-success statuses to the error taxonomy. These are
// never retried.
func (c *Client) classify(r *result, spec RequestSpec) error {
	switch {
	case r.status < 400:
		return nil
	case r.status == http.StatusUnauthorized || r.status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d (URL: %s)", domain.ErrAuthentication, r.status, spec.URL)
	case r.status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, spec.URL)
	default:
		return &APIError{StatusCode: r.status, URL: r.url, Body: string(r.body)}
	}
}

// rotateOrSleep moves to the next credential context with quota left.
// When every context is dry it sleeps until the earliest reset if
// sleep-for-rate is enabled, or fails with RateLimitError.
func (c *Client) rotateOrSleep(ctx context.Context) error {
	for i := 1; i < len(c.creds); i++ {
		next := (c.current + i) % len(c.creds)
		if !c.quotas[next].exhausted(c.opts.MinRateToSleep) {
			logger.Debug("quota exhausted, rotating credential %d -> %d", c.current, next)
			c.current = next
			return nil
		}
	}

	q := c.quotas[c.current]
	sleepFor := q.sleepFor(c.now())

	if !c.opts.SleepForRate {
		return &domain.RateLimitError{
			SleepFor:  sleepFor,
			ResetAt:   q.resetAt,
			Remaining: q.remaining,
		}
	}

	logger.Info("rate limit exhausted, sleeping %s until reset", sleepFor)
	if err := c.sleep(ctx, sleepFor); err != nil {
		return err
	}
	c.quotas[c.current] = newQuota()
	return nil
}

// snapshot freezes a result into an immutable RawResponse, keeping the
// quota headers and the small whitelist needed for faithful replay.
func (c *Client) snapshot(r *result) *domain.RawResponse {
	headers := make(map[string]string)
	keep := append([]string{
		c.opts.RateLimitHeader,
		c.opts.RateLimitResetHeader,
	}, defaultSnapshotHeaders...)
	for _, h := range keep {
		if v := r.header.Get(h); v != "" {
			headers[h] = v
		}
	}

	var scope string
	if n := len(c.scopes); n > 0 {
		scope = c.scopes[n-1]
	}

	c.seq++
	return &domain.RawResponse{
		Seq:        c.seq,
		StatusCode: r.status,
		Headers:    headers,
		Body:       r.body,
		Scope:      scope,
	}
}

// replay serves the next archived response, tagged with the innermost
// scope label the reader reconstructed from the markers.
func (c *Client) replay() (*domain.RawResponse, error) {
	entry, label, err := c.reader.Next()
	if err != nil {
		return nil, err
	}
	c.seq++
	raw := entry.Response
	raw.Seq = c.seq
	raw.Scope = label
	return &raw, nil
}

// Remaining returns the remaining quota of the active credential, or
// -1 when unknown.
func (c *Client) Remaining() int {
	if len(c.quotas) == 0 {
		return -1
	}
	return c.quotas[c.current].remaining
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
