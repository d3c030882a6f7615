package tandem

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client issues HTTP requests through an interceptor pipeline and a bounded
// FIFO admission queue, picking one of two transports per request. It is
// safe for concurrent use.
type Client struct {
	config Config
	name   string

	httpClient   *http.Client
	roundTripper http.RoundTripper
	http2        bool
	jar          http.CookieJar
	strictStatus bool

	queue             *RequestQueue
	contextTransport  Transport
	progressTransport Transport
	interceptors      interceptorChain

	metrics      *MetricsCollector
	debug        *DebugConfig
	logger       Logger
	requestIDGen func() string

	optionErrors []string
}

type requestIDKey struct{}

// RequestIDFromContext returns the ID assigned to the request whose
// interceptors or transport received ctx.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// New constructs a Client from functional options. Invalid configuration is
// reported here and never reaches the queue.
func New(options ...Option) (*Client, error) {
	client := &Client{
		config:       DefaultConfig(),
		debug:        DefaultDebugConfig(),
		requestIDGen: uuid.NewString,
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		return nil, err
	}
	if err := client.build(); err != nil {
		return nil, err
	}

	client.logDebug(client.debug.LogRequests, "Client created",
		"baseURL", client.config.BaseURL,
		"timeout", client.config.Timeout,
		"maxConcurrent", client.config.MaxConcurrent,
		"http2", client.http2)
	return client, nil
}

// MustNew is like New but panics on invalid configuration.
func MustNew(options ...Option) *Client {
	c, err := New(options...)
	if err != nil {
		panic(err)
	}
	return c
}

// build creates the shared HTTP handle, both transports and the queue.
func (c *Client) build() error {
	handle := &http.Client{}
	if c.httpClient != nil {
		copied := *c.httpClient
		handle = &copied
	}
	if c.roundTripper != nil {
		handle.Transport = c.roundTripper
	}
	if c.http2 {
		rt, err := newHTTP2Transport(handle.Transport)
		if err != nil {
			return &ClientError{Type: ErrorTypeValidation, Message: "failed to configure HTTP/2", Cause: err, Timestamp: time.Now()}
		}
		handle.Transport = rt
	}
	// Timeouts are per request, enforced by each transport.
	handle.Timeout = 0
	// Cookies go through the transports so the credentials flag is honored.
	handle.Jar = nil

	if c.jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return err
		}
		c.jar = jar
	}
	c.httpClient = handle
	c.strictStatus = c.config.StrictStatus

	c.contextTransport = NewContextTransport(handle, c.jar)
	c.progressTransport = NewProgressTransport(handle, c.jar)

	queueOpts := []QueueOption{WithQueueMetrics(c.metrics), WithQueueName(c.name)}
	if c.config.AdmissionRate > 0 {
		queueOpts = append(queueOpts, WithQueueLimiter(NewAdmissionLimiter(c.config.AdmissionRate, c.config.AdmissionBurst)))
	}
	if c.logEnabled(c.debug.LogQueue) {
		queueOpts = append(queueOpts, WithQueueLogger(c.logger))
	}
	queue, err := NewRequestQueue(c.config.MaxConcurrent, queueOpts...)
	if err != nil {
		return err
	}
	c.queue = queue
	return nil
}

// UseRequestInterceptor appends in to the request chain.
func (c *Client) UseRequestInterceptor(in RequestInterceptor) *Client {
	c.interceptors.addRequest(in)
	return c
}

// UseResponseInterceptor appends in to the response chain.
func (c *Client) UseResponseInterceptor(in ResponseInterceptor) *Client {
	c.interceptors.addResponse(in)
	return c
}

// Request runs cfg through the request interceptors, the admission queue, the
// selected transport and the response interceptors. Any failure on the way is
// passed through the error interceptors before it is returned.
func (c *Client) Request(ctx context.Context, cfg RequestConfig) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	requestID := c.requestIDGen()
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	reqChain, respChain := c.interceptors.snapshot()

	merged := c.mergeConfig(cfg)
	method := string(merged.Method)
	endpoint := endpointOf(merged.URL)

	c.logDebug(c.debug.LogRequests, "Starting request", "requestID", requestID, "method", method, "url", merged.URL)
	c.metrics.RecordRequestStart(method, endpoint)
	defer c.metrics.RecordRequestEnd(method, endpoint)

	resp, final, transport, err := c.do(ctx, merged, reqChain, respChain)
	duration := time.Since(start)

	if err != nil {
		err = c.annotate(err, requestID, final, transport, duration)
		c.metrics.RecordError(errorType(err), method, endpoint)
		err = runErrorChain(ctx, reqChain, respChain, err)
		c.logDebug(c.debug.LogErrors, "Request failed", "requestID", requestID, "method", method, "url", final.URL, "error", err.Error(), "duration", duration)
		status := 0
		var ce *ClientError
		if errors.As(err, &ce) {
			status = ce.StatusCode
		}
		c.metrics.RecordRequest(method, endpoint, transportLabel(transport), status, duration)
		return nil, err
	}

	c.metrics.RecordRequest(method, endpoint, transportLabel(transport), resp.Status, duration)
	c.logDebug(c.debug.LogRequests, "Request completed", "requestID", requestID, "method", method, "url", final.URL, "status", resp.Status, "duration", duration)
	return resp, nil
}

// do performs the pipeline proper. It returns the config that reached the
// transport (or the last one produced) and the transport used, if any.
func (c *Client) do(ctx context.Context, cfg RequestConfig, reqChain []RequestInterceptor, respChain []ResponseInterceptor) (*Response, RequestConfig, Transport, error) {
	final, err := runRequestStage(ctx, reqChain, cfg)
	if err != nil {
		c.metrics.RecordInterceptorError("request")
		c.logDebug(c.debug.LogInterceptors, "Request interceptor failed", "requestID", RequestIDFromContext(ctx), "error", err.Error())
		return nil, final, nil, err
	}
	if err := validateRequest(final); err != nil {
		return nil, final, nil, err
	}

	transport := selectTransport(final, c.contextTransport, c.progressTransport)
	resp, err := c.queue.Enqueue(ctx, final, transport)
	if err != nil {
		return nil, final, transport, err
	}

	if c.strictStatus && !resp.OK() {
		return nil, final, transport, &ClientError{
			Type:       ErrorTypeHTTPStatus,
			Message:    fmt.Sprintf("request failed with status code %d", resp.Status),
			Method:     string(final.Method),
			URL:        final.URL,
			StatusCode: resp.Status,
			Response:   resp,
			Timestamp:  time.Now(),
		}
	}

	resp, err = runResponseStage(ctx, respChain, resp, final)
	if err != nil {
		c.metrics.RecordInterceptorError("response")
		c.logDebug(c.debug.LogInterceptors, "Response interceptor failed", "requestID", RequestIDFromContext(ctx), "error", err.Error())
		return nil, final, transport, err
	}
	if resp == nil {
		return nil, final, transport, &ClientError{Type: ErrorTypeValidation, Message: "response interceptor returned nil response", Method: string(final.Method), URL: final.URL}
	}
	return resp, final, transport, nil
}

// mergeConfig overlays cfg on the client defaults. Per-call values win and
// per-call headers override default headers of the same name.
func (c *Client) mergeConfig(cfg RequestConfig) RequestConfig {
	merged := cfg.Clone()
	if merged.Method == "" {
		merged.Method = MethodGet
	}
	merged.Method = Method(strings.ToUpper(string(merged.Method)))
	if merged.Timeout == 0 {
		merged.Timeout = c.config.Timeout
	}
	if merged.WithCredentials == nil {
		merged.WithCredentials = Bool(c.config.WithCredentials)
	}

	headers := make(map[string]string, len(c.config.Headers)+len(cfg.Headers))
	for k, v := range c.config.Headers {
		headers[k] = v
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	merged.Headers = headers

	merged.URL = joinURL(c.config.BaseURL, merged.URL)
	return merged
}

// joinURL prefixes base unless target is already absolute.
func joinURL(base, target string) string {
	if base == "" || hasScheme(target) {
		return target
	}
	return base + target
}

// hasScheme reports whether raw begins with "scheme://". A "://" later in
// the string, as in a redirect query parameter, does not count.
func hasScheme(raw string) bool {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return false
	}
	for i, r := range scheme {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && ('0' <= r && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func validateRequest(cfg RequestConfig) error {
	var problems []string
	if cfg.URL == "" {
		problems = append(problems, "url is required")
	} else if u, err := url.Parse(cfg.URL); err != nil {
		problems = append(problems, fmt.Sprintf("url is malformed: %v", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("url %q must be an absolute http(s) URL", cfg.URL))
	}
	if !cfg.Method.Valid() {
		problems = append(problems, fmt.Sprintf("unsupported method %q", cfg.Method))
	}
	if cfg.Timeout < 0 {
		problems = append(problems, "timeout must be non-negative")
	}
	if len(problems) > 0 {
		ce := validationError(problems)
		ce.Method = string(cfg.Method)
		ce.URL = cfg.URL
		return ce
	}
	return nil
}

// annotate returns a copy of a *ClientError with missing request context
// filled in. Other errors, wrapped ones included, are returned untouched.
func (c *Client) annotate(err error, requestID string, cfg RequestConfig, transport Transport, duration time.Duration) error {
	ce, ok := err.(*ClientError)
	if !ok || ce == nil {
		return err
	}
	out := *ce
	if out.RequestID == "" {
		out.RequestID = requestID
	}
	if out.Method == "" {
		out.Method = string(cfg.Method)
	}
	if out.URL == "" {
		out.URL = cfg.URL
	}
	if out.Transport == "" && transport != nil {
		out.Transport = transport.Kind().String()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	if out.Duration == 0 {
		out.Duration = duration
	}
	return &out
}

// Get issues a GET request. Data in cfg is encoded into the query string.
func (c *Client) Get(ctx context.Context, url string, cfg ...RequestConfig) (*Response, error) {
	return c.Request(ctx, shorthand(MethodGet, url, nil, false, cfg))
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, url string, cfg ...RequestConfig) (*Response, error) {
	return c.Request(ctx, shorthand(MethodDelete, url, nil, false, cfg))
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string, cfg ...RequestConfig) (*Response, error) {
	return c.Request(ctx, shorthand(MethodHead, url, nil, false, cfg))
}

// Options issues an OPTIONS request.
func (c *Client) Options(ctx context.Context, url string, cfg ...RequestConfig) (*Response, error) {
	return c.Request(ctx, shorthand(MethodOptions, url, nil, false, cfg))
}

// Post issues a POST request with data as payload.
func (c *Client) Post(ctx context.Context, url string, data any, cfg ...RequestConfig) (*Response, error) {
	return c.Request(ctx, shorthand(MethodPost, url, data, true, cfg))
}

// Put issues a PUT request with data as payload.
func (c *Client) Put(ctx context.Context, url string, data any, cfg ...RequestConfig) (*Response, error) {
	return c.Request(ctx, shorthand(MethodPut, url, data, true, cfg))
}

// Patch issues a PATCH request with data as payload.
func (c *Client) Patch(ctx context.Context, url string, data any, cfg ...RequestConfig) (*Response, error) {
	return c.Request(ctx, shorthand(MethodPatch, url, data, true, cfg))
}

// GetJSON issues a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) (*Response, error) {
	resp, err := c.Request(ctx, RequestConfig{URL: url, Method: MethodGet, ResponseType: ResponseTypeBytes})
	if err != nil {
		return nil, err
	}
	return resp, decodeInto(resp, out)
}

// PostJSON issues a POST with data JSON encoded and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, data, out any) (*Response, error) {
	resp, err := c.Request(ctx, RequestConfig{URL: url, Method: MethodPost, Data: data, ResponseType: ResponseTypeBytes})
	if err != nil {
		return nil, err
	}
	return resp, decodeInto(resp, out)
}

func shorthand(method Method, url string, data any, withData bool, cfg []RequestConfig) RequestConfig {
	var rc RequestConfig
	if len(cfg) > 0 {
		rc = cfg[0]
	}
	rc.URL = url
	rc.Method = method
	if withData {
		rc.Data = data
	}
	return rc
}

// Queue exposes the admission queue for introspection.
func (c *Client) Queue() *RequestQueue {
	return c.queue
}

// Config returns a copy of the client defaults.
func (c *Client) Config() Config {
	return c.config.clone()
}

// Close rejects every request still waiting for admission. Running requests
// finish normally and the client stays usable. Close is idempotent.
func (c *Client) Close() error {
	if n := c.queue.Clear(); n > 0 {
		c.logDebug(c.debug.LogQueue, "Pending requests discarded", "count", n)
	}
	return nil
}

func (c *Client) logEnabled(category bool) bool {
	return c.debug != nil && c.debug.Enabled && category && c.logger != nil
}

func (c *Client) logDebug(category bool, msg string, keysAndValues ...any) {
	if c.logEnabled(category) {
		c.logger.Debug(msg, keysAndValues...)
	}
}

func transportLabel(t Transport) string {
	if t == nil {
		return "none"
	}
	return t.Kind().String()
}

// endpointOf reduces a URL to host+path for metric labels.
func endpointOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)
	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}
