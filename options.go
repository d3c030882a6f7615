package tandem

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

// WithBaseURL sets the prefix applied to every relative request URL
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.config.BaseURL = baseURL
	}
}

// WithTimeout sets the default per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.Timeout = d
	}
}

// WithMaxConcurrent sets how many transport calls may run at once
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		c.config.MaxConcurrent = n
	}
}

// WithCredentials sets the default for RequestConfig.WithCredentials
func WithCredentials(enabled bool) Option {
	return func(c *Client) {
		c.config.WithCredentials = enabled
	}
}

// WithHeaders adds default headers sent with every request
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		if c.config.Headers == nil {
			c.config.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			c.config.Headers[k] = v
		}
	}
}

// WithConfig replaces the client defaults wholesale, e.g. with the result of
// LoadConfigFromEnv or LoadConfigFile.
func WithConfig(cfg Config) Option {
	return func(c *Client) {
		c.config = cfg.clone()
	}
}

// WithHTTPClient sets the HTTP handle shared by both transports. Its Timeout
// and Jar are ignored; use WithTimeout and WithCookieJar.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client == nil {
			c.optionErrors = append(c.optionErrors, "HTTP client cannot be nil")
			return
		}
		c.httpClient = client
	}
}

// WithRoundTripper sets the round tripper used by the shared HTTP handle
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt == nil {
			c.optionErrors = append(c.optionErrors, "round tripper cannot be nil")
			return
		}
		c.roundTripper = rt
	}
}

// WithHTTP2 configures the shared handle's *http.Transport for HTTP/2
func WithHTTP2() Option {
	return func(c *Client) {
		c.http2 = true
	}
}

// WithCookieJar sets the jar used for requests with credentials enabled
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

// WithStrictStatus makes every transport reject responses outside [200,300)
// with an HTTPStatus error.
func WithStrictStatus() Option {
	return func(c *Client) {
		c.config.StrictStatus = true
	}
}

// WithAdmissionRate paces transport starts to perSecond with the given burst
func WithAdmissionRate(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.config.AdmissionRate = perSecond
		c.config.AdmissionBurst = burst
	}
}

// WithName labels the client's queue metrics. Unnamed clients get a
// generated queue-N label.
func WithName(name string) Option {
	return func(c *Client) {
		c.name = name
	}
}

// WithMetrics enables Prometheus metrics collection on the default registerer.
// Clients built this way share one collector.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithZerolog routes debug output to l
func WithZerolog(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = NewZerologLogger(l)
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.requestIDGen = gen
	}
}

// WithRequestInterceptor registers a request interceptor at construction
func WithRequestInterceptor(in RequestInterceptor) Option {
	return func(c *Client) {
		c.interceptors.addRequest(in)
	}
}

// WithResponseInterceptor registers a response interceptor at construction
func WithResponseInterceptor(in ResponseInterceptor) Option {
	return func(c *Client) {
		c.interceptors.addResponse(in)
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.optionErrors...)
	errors = append(errors, c.validateQueueConfig()...)
	errors = append(errors, c.validateRequestDefaults()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if c.requestIDGen == nil {
		errors = append(errors, "request ID generator cannot be nil")
	}

	if len(errors) > 0 {
		return validationError(errors)
	}

	return nil
}

// validateQueueConfig validates admission settings
func (c *Client) validateQueueConfig() []string {
	var errors []string

	if c.config.MaxConcurrent <= 0 {
		errors = append(errors, "maxConcurrent must be a positive integer")
	}
	if c.config.AdmissionRate < 0 {
		errors = append(errors, "admissionRate must be non-negative")
	}
	if c.config.AdmissionRate > 0 && c.config.AdmissionBurst < 1 {
		errors = append(errors, "admissionBurst must be at least 1 when admissionRate is set")
	}

	return errors
}

// validateRequestDefaults validates the defaults merged into every request
func (c *Client) validateRequestDefaults() []string {
	var errors []string

	if c.config.Timeout < 0 {
		errors = append(errors, "timeout must be non-negative")
	}
	if c.config.BaseURL != "" && !hasScheme(c.config.BaseURL) {
		errors = append(errors, "baseURL must include a scheme")
	}
	for k := range c.config.Headers {
		if k == "" {
			errors = append(errors, "header names cannot be empty")
			break
		}
	}

	return errors
}

// validateDebugConfig validates debug configuration
func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug == nil {
		errors = append(errors, "debug config cannot be nil")
		return errors
	}
	if c.debug.Enabled && c.logger == nil {
		errors = append(errors, "logger must be set when debug is enabled")
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.config.Timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if c.config.MaxConcurrent > 10000 {
		errors = append(errors, fmt.Sprintf("maxConcurrent %d exceeds 10000", c.config.MaxConcurrent))
	}

	return errors
}

// newHTTP2Transport returns an HTTP/2 capable copy of base. A nil base means
// a fresh transport with the usual defaults.
func newHTTP2Transport(base http.RoundTripper) (http.RoundTripper, error) {
	var t *http.Transport
	switch rt := base.(type) {
	case nil:
		t = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	case *http.Transport:
		t = rt.Clone()
	default:
		return nil, errors.New("HTTP/2 requires an *http.Transport")
	}

	if _, ok := t.TLSNextProto[http2.NextProtoTLS]; ok {
		return t, nil
	}
	if _, err := http2.ConfigureTransports(t); err != nil {
		return nil, err
	}
	return t, nil
}
