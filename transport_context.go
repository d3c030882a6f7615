package tandem

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// ContextTransport is the cancellation-based transport. Each call runs under
// a context derived from the caller's with the request timeout; expiry cancels
// the in-flight call and yields a Timeout error.
//
// It resolves for every HTTP status, including 4xx and 5xx.
type ContextTransport struct {
	client *http.Client
	jar    http.CookieJar
}

// NewContextTransport returns a ContextTransport using client, or a default
// client when nil. Cookies are only exchanged with jar for requests that set
// WithCredentials.
func NewContextTransport(client *http.Client, jar http.CookieJar) *ContextTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &ContextTransport{client: client, jar: jar}
}

// Kind implements Transport.
func (t *ContextTransport) Kind() TransportKind { return KindContext }

// RoundTrip implements Transport.
func (t *ContextTransport) RoundTrip(ctx context.Context, cfg RequestConfig) (*Response, error) {
	start := time.Now()

	callCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req, _, err := newHTTPRequest(callCtx, cfg, t.jar)
	if err != nil {
		return nil, err
	}

	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, t.fail(ctx, callCtx, cfg, err, start)
	}
	defer httpResp.Body.Close()

	// The body is read under the same deadline so a slow body is a timeout
	// too, and nothing partial is handed back.
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, t.fail(ctx, callCtx, cfg, err, start)
	}
	storeCookies(t.jar, cfg, httpResp)

	return buildResponse(cfg, httpResp, body)
}

func (t *ContextTransport) fail(parent, call context.Context, cfg RequestConfig, cause error, start time.Time) *ClientError {
	kind := classifyTransportError(parent, cause)
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) {
		kind = ErrorTypeTimeout
	}
	msg := "network request failed"
	switch kind {
	case ErrorTypeTimeout:
		msg = "request timed out"
	case ErrorTypeAbort:
		msg = "request aborted"
	case ErrorTypeValidation:
		msg = "invalid request URL"
	}
	return &ClientError{
		Type:      kind,
		Message:   msg,
		Cause:     cause,
		Method:    string(cfg.Method),
		URL:       cfg.URL,
		Transport: KindContext.String(),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
}
