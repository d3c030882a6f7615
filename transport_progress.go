package tandem

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ambiyansyah-risyal/tandem/internal/progress"
)

// ProgressTransport is the event-based transport. It reports upload and
// download progress, enforces the timeout through the handle's native
// http.Client.Timeout and rejects any status outside [200,300) with an
// HTTPStatus error.
type ProgressTransport struct {
	client *http.Client
	jar    http.CookieJar
}

// NewProgressTransport returns a ProgressTransport around the reusable client
// handle, or a default one when nil.
func NewProgressTransport(client *http.Client, jar http.CookieJar) *ProgressTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &ProgressTransport{client: client, jar: jar}
}

// Kind implements Transport.
func (t *ProgressTransport) Kind() TransportKind { return KindProgress }

// RoundTrip implements Transport.
func (t *ProgressTransport) RoundTrip(ctx context.Context, cfg RequestConfig) (*Response, error) {
	start := time.Now()

	req, prepared, err := newHTTPRequest(ctx, cfg, t.jar)
	if err != nil {
		return nil, err
	}
	if req.Body != nil && cfg.OnUploadProgress != nil {
		req.Body = progress.NewReader(req.Body, prepared.length, progress.Func(cfg.OnUploadProgress))
		req.GetBody = nil
	}

	// Shallow copy so the per-request timeout never leaks into other calls
	// sharing the handle.
	handle := *t.client
	if cfg.Timeout > 0 {
		handle.Timeout = cfg.Timeout
	}

	httpResp, err := handle.Do(req)
	if err != nil {
		return nil, t.fail(ctx, cfg, err, start)
	}
	defer httpResp.Body.Close()

	var bodyReader io.Reader = httpResp.Body
	if cfg.OnDownloadProgress != nil {
		bodyReader = progress.NewReader(httpResp.Body, httpResp.ContentLength, progress.Func(cfg.OnDownloadProgress))
	}
	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, t.fail(ctx, cfg, err, start)
	}
	storeCookies(t.jar, cfg, httpResp)

	resp, err := buildResponse(cfg, httpResp, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &ClientError{
			Type:       ErrorTypeHTTPStatus,
			Message:    fmt.Sprintf("request failed with status code %d", resp.Status),
			Method:     string(cfg.Method),
			URL:        cfg.URL,
			StatusCode: resp.Status,
			Response:   resp,
			Transport:  KindProgress.String(),
			Timestamp:  time.Now(),
			Duration:   time.Since(start),
		}
	}
	return resp, nil
}

func (t *ProgressTransport) fail(parent context.Context, cfg RequestConfig, cause error, start time.Time) *ClientError {
	kind := classifyTransportError(parent, cause)
	msg := "network error"
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
		Transport: KindProgress.String(),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
}
