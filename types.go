package tandem

import (
	"encoding/json"
	"time"
)

// Method is an HTTP request method accepted by the client.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions:
		return true
	}
	return false
}

// ResponseType is a decoding hint for the response body.
type ResponseType string

const (
	// ResponseTypeAuto decodes JSON when the Content-Type says so, text otherwise.
	ResponseTypeAuto  ResponseType = ""
	ResponseTypeJSON  ResponseType = "json"
	ResponseTypeText  ResponseType = "text"
	ResponseTypeBytes ResponseType = "bytes"
)

// ProgressFunc receives transfer progress as a percentage in [0,100].
type ProgressFunc func(percent float64)

// RequestConfig describes a single request. Configs are passed by value through
// the interceptor pipeline; use Clone before mutating a shared header map.
type RequestConfig struct {
	URL     string
	Method  Method
	Headers map[string]string

	// Data is the request payload. For GET it is encoded into the query
	// string; otherwise *FormData, io.Reader and []byte are sent as-is and
	// anything else is JSON encoded.
	Data any

	// Timeout of zero falls back to the client default.
	Timeout time.Duration

	// WithCredentials of nil falls back to the client default.
	WithCredentials *bool

	ResponseType ResponseType

	OnUploadProgress   ProgressFunc
	OnDownloadProgress ProgressFunc
}

// Clone returns a copy of the config with its own header map.
func (rc RequestConfig) Clone() RequestConfig {
	out := rc
	if rc.Headers != nil {
		out.Headers = make(map[string]string, len(rc.Headers))
		for k, v := range rc.Headers {
			out.Headers[k] = v
		}
	}
	if rc.WithCredentials != nil {
		out.WithCredentials = Bool(*rc.WithCredentials)
	}
	return out
}

func (rc RequestConfig) wantsProgress() bool {
	return rc.OnUploadProgress != nil || rc.OnDownloadProgress != nil
}

func (rc RequestConfig) credentials() bool {
	return rc.WithCredentials != nil && *rc.WithCredentials
}

// Bool returns a pointer to v, for RequestConfig.WithCredentials.
func Bool(v bool) *bool {
	return &v
}

// Response is the result of a request. Its shape does not depend on which
// transport produced it.
type Response struct {
	// Data is Body decoded according to the request's ResponseType.
	Data       any
	Body       []byte
	Status     int
	StatusText string
	// Headers has lower-cased keys; repeated headers are joined with ", ".
	Headers map[string]string
}

// OK reports whether the status is in [200,300).
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the raw response body as JSON into a value of type T.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, &ClientError{Type: ErrorTypeDecode, Message: "nil response"}
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, &ClientError{Type: ErrorTypeDecode, Message: "failed to decode response body", Cause: err, StatusCode: resp.Status}
	}
	return out, nil
}

// Option represents a configuration option
type Option func(*Client)
