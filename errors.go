package tandem

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Error types carried by ClientError.Type.
const (
	ErrorTypeNetwork      = "Network"
	ErrorTypeTimeout      = "Timeout"
	ErrorTypeHTTPStatus   = "HTTPStatus"
	ErrorTypeAbort        = "Abort"
	ErrorTypeValidation   = "Validation"
	ErrorTypeQueueCleared = "QueueCleared"
	ErrorTypeEncode       = "Encode"
	ErrorTypeDecode       = "Decode"
)

// Sentinel errors for errors.Is. They match any *ClientError of the same Type.
var (
	ErrNetwork       = &ClientError{Type: ErrorTypeNetwork, Message: "network error"}
	ErrTimeout       = &ClientError{Type: ErrorTypeTimeout, Message: "timeout"}
	ErrHTTPStatus    = &ClientError{Type: ErrorTypeHTTPStatus, Message: "unsuccessful status code"}
	ErrAborted       = &ClientError{Type: ErrorTypeAbort, Message: "request aborted"}
	ErrInvalidConfig = &ClientError{Type: ErrorTypeValidation, Message: "invalid configuration"}
	ErrQueueCleared  = &ClientError{Type: ErrorTypeQueueCleared, Message: "queue cleared"}
)

// ClientError is the error type returned by transports, the queue and the client.
type ClientError struct {
	Type      string
	Message   string
	Cause     error
	RequestID string
	Method    string
	URL       string
	// StatusCode is set for HTTPStatus errors.
	StatusCode int
	// Response is the completed response for HTTPStatus errors.
	Response  *Response
	Transport string
	Timestamp time.Time
	Duration  time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Transport != "" {
		info += fmt.Sprintf("Transport: %s\n", e.Transport)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTimeout reports whether err is a Timeout failure.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsNetwork reports whether err is a Network failure.
func IsNetwork(err error) bool { return errors.Is(err, ErrNetwork) }

// IsHTTPStatus reports whether err is an HTTPStatus failure.
func IsHTTPStatus(err error) bool { return errors.Is(err, ErrHTTPStatus) }

// IsAborted reports whether err is an Abort failure.
func IsAborted(err error) bool { return errors.Is(err, ErrAborted) }

// errorType returns the ClientError type of err, or "Unknown".
func errorType(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return "Unknown"
}

// classifyTransportError maps a failed round trip onto the error taxonomy.
// parent is the caller context; a cancelled parent always means Abort, any
// other deadline or net timeout means Timeout.
func classifyTransportError(parent context.Context, err error) string {
	if parent.Err() != nil {
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			return ErrorTypeTimeout
		}
		return ErrorTypeAbort
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme") {
		return ErrorTypeValidation
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeAbort
	}
	return ErrorTypeNetwork
}

func validationError(problems []string) *ClientError {
	return &ClientError{
		Type:      ErrorTypeValidation,
		Message:   "configuration validation failed",
		Cause:     fmt.Errorf("validation errors: %v", problems),
		Timestamp: time.Now(),
	}
}
