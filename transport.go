package tandem

import "context"

// TransportKind tags the two transport variants.
type TransportKind int

const (
	// KindContext is the cancellation-based transport.
	KindContext TransportKind = iota
	// KindProgress is the event-based transport with progress callbacks.
	KindProgress
)

func (k TransportKind) String() string {
	switch k {
	case KindContext:
		return "context"
	case KindProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Transport executes one request. Implementations normalize failures into
// *ClientError values of type Network, Timeout, HTTPStatus or Abort.
type Transport interface {
	Kind() TransportKind
	RoundTrip(ctx context.Context, cfg RequestConfig) (*Response, error)
}

// TransportFunc adapts a function to Transport. Its Kind is KindContext.
type TransportFunc func(ctx context.Context, cfg RequestConfig) (*Response, error)

func (f TransportFunc) Kind() TransportKind { return KindContext }

func (f TransportFunc) RoundTrip(ctx context.Context, cfg RequestConfig) (*Response, error) {
	return f(ctx, cfg)
}

// selectTransport picks the progress transport when either progress callback
// is set and the context transport otherwise.
func selectTransport(cfg RequestConfig, contextT, progressT Transport) Transport {
	if cfg.wantsProgress() {
		return progressT
	}
	return contextT
}
