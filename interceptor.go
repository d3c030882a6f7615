package tandem

import (
	"context"
	"sync"
)

// RequestInterceptor transforms outgoing configs and observes failures.
// Either field may be nil.
type RequestInterceptor struct {
	// OnRequest receives the config produced by the previous interceptor and
	// returns the config handed to the next one.
	OnRequest func(ctx context.Context, cfg RequestConfig) (RequestConfig, error)
	// OnRequestError receives the current error and returns the error to pass
	// on. Returning nil keeps the current error.
	OnRequestError func(ctx context.Context, err error) error
}

// ResponseInterceptor transforms responses and observes failures.
// Either field may be nil.
type ResponseInterceptor struct {
	OnResponse      func(ctx context.Context, resp *Response, cfg RequestConfig) (*Response, error)
	OnResponseError func(ctx context.Context, err error) error
}

// RequestFunc builds an interceptor that only transforms configs.
func RequestFunc(fn func(ctx context.Context, cfg RequestConfig) (RequestConfig, error)) RequestInterceptor {
	return RequestInterceptor{OnRequest: fn}
}

// ResponseFunc builds an interceptor that only transforms responses.
func ResponseFunc(fn func(ctx context.Context, resp *Response, cfg RequestConfig) (*Response, error)) ResponseInterceptor {
	return ResponseInterceptor{OnResponse: fn}
}

// interceptorChain holds the append-only request and response chains.
type interceptorChain struct {
	mu       sync.RWMutex
	request  []RequestInterceptor
	response []ResponseInterceptor
}

func (ic *interceptorChain) addRequest(in RequestInterceptor) {
	ic.mu.Lock()
	ic.request = append(ic.request, in)
	ic.mu.Unlock()
}

func (ic *interceptorChain) addResponse(in ResponseInterceptor) {
	ic.mu.Lock()
	ic.response = append(ic.response, in)
	ic.mu.Unlock()
}

// snapshot returns the chains as registered at call time so a request is not
// affected by interceptors added while it is in flight.
func (ic *interceptorChain) snapshot() ([]RequestInterceptor, []ResponseInterceptor) {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.request[:len(ic.request):len(ic.request)], ic.response[:len(ic.response):len(ic.response)]
}

func runRequestStage(ctx context.Context, chain []RequestInterceptor, cfg RequestConfig) (RequestConfig, error) {
	for _, in := range chain {
		if in.OnRequest == nil {
			continue
		}
		next, err := in.OnRequest(ctx, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = next
	}
	return cfg, nil
}

func runResponseStage(ctx context.Context, chain []ResponseInterceptor, resp *Response, cfg RequestConfig) (*Response, error) {
	for _, in := range chain {
		if in.OnResponse == nil {
			continue
		}
		next, err := in.OnResponse(ctx, resp, cfg)
		if err != nil {
			return resp, err
		}
		resp = next
	}
	return resp, nil
}

// runErrorChain passes err through every request error handler and then every
// response error handler, in registration order.
func runErrorChain(ctx context.Context, reqChain []RequestInterceptor, respChain []ResponseInterceptor, err error) error {
	for _, in := range reqChain {
		if in.OnRequestError == nil {
			continue
		}
		if next := in.OnRequestError(ctx, err); next != nil {
			err = next
		}
	}
	for _, in := range respChain {
		if in.OnResponseError == nil {
			continue
		}
		if next := in.OnResponseError(ctx, err); next != nil {
			err = next
		}
	}
	return err
}
