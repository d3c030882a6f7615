package tandem

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxConcurrent is the admission ceiling used when none is configured.
const DefaultMaxConcurrent = 5

var queueSeq atomic.Int64

// RequestQueue bounds the number of concurrently executing transport calls
// and admits waiting requests in strict FIFO order.
//
// All mutable state (the pending list and the running count) is guarded by mu
// and only touched by Enqueue, the admission check and Clear.
type RequestQueue struct {
	name string

	mu            sync.Mutex
	pending       *list.List // of *queueItem
	running       int
	maxConcurrent int

	limiter *AdmissionLimiter
	metrics *MetricsCollector
	logger  Logger
}

// QueueOption configures a RequestQueue.
type QueueOption func(*RequestQueue)

// WithQueueName sets the label the queue's metrics are recorded under.
func WithQueueName(name string) QueueOption {
	return func(q *RequestQueue) { q.name = name }
}

// WithQueueLimiter paces transport starts.
func WithQueueLimiter(l *AdmissionLimiter) QueueOption {
	return func(q *RequestQueue) { q.limiter = l }
}

// WithQueueMetrics records queue depth and wait time.
func WithQueueMetrics(mc *MetricsCollector) QueueOption {
	return func(q *RequestQueue) { q.metrics = mc }
}

// WithQueueLogger logs admissions and completions at debug level.
func WithQueueLogger(l Logger) QueueOption {
	return func(q *RequestQueue) { q.logger = l }
}

type queueResult struct {
	resp *Response
	err  error
}

// queueItem is one accepted request. done is written exactly once.
type queueItem struct {
	ctx       context.Context
	config    RequestConfig
	transport Transport
	enqueued  time.Time

	elem *list.Element // non-nil while pending
	once sync.Once
	done chan queueResult
}

func (it *queueItem) settle(resp *Response, err error) {
	it.once.Do(func() {
		it.done <- queueResult{resp: resp, err: err}
	})
}

// NewRequestQueue returns a queue admitting at most maxConcurrent calls at a
// time. A non-positive limit is a configuration error.
func NewRequestQueue(maxConcurrent int, opts ...QueueOption) (*RequestQueue, error) {
	if maxConcurrent <= 0 {
		return nil, validationError([]string{"maxConcurrent must be a positive integer"})
	}
	q := &RequestQueue{
		pending:       list.New(),
		maxConcurrent: maxConcurrent,
		logger:        nopLogger{},
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = nopLogger{}
	}
	if q.name == "" {
		q.name = "queue-" + strconv.FormatInt(queueSeq.Add(1), 10)
	}
	return q, nil
}

// Enqueue appends a request to the tail of the queue and blocks until it
// settles. If ctx is done while the request is still pending it is removed
// and settled with an Abort error without ever reaching the transport; once
// running, the transport observes ctx itself.
func (q *RequestQueue) Enqueue(ctx context.Context, cfg RequestConfig, transport Transport) (*Response, error) {
	if transport == nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "nil transport", Method: string(cfg.Method), URL: cfg.URL}
	}
	item := &queueItem{
		ctx:       ctx,
		config:    cfg,
		transport: transport,
		enqueued:  time.Now(),
		done:      make(chan queueResult, 1),
	}

	q.mu.Lock()
	item.elem = q.pending.PushBack(item)
	q.admitLocked()
	q.mu.Unlock()

	select {
	case res := <-item.done:
		return res.resp, res.err
	case <-ctx.Done():
		q.mu.Lock()
		if item.elem != nil {
			q.pending.Remove(item.elem)
			item.elem = nil
			item.settle(nil, abortError(ctx, cfg))
			q.recordDepthLocked()
		}
		q.mu.Unlock()
		// Running items settle on their own once the transport sees ctx.
		res := <-item.done
		return res.resp, res.err
	}
}

// admitLocked starts pending items while there is capacity. q.mu must be held.
func (q *RequestQueue) admitLocked() {
	for q.running < q.maxConcurrent && q.pending.Len() > 0 {
		item := q.pending.Remove(q.pending.Front()).(*queueItem)
		item.elem = nil
		q.running++
		q.metrics.RecordQueueWait(q.name, time.Since(item.enqueued))
		q.logger.Debug("Request admitted", "url", item.config.URL, "running", q.running, "pending", q.pending.Len())
		go q.run(item)
	}
	q.recordDepthLocked()
}

func (q *RequestQueue) run(item *queueItem) {
	resp, err := q.execute(item)

	// Decrement, settle and re-admit in one critical section so concurrent
	// completions can neither double-decrement nor admit the same item twice.
	q.mu.Lock()
	q.running--
	item.settle(resp, err)
	q.logger.Debug("Request completed", "url", item.config.URL, "running", q.running, "pending", q.pending.Len())
	q.admitLocked()
	q.mu.Unlock()
}

func (q *RequestQueue) execute(item *queueItem) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &ClientError{Type: ErrorTypeNetwork, Message: "transport panicked", Cause: panicError{r}, Method: string(item.config.Method), URL: item.config.URL}
		}
	}()

	if q.limiter != nil {
		if err := q.limiter.Wait(item.ctx); err != nil {
			return nil, limiterError(item.ctx, item.config, err)
		}
		q.metrics.RecordAdmissionTokens(q.name, q.limiter.Tokens())
	}
	return item.transport.RoundTrip(item.ctx, item.config)
}

// Clear rejects every pending item with ErrQueueCleared and returns how many
// were rejected. Running calls are left to finish and keep their slots.
func (q *RequestQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for e := q.pending.Front(); e != nil; e = q.pending.Front() {
		item := q.pending.Remove(e).(*queueItem)
		item.elem = nil
		item.settle(nil, &ClientError{
			Type:      ErrorTypeQueueCleared,
			Message:   "request discarded before admission",
			Method:    string(item.config.Method),
			URL:       item.config.URL,
			Timestamp: time.Now(),
			Duration:  time.Since(item.enqueued),
		})
		n++
	}
	q.metrics.RecordQueueCleared(q.name, n)
	q.recordDepthLocked()
	if n > 0 {
		q.logger.Debug("Queue cleared", "discarded", n, "running", q.running)
	}
	return n
}

// Pending returns the number of requests waiting for admission.
func (q *RequestQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Running returns the number of transport calls in progress.
func (q *RequestQueue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Name returns the queue's metrics label.
func (q *RequestQueue) Name() string {
	return q.name
}

// MaxConcurrent returns the admission ceiling.
func (q *RequestQueue) MaxConcurrent() int {
	return q.maxConcurrent
}

func (q *RequestQueue) recordDepthLocked() {
	q.metrics.RecordQueueDepth(q.name, q.pending.Len(), q.running)
}

func abortError(ctx context.Context, cfg RequestConfig) *ClientError {
	kind := ErrorTypeAbort
	msg := "request aborted while queued"
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = ErrorTypeTimeout
		msg = "deadline exceeded while queued"
	}
	return &ClientError{Type: kind, Message: msg, Cause: ctx.Err(), Method: string(cfg.Method), URL: cfg.URL, Timestamp: time.Now()}
}

// limiterError classifies a failed limiter wait. The limiter refuses early
// when the token would arrive after the context deadline.
func limiterError(ctx context.Context, cfg RequestConfig, cause error) *ClientError {
	if ctx.Err() != nil {
		ce := abortError(ctx, cfg)
		ce.Cause = cause
		return ce
	}
	return &ClientError{Type: ErrorTypeTimeout, Message: "admission would exceed deadline", Cause: cause, Method: string(cfg.Method), URL: cfg.URL, Timestamp: time.Now()}
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }
