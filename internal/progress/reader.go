// Package progress provides an io.Reader that reports how much of a known
// total has been read.
package progress

import (
	"io"
	"sync"
)

// Func receives a percentage in [0,100].
type Func func(percent float64)

// Reader wraps an io.Reader and calls report after every successful read.
// Reports are only emitted when the total length is known.
type Reader struct {
	r      io.Reader
	total  int64
	report Func

	mu     sync.Mutex
	loaded int64
}

// NewReader wraps r. A total <= 0 means the length is not computable and
// report will never be called.
func NewReader(r io.Reader, total int64, report Func) *Reader {
	return &Reader{r: r, total: total, report: report}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.advance(int64(n))
	}
	return n, err
}

// Close closes the wrapped reader when it is an io.Closer.
func (p *Reader) Close() error {
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Loaded returns the number of bytes read so far.
func (p *Reader) Loaded() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *Reader) advance(n int64) {
	p.mu.Lock()
	p.loaded += n
	loaded := p.loaded
	p.mu.Unlock()

	if p.report == nil || p.total <= 0 {
		return
	}
	percent := float64(loaded) / float64(p.total) * 100
	if percent > 100 {
		percent = 100
	}
	p.report(percent)
}
