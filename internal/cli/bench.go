package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/tandem"
)

// Latencies are recorded in microseconds up to one minute.
const (
	minLatencyMicros = 1
	maxLatencyMicros = 60_000_000
	sigFigs          = 3
)

type benchOptions struct {
	requests    int
	concurrency int
	method      string
}

func newBenchCmd(root *rootOptions) *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench URL",
		Short: "Fire many requests at once and report queue behaviour",
		Long: `Submit -n requests at the same time through a client whose queue admits at
most -c concurrently. Reports latency percentiles, errors, throughput and the
highest number of requests observed on the wire at once.

Example:
  tandem bench https://httpbin.org/get -n 500 -c 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.requests, "requests", "n", 100, "Total number of requests")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", tandem.DefaultMaxConcurrent, "Queue concurrency limit")
	cmd.Flags().StringVarP(&opts.method, "method", "X", "GET", "HTTP method")
	return cmd
}

// inFlightCounter wraps a round tripper and tracks the peak number of
// concurrent round trips.
type inFlightCounter struct {
	next    http.RoundTripper
	current atomic.Int64
	peak    atomic.Int64
}

func (c *inFlightCounter) RoundTrip(req *http.Request) (*http.Response, error) {
	n := c.current.Add(1)
	defer c.current.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return c.next.RoundTrip(req)
}

type benchResult struct {
	hist     *hdrhistogram.Histogram
	errors   int
	statuses map[int]int
	elapsed  time.Duration
	peak     int64
}

func runBench(cmd *cobra.Command, root *rootOptions, opts *benchOptions, url string) error {
	if opts.requests <= 0 {
		return fmt.Errorf("--requests must be positive, got %d", opts.requests)
	}
	if opts.concurrency <= 0 {
		return fmt.Errorf("--concurrency must be positive, got %d", opts.concurrency)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = opts.concurrency
	counter := &inFlightCounter{next: base}

	client, err := root.newClient(cmd,
		tandem.WithMaxConcurrent(opts.concurrency),
		tandem.WithRoundTripper(counter),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res := bench(ctx, client, tandem.RequestConfig{URL: url, Method: tandem.Method(opts.method), ResponseType: tandem.ResponseTypeBytes}, opts.requests)
	res.peak = counter.peak.Load()
	printBench(cmd.OutOrStdout(), res, opts)
	return nil
}

func bench(ctx context.Context, client *tandem.Client, cfg tandem.RequestConfig, n int) benchResult {
	res := benchResult{
		hist:     hdrhistogram.New(minLatencyMicros, maxLatencyMicros, sigFigs),
		statuses: make(map[int]int),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			began := time.Now()
			resp, err := client.Request(ctx, cfg)
			took := time.Since(began)

			mu.Lock()
			defer mu.Unlock()
			_ = res.hist.RecordValue(took.Microseconds())
			if err != nil {
				res.errors++
				return
			}
			res.statuses[resp.Status]++
		}()
	}
	wg.Wait()
	res.elapsed = time.Since(start)
	return res
}

func printBench(w io.Writer, res benchResult, opts *benchOptions) {
	micros := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }

	fmt.Fprintf(w, "requests:     %d\n", opts.requests)
	fmt.Fprintf(w, "concurrency:  %d\n", opts.concurrency)
	fmt.Fprintf(w, "peak:         %d in flight\n", res.peak)
	fmt.Fprintf(w, "errors:       %d\n", res.errors)
	codes := make([]int, 0, len(res.statuses))
	for status := range res.statuses {
		codes = append(codes, status)
	}
	sort.Ints(codes)
	for _, status := range codes {
		fmt.Fprintf(w, "status %d:   %d\n", status, res.statuses[status])
	}
	fmt.Fprintf(w, "elapsed:      %s\n", res.elapsed.Round(time.Millisecond))
	if secs := res.elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "throughput:   %.1f req/s\n", float64(opts.requests)/secs)
	}
	fmt.Fprintf(w, "latency mean: %s\n", micros(int64(res.hist.Mean())))
	fmt.Fprintf(w, "latency p50:  %s\n", micros(res.hist.ValueAtQuantile(50)))
	fmt.Fprintf(w, "latency p90:  %s\n", micros(res.hist.ValueAtQuantile(90)))
	fmt.Fprintf(w, "latency p99:  %s\n", micros(res.hist.ValueAtQuantile(99)))
	fmt.Fprintf(w, "latency max:  %s\n", micros(res.hist.Max()))
}
