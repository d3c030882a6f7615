// Package tandem provides an HTTP client that puts two transports behind one
// interface and bounds how many requests run at once:
//
//   - A FIFO admission queue capped at MaxConcurrent in-flight calls
//   - Request, response and error interceptors applied in registration order
//   - A context transport that cancels on timeout and resolves every status
//   - A progress transport that reports upload / download percentages and
//     rejects non-2xx statuses
//   - Prometheus metrics and zerolog-based debug logging
//
// The transport is picked per request: setting OnUploadProgress or
// OnDownloadProgress selects the progress transport, otherwise the context
// transport runs the call.
//
// Typical usage:
//
//	client, err := tandem.New(
//	    tandem.WithBaseURL("https://api.example.com"),
//	    tandem.WithMaxConcurrent(2),
//	    tandem.WithTimeout(5*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	client.UseRequestInterceptor(tandem.RequestFunc(func(ctx context.Context, cfg tandem.RequestConfig) (tandem.RequestConfig, error) {
//	    cfg = cfg.Clone()
//	    cfg.Headers["Authorization"] = "Bearer " + token
//	    return cfg, nil
//	}))
//	resp, err := client.Get(ctx, "/users/1")
//
// Nothing is retried, cached or deduplicated: every call is single-shot and a
// failure is returned to the caller after the error interceptors have seen it.
package tandem
