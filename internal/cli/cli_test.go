package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambiyansyah-risyal/tandem"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Method", r.Method)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
			"query":  r.URL.RawQuery,
			"body":   string(body),
			"header": r.Header.Get("X-Test"),
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"request", "bench", "version"}, names)

	for _, flag := range []string{"config", "base-url", "timeout", "max-concurrent", "header", "debug"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tandem v"+tandem.Version)
}

func TestRequestGetWithQueryData(t *testing.T) {
	server := echoServer(t)

	out, _, err := execute(t, "request", "get", server.URL+"/items", "--data", `{"q":"tandem"}`, "-H", "X-Test: yes")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "GET", got["method"])
	assert.Equal(t, "/items", got["path"])
	assert.Equal(t, "q=tandem", got["query"])
	assert.Equal(t, "yes", got["header"])
}

func TestRequestPostWithBaseURL(t *testing.T) {
	server := echoServer(t)

	out, _, err := execute(t, "request", "POST", "/items", "--base-url", server.URL, "--data", `{"name":"x"}`, "-i")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "200 OK\n"), "unexpected head: %q", out)
	assert.Contains(t, out, "x-method: POST")
	assert.Contains(t, out, `\"name\":\"x\"`)
}

func TestRequestInvalidData(t *testing.T) {
	_, _, err := execute(t, "request", "POST", "http://127.0.0.1:1/", "--data", "{oops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestRequestStatusHandling(t *testing.T) {
	server := echoServer(t)

	_, _, err := execute(t, "request", "GET", server.URL+"/missing")
	require.NoError(t, err, "the context transport resolves any status")

	_, _, err = execute(t, "request", "GET", server.URL+"/missing", "--fail")
	require.Error(t, err)
	assert.True(t, tandem.IsHTTPStatus(err))

	_, _, err = execute(t, "request", "GET", server.URL+"/missing", "--progress")
	require.Error(t, err)
	assert.True(t, tandem.IsHTTPStatus(err), "the progress transport rejects non-2xx")
}

func TestRequestProgressIsSilentOffTerminal(t *testing.T) {
	server := echoServer(t)

	_, stderr, err := execute(t, "request", "PUT", server.URL+"/upload", "--data", `{"a":1}`, "--progress")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestRequestDebugLogsToStderr(t *testing.T) {
	server := echoServer(t)

	_, stderr, err := execute(t, "request", "GET", server.URL, "--debug")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Starting request")
	assert.Contains(t, stderr, "Request completed")
}

func TestLoadConfigLayering(t *testing.T) {
	t.Setenv("TANDEM_BASE_URL", "https://env.example.com")
	t.Setenv("TANDEM_MAX_CONCURRENT", "3")
	t.Setenv("TANDEM_TIMEOUT", "4s")

	path := filepath.Join(t.TempDir(), "tandem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://file.example.com\nmax_concurrent: 4\n"), 0o600))

	cmd := NewRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--max-concurrent", "6", "-H", "X-A: 1"}))

	opts := &rootOptions{configPath: path, maxConcurrent: 6, headers: []string{"X-A: 1"}}
	cfg, err := opts.loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.BaseURL, "file overrides env")
	assert.Equal(t, 6, cfg.MaxConcurrent, "flag overrides file")
	assert.Equal(t, tandem.DefaultTimeout, cfg.Timeout, "file starts from defaults")
	assert.Equal(t, "1", cfg.Headers["X-A"])
}

func TestLoadConfigFromEnvOnly(t *testing.T) {
	t.Setenv("TANDEM_MAX_CONCURRENT", "3")
	t.Setenv("TANDEM_TIMEOUT", "4s")

	cmd := NewRootCmd()
	cfg, err := (&rootOptions{}).loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, 4*time.Second, cfg.Timeout)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	_, _, err := execute(t, "request", "GET", "http://127.0.0.1:1/", "--max-concurrent", "0")
	require.Error(t, err)
	assert.ErrorIs(t, err, tandem.ErrInvalidConfig)
}

func TestParseHeaders(t *testing.T) {
	got, err := parseHeaders([]string{"Accept: application/json", "X-Empty:", "X-Spaced :  v "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Accept": "application/json", "X-Empty": "", "X-Spaced": "v"}, got)

	_, err = parseHeaders([]string{"no-colon"})
	assert.Error(t, err)
	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}

func TestBenchRespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}))
	defer server.Close()

	out, _, err := execute(t, "bench", server.URL, "-n", "20", "-c", "3")
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Contains(t, out, "requests:     20")
	assert.Contains(t, out, "errors:       0")
	assert.Contains(t, out, "status 200:   20")
	assert.Contains(t, out, "latency p99:")
}

func TestBenchRejectsBadFlags(t *testing.T) {
	_, _, err := execute(t, "bench", "http://127.0.0.1:1/", "-n", "0")
	assert.Error(t, err)
	_, _, err = execute(t, "bench", "http://127.0.0.1:1/", "-c", "0")
	assert.Error(t, err)
}

func TestInFlightCounterTracksPeak(t *testing.T) {
	release := make(chan struct{})
	counter := &inFlightCounter{next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		<-release
		return &http.Response{StatusCode: 200, Body: http.NoBody, Request: r}, nil
	})}

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			req, _ := http.NewRequest(http.MethodGet, "http://stub.local/", nil)
			counter.RoundTrip(req)
			done <- struct{}{}
		}()
	}
	require.Eventually(t, func() bool { return counter.current.Load() == 4 }, time.Second, time.Millisecond)
	close(release)
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.Equal(t, int64(4), counter.peak.Load())
	assert.Equal(t, int64(0), counter.current.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestIsTerminalOnBuffer(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
