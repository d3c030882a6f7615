package tandem

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"
)

func TestPrepareBodyGETEncodesQuery(t *testing.T) {
	cfg := RequestConfig{
		URL:    "http://example.com/search",
		Method: MethodGet,
		Data:   map[string]string{"q": "go", "page": "2"},
	}

	prepared, err := prepareBody(cfg)
	if err != nil {
		t.Fatalf("prepareBody() returned error: %v", err)
	}

	if prepared.body != nil {
		t.Error("Expected no body for GET")
	}

	u, err := url.Parse(prepared.url)
	if err != nil {
		t.Fatalf("Failed to parse URL %q: %v", prepared.url, err)
	}
	if u.Query().Get("q") != "go" || u.Query().Get("page") != "2" {
		t.Errorf("Expected q=go&page=2, got %s", u.RawQuery)
	}
}

func TestPrepareBodyGETAppendsToExistingQuery(t *testing.T) {
	cfg := RequestConfig{
		URL:    "http://example.com/search?lang=en",
		Method: MethodGet,
		Data:   url.Values{"q": {"go"}},
	}

	prepared, err := prepareBody(cfg)
	if err != nil {
		t.Fatalf("prepareBody() returned error: %v", err)
	}

	expected := "http://example.com/search?lang=en&q=go"
	if prepared.url != expected {
		t.Errorf("Expected %s, got %s", expected, prepared.url)
	}
}

func TestPrepareBodyGETStructPayload(t *testing.T) {
	type filter struct {
		Name  string   `json:"name"`
		Limit int      `json:"limit"`
		Tags  []string `json:"tags"`
	}

	prepared, err := prepareBody(RequestConfig{
		URL:  "http://example.com/items",
		Data: filter{Name: "widget", Limit: 10, Tags: []string{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("prepareBody() returned error: %v", err)
	}

	u, _ := url.Parse(prepared.url)
	q := u.Query()
	if q.Get("name") != "widget" {
		t.Errorf("Expected name=widget, got %q", q.Get("name"))
	}
	if q.Get("limit") != "10" {
		t.Errorf("Expected limit=10, got %q", q.Get("limit"))
	}
	if tags := q["tags"]; len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("Expected tags [a b], got %v", tags)
	}
}

func TestPrepareBodyGETRejectsScalarPayload(t *testing.T) {
	_, err := prepareBody(RequestConfig{URL: "http://example.com", Method: MethodGet, Data: 42})
	if err == nil {
		t.Fatal("Expected error for scalar GET payload")
	}
}

func TestPrepareBodyJSONEncodesStructuredPayload(t *testing.T) {
	payload := map[string]any{"name": "tandem", "count": 3}

	prepared, err := prepareBody(RequestConfig{URL: "http://example.com", Method: MethodPost, Data: payload})
	if err != nil {
		t.Fatalf("prepareBody() returned error: %v", err)
	}

	if prepared.contentType != contentTypeJSON {
		t.Errorf("Expected content type %s, got %s", contentTypeJSON, prepared.contentType)
	}

	raw, _ := io.ReadAll(prepared.body)
	if int64(len(raw)) != prepared.length {
		t.Errorf("Expected length %d, got %d", len(raw), prepared.length)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if decoded["name"] != "tandem" {
		t.Errorf("Expected name=tandem, got %v", decoded["name"])
	}
}

func TestPrepareBodyPassesBinaryThrough(t *testing.T) {
	raw := []byte{0x00, 0x01, 0xfe, 0xff}

	prepared, err := prepareBody(RequestConfig{URL: "http://example.com", Method: MethodPut, Data: raw})
	if err != nil {
		t.Fatalf("prepareBody() returned error: %v", err)
	}

	if prepared.contentType != "" {
		t.Errorf("Expected no implied content type, got %s", prepared.contentType)
	}
	got, _ := io.ReadAll(prepared.body)
	if !bytes.Equal(got, raw) {
		t.Errorf("Expected body %v, got %v", raw, got)
	}
}

func TestPrepareBodyUnknownLengthReader(t *testing.T) {
	r := io.MultiReader(strings.NewReader("a"), strings.NewReader("b"))

	prepared, err := prepareBody(RequestConfig{URL: "http://example.com", Method: MethodPost, Data: r})
	if err != nil {
		t.Fatalf("prepareBody() returned error: %v", err)
	}
	if prepared.length != -1 {
		t.Errorf("Expected unknown length -1, got %d", prepared.length)
	}
}

func TestPrepareBodyEncodeFailure(t *testing.T) {
	_, err := prepareBody(RequestConfig{URL: "http://example.com", Method: MethodPost, Data: make(chan int)})
	if err == nil {
		t.Fatal("Expected JSON encoding error for channel payload")
	}
}

func TestFormDataEncode(t *testing.T) {
	form := NewFormData().Set("name", "report").SetFile("file", "report.txt", []byte("contents"))

	raw, contentType, err := form.Encode()
	if err != nil {
		t.Fatalf("Encode() returned error: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("Expected multipart/form-data, got %s (%v)", contentType, err)
	}

	reader := multipart.NewReader(bytes.NewReader(raw), params["boundary"])
	parsed, err := reader.ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm() returned error: %v", err)
	}
	if got := parsed.Value["name"]; len(got) != 1 || got[0] != "report" {
		t.Errorf("Expected name=report, got %v", got)
	}
	if files := parsed.File["file"]; len(files) != 1 || files[0].Filename != "report.txt" {
		t.Errorf("Expected report.txt file part, got %v", files)
	}
}

func TestNewHTTPRequestKeepsCallerContentType(t *testing.T) {
	cfg := RequestConfig{
		URL:     "http://example.com",
		Method:  MethodPost,
		Headers: map[string]string{"Content-Type": "application/vnd.api+json"},
		Data:    map[string]string{"a": "b"},
	}

	req, _, err := newHTTPRequest(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newHTTPRequest() returned error: %v", err)
	}
	if got := req.Header.Get("Content-Type"); got != "application/vnd.api+json" {
		t.Errorf("Expected caller content type to win, got %s", got)
	}
}

func TestNewHTTPRequestEncodeErrorType(t *testing.T) {
	_, _, err := newHTTPRequest(context.Background(), RequestConfig{URL: "http://example.com", Method: MethodPost, Data: func() {}}, nil)
	if errorType(err) != ErrorTypeEncode {
		t.Errorf("Expected %s error, got %v", ErrorTypeEncode, err)
	}
}

func TestNewHTTPRequestCookiesOnlyWithCredentials(t *testing.T) {
	jar, _ := cookiejar.New(nil)
	u, _ := url.Parse("http://example.com/")
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "abc"}})

	cfg := RequestConfig{URL: "http://example.com/", Method: MethodGet}

	req, _, _ := newHTTPRequest(context.Background(), cfg, jar)
	if _, err := req.Cookie("session"); err == nil {
		t.Error("Expected no cookie without credentials")
	}

	cfg.WithCredentials = Bool(true)
	req, _, _ = newHTTPRequest(context.Background(), cfg, jar)
	if c, err := req.Cookie("session"); err != nil || c.Value != "abc" {
		t.Errorf("Expected session cookie with credentials, got %v (%v)", c, err)
	}
}

func TestNormalizeHeaders(t *testing.T) {
	h := http.Header{}
	h.Add("X-Trace", "a")
	h.Add("X-Trace", "b")
	h.Set("Content-Type", "text/plain")

	got := normalizeHeaders(h)
	if got["x-trace"] != "a, b" {
		t.Errorf("Expected joined values 'a, b', got %q", got["x-trace"])
	}
	if got["content-type"] != "text/plain" {
		t.Errorf("Expected lower-cased content-type key, got %v", got)
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		kind        ResponseType
		contentType string
		body        string
		want        any
		wantErr     bool
	}{
		{name: "auto json", kind: ResponseTypeAuto, contentType: "application/json; charset=utf-8", body: `{"ok":true}`, want: map[string]any{"ok": true}},
		{name: "auto text", kind: ResponseTypeAuto, contentType: "text/plain", body: "hello", want: "hello"},
		{name: "empty json", kind: ResponseTypeJSON, body: "", want: nil},
		{name: "invalid json", kind: ResponseTypeJSON, body: "{", wantErr: true},
		{name: "bytes", kind: ResponseTypeBytes, body: "raw", want: []byte("raw")},
		{name: "unsupported", kind: ResponseType("xml"), body: "<a/>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBody(tt.kind, tt.contentType, []byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeBody() returned error: %v", err)
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if !bytes.Equal(gotJSON, wantJSON) {
				t.Errorf("Expected %s, got %s", wantJSON, gotJSON)
			}
		})
	}
}
