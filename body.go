package tandem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// FormData is a multipart form payload. It is sent unmodified by both
// transports, with its multipart Content-Type unless the caller set one.
type FormData struct {
	fields []formField
	files  []formFile
}

type formField struct {
	name, value string
}

type formFile struct {
	field, filename string
	content         []byte
}

// NewFormData returns an empty form.
func NewFormData() *FormData {
	return &FormData{}
}

// Set appends a text field.
func (f *FormData) Set(name, value string) *FormData {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// SetFile appends a file part.
func (f *FormData) SetFile(field, filename string, content []byte) *FormData {
	f.files = append(f.files, formFile{field: field, filename: filename, content: content})
	return f
}

// Encode renders the form as a multipart body.
func (f *FormData) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.content); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// requestBody is a prepared payload: the final URL, an optional body and
// the Content-Type implied by the serialization.
type requestBody struct {
	url         string
	body        io.Reader
	length      int64
	contentType string
}

// prepareBody applies the payload rules shared by both transports.
func prepareBody(cfg RequestConfig) (*requestBody, error) {
	method := cfg.Method
	if method == "" {
		method = MethodGet
	}
	out := &requestBody{url: cfg.URL, length: -1}
	if cfg.Data == nil {
		out.length = 0
		return out, nil
	}

	if method == MethodGet {
		values, err := queryValues(cfg.Data)
		if err != nil {
			return nil, err
		}
		out.url = appendQuery(cfg.URL, values)
		out.length = 0
		return out, nil
	}

	switch data := cfg.Data.(type) {
	case *FormData:
		raw, contentType, err := data.Encode()
		if err != nil {
			return nil, err
		}
		out.body = bytes.NewReader(raw)
		out.length = int64(len(raw))
		out.contentType = contentType
	case []byte:
		out.body = bytes.NewReader(data)
		out.length = int64(len(data))
	case *bytes.Buffer:
		out.length = int64(data.Len())
		out.body = data
	case *bytes.Reader:
		out.length = int64(data.Len())
		out.body = data
	case *strings.Reader:
		out.length = int64(data.Len())
		out.body = data
	case io.Reader:
		out.body = data
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		out.body = bytes.NewReader(raw)
		out.length = int64(len(raw))
		out.contentType = "application/json"
	}
	return out, nil
}

// queryValues converts a GET payload into query parameters.
func queryValues(data any) (url.Values, error) {
	switch v := data.(type) {
	case url.Values:
		return v, nil
	case map[string]string:
		values := url.Values{}
		for k, s := range v {
			values.Set(k, s)
		}
		return values, nil
	case map[string][]string:
		return url.Values(v), nil
	case map[string]any:
		return valuesFromMap(v), nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("GET payload of type %T cannot be encoded as a query string", data)
	}
	return valuesFromMap(m), nil
}

func valuesFromMap(m map[string]any) url.Values {
	values := url.Values{}
	for k, v := range m {
		switch item := v.(type) {
		case nil:
			values.Set(k, "")
		case []any:
			for _, elem := range item {
				values.Add(k, fmt.Sprint(elem))
			}
		default:
			values.Set(k, fmt.Sprint(item))
		}
	}
	return values
}

func appendQuery(rawURL string, values url.Values) string {
	if len(values) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + values.Encode()
}

// newHTTPRequest builds the *http.Request for cfg and reports the body length
// (-1 when unknown).
func newHTTPRequest(ctx context.Context, cfg RequestConfig, jar http.CookieJar) (*http.Request, *requestBody, error) {
	prepared, err := prepareBody(cfg)
	if err != nil {
		return nil, nil, &ClientError{Type: ErrorTypeEncode, Message: "failed to encode request payload", Cause: err, Method: string(cfg.Method), URL: cfg.URL}
	}
	method := string(cfg.Method)
	if method == "" {
		method = string(MethodGet)
	}
	req, err := http.NewRequestWithContext(ctx, method, prepared.url, prepared.body)
	if err != nil {
		return nil, nil, &ClientError{Type: ErrorTypeValidation, Message: "invalid request", Cause: err, Method: method, URL: prepared.url}
	}
	if prepared.length >= 0 {
		req.ContentLength = prepared.length
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if prepared.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", prepared.contentType)
	}
	if jar != nil && cfg.credentials() {
		for _, cookie := range jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	return req, prepared, nil
}

// storeCookies writes response cookies back into jar when credentials are on.
func storeCookies(jar http.CookieJar, cfg RequestConfig, resp *http.Response) {
	if jar == nil || !cfg.credentials() {
		return
	}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		jar.SetCookies(resp.Request.URL, cookies)
	}
}

// normalizeHeaders lower-cases header names and joins repeated values.
func normalizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

// statusText strips the numeric prefix from resp.Status.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// decodeBody turns the raw body into Response.Data per the response type.
func decodeBody(kind ResponseType, contentType string, body []byte) (any, error) {
	if kind == ResponseTypeAuto {
		kind = ResponseTypeText
		if strings.Contains(strings.ToLower(contentType), "json") {
			kind = ResponseTypeJSON
		}
	}
	switch kind {
	case ResponseTypeBytes:
		return body, nil
	case ResponseTypeText:
		return string(body), nil
	case ResponseTypeJSON:
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, err
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported response type %q", kind)
	}
}

// buildResponse assembles the Response shared by both transports. A body that
// fails to decode is an error only for 2xx responses; otherwise Data holds the
// raw text.
func buildResponse(cfg RequestConfig, resp *http.Response, body []byte) (*Response, error) {
	headers := normalizeHeaders(resp.Header)
	out := &Response{
		Body:       body,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    headers,
	}
	data, err := decodeBody(cfg.ResponseType, headers["content-type"], body)
	if err != nil {
		// Error pages often claim JSON without being JSON; the status
		// decides the outcome there, not the body.
		if !out.OK() {
			out.Data = string(body)
			return out, nil
		}
		return nil, &ClientError{Type: ErrorTypeDecode, Message: "failed to decode response body", Cause: err, StatusCode: resp.StatusCode, Response: out}
	}
	out.Data = data
	return out, nil
}

// decodeInto unmarshals the raw body into out. An empty body leaves out as is.
func decodeInto(resp *Response, out any) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &ClientError{Type: ErrorTypeDecode, Message: "failed to decode response body", Cause: err, StatusCode: resp.Status, Response: resp}
	}
	return nil
}
