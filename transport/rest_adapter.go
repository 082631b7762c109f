package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fanout/core"
)

const KindREST = "rest"

const defaultRESTClientTimeout = 30 * time.Second
const defaultRESTResponseBodyLimit int64 = 1 << 20 // 1 MiB

const (
	defaultUserAgent = "go-fanout"
	contentTypeJSON  = "application/json"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter POSTs JSON bodies over HTTP. Any status code is returned as a
// response; only transport level failures are errors.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client: client,
		DefaultHeaders: map[string]string{
			"User-Agent": defaultUserAgent,
		},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

// Post sends body to rawURL. Failures to reach the endpoint or read its
// answer are external errors; a bad URL is bad input.
func (a *RESTAdapter) Post(ctx context.Context, rawURL string, body []byte) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError(
			"transport: rest adapter requires an http client",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindREST},
		)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := a.newRequest(ctx, rawURL, body)
	if err != nil {
		return core.TransportResponse{}, err
	}
	meta := map[string]any{"adapter": KindREST, "url": req.URL.String()}

	startedAt := time.Now()
	res, err := a.Client.Do(req)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(err, goerrors.CategoryExternal,
			"transport: execute http request", http.StatusBadGateway, meta)
	}
	defer res.Body.Close()

	meta["status_code"] = res.StatusCode
	resBody, err := readLimited(res.Body, resolveResponseBodyLimit(a.MaxResponseBodyBytes), meta)
	if err != nil {
		return core.TransportResponse{}, err
	}
	return core.TransportResponse{
		StatusCode: res.StatusCode,
		Headers:    flattenHeaders(res.Header),
		Body:       resBody,
		DurationMS: time.Since(startedAt).Milliseconds(),
	}, nil
}

func (a *RESTAdapter) newRequest(ctx context.Context, rawURL string, body []byte) (*http.Request, error) {
	target := strings.TrimSpace(rawURL)
	meta := map[string]any{"adapter": KindREST, "url": target}
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: invalid request url", http.StatusBadRequest, meta)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, transportError("transport: request url must be absolute",
			goerrors.CategoryBadInput, http.StatusBadRequest, meta)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsed.String(), bytes.NewReader(body))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput,
			"transport: create http request", http.StatusBadRequest, meta)
	}
	for key, value := range a.DefaultHeaders {
		if key = strings.TrimSpace(key); key != "" {
			req.Header.Set(key, strings.TrimSpace(value))
		}
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	return req, nil
}

// readLimited reads at most limit bytes and fails when the body is longer.
func readLimited(r io.Reader, limit int64, meta map[string]any) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryExternal,
			"transport: read response body", http.StatusBadGateway, meta)
	}
	if int64(len(body)) > limit {
		meta["response_limit_b"] = limit
		return nil, transportError(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			goerrors.CategoryExternal, http.StatusBadGateway, meta)
	}
	return body, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(adapterLimit int64) int64 {
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}

var _ core.Transport = (*RESTAdapter)(nil)
