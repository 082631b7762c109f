package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-fanout/core"
)

func TestRESTAdapter_PostsJSON(t *testing.T) {
	var gotMethod, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("X-Receiver", "test")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	res, err := adapter.Post(context.Background(), server.URL, []byte(`{"wtIndex":"hotels"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected json content type, got %q", gotContentType)
	}
	if gotBody != `{"wtIndex":"hotels"}` {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if res.StatusCode != http.StatusInternalServerError || string(res.Body) != "nope" {
		t.Fatalf("expected non-2xx response returned as-is, got %d %q", res.StatusCode, res.Body)
	}
	if res.Headers["X-Receiver"] != "test" {
		t.Fatalf("expected flattened response headers, got %#v", res.Headers)
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Post(context.Background(), server.URL, nil)
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.FanoutErrorTransportFailure {
		t.Fatalf("expected %q text code, got %q", core.FanoutErrorTransportFailure, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestRESTAdapter_ClientFailureIsExternal(t *testing.T) {
	_, err := NewRESTAdapter(failingDoer{}).Post(context.Background(), "http://subscriber.invalid/hook", nil)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.FanoutErrorTransportFailure {
		t.Fatalf("expected transport failure envelope, got %v", err)
	}
}

func TestRESTAdapter_RejectsRelativeURL(t *testing.T) {
	_, err := NewRESTAdapter(failingDoer{}).Post(context.Background(), "/hook", nil)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input envelope, got %v", err)
	}
}

func TestRESTAdapter_NilReturnsRichError(t *testing.T) {
	var adapter *RESTAdapter
	_, err := adapter.Post(context.Background(), "http://a/hook", nil)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.FanoutErrorInternal || rich.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected envelope %#v", rich)
	}
}
