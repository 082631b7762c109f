package fanout

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/types/optional"
	"github.com/goliatone/go-fanout/core"
	"github.com/goliatone/go-fanout/webhooks"
)

func TestRuntime_EnqueueDeliversAndDeactivatesRejectingSubscribers(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []map[string]any
	)
	accepting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()
		_, _ = io.WriteString(w, "Notification Accepted")
	}))
	defer accepting.Close()
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer rejecting.Close()

	runtime, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	ctx := context.Background()
	if err := runtime.Start(ctx); err != nil {
		t.Fatalf("start runtime: %v", err)
	}

	keep, err := runtime.CreateSubscription(ctx, CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "room",
		Action:       optional.Some("update"),
		URL:          accepting.URL,
	})
	if err != nil {
		t.Fatalf("create accepting subscription: %v", err)
	}
	drop, err := runtime.CreateSubscription(ctx, CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "room",
		URL:          rejecting.URL,
	})
	if err != nil {
		t.Fatalf("create rejecting subscription: %v", err)
	}

	runtime.Enqueue(Notification{
		Index:           "hotels",
		ResourceType:    "room",
		ResourceAddress: "room-7",
		Action:          optional.Some("update"),
	})

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := runtime.Close(closeCtx); err != nil {
		t.Fatalf("close runtime: %v", err)
	}
	if runtime.Queue().Stats().Processed != 1 {
		t.Fatalf("expected one processed notification, got %#v", runtime.Queue().Stats())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 1 {
		t.Fatalf("expected one delivery to the accepting subscriber, got %d", len(payloads))
	}
	if payloads[0]["wtIndex"] != "hotels" || payloads[0]["resourceAddress"] != "room-7" {
		t.Fatalf("unexpected payload %#v", payloads[0])
	}

	kept, err := runtime.GetSubscription(ctx, keep.ID)
	if err != nil || !kept.Active {
		t.Fatalf("expected accepting subscription to stay active, got %#v err=%v", kept, err)
	}
	dropped, err := runtime.GetSubscription(ctx, drop.ID)
	if err != nil || dropped.Active {
		t.Fatalf("expected rejecting subscription to be deactivated, got %#v err=%v", dropped, err)
	}
}

func TestRuntime_DispatchReportsOutcomes(t *testing.T) {
	transport := &recordingTransport{accept: map[string]bool{"https://a.example/hook": true}}
	runtime, err := New(DefaultConfig(), WithTransport(transport))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer runtime.Close(context.Background())

	ctx := context.Background()
	for _, url := range []string{"https://a.example/hook", "https://b.example/hook"} {
		if _, err := runtime.CreateSubscription(ctx, CreateSubscriptionInput{Index: "hotels", ResourceType: "room", URL: url}); err != nil {
			t.Fatalf("create %s: %v", url, err)
		}
	}

	report := runtime.Dispatch(ctx, Notification{
		Index:           "hotels",
		ResourceType:    "room",
		ResourceAddress: "room-1",
		Action:          optional.Some("delete"),
	})
	if report.Err != nil {
		t.Fatalf("dispatch: %v", report.Err)
	}
	if report.URLs != 2 || len(report.Accepted) != 1 || len(report.Deactivated) != 1 {
		t.Fatalf("unexpected report %#v", report)
	}
	if report.Deactivated[0] == "" {
		t.Fatalf("expected deactivated subscription id")
	}
	if transport.calls() != 2 {
		t.Fatalf("expected two posts, got %d", transport.calls())
	}
}

func TestRuntime_NilIsInert(t *testing.T) {
	var runtime *Runtime
	runtime.Enqueue(Notification{})
	if err := runtime.Close(context.Background()); err != nil {
		t.Fatalf("expected nil runtime close to succeed, got %v", err)
	}
	if err := runtime.Start(context.Background()); err == nil {
		t.Fatalf("expected nil runtime start to fail")
	}
	if report := runtime.Dispatch(context.Background(), Notification{}); report.Err == nil {
		t.Fatalf("expected nil runtime dispatch to report an error")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dispatch.Concurrency = core.MaxDispatchConcurrency + 1
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected concurrency above the cap to be rejected")
	}
}

type recordingTransport struct {
	mu     sync.Mutex
	accept map[string]bool
	posts  int
}

func (r *recordingTransport) Post(_ context.Context, url string, _ []byte) (core.TransportResponse, error) {
	r.mu.Lock()
	r.posts++
	r.mu.Unlock()
	if r.accept[url] {
		return core.TransportResponse{StatusCode: http.StatusOK, Body: []byte(webhooks.AcceptedBody)}, nil
	}
	return core.TransportResponse{StatusCode: http.StatusOK, Body: []byte("no thanks")}, nil
}

func (r *recordingTransport) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts
}
