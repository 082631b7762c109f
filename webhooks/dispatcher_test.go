package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/types/optional"

	"github.com/goliatone/go-fanout/core"
	"github.com/goliatone/go-fanout/transport"
)

type receivedRequest struct {
	contentType string
	body        []byte
}

type receiver struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []receivedRequest
}

func newReceiver(t *testing.T, status int, body string) *receiver {
	t.Helper()
	r := &receiver{}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		raw, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, receivedRequest{contentType: req.Header.Get("Content-Type"), body: raw})
		r.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *receiver) hits() []receivedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receivedRequest(nil), r.requests...)
}

func newTestDispatcher(store core.SubscriptionStore, tr core.Transport) *Dispatcher {
	return NewDispatcher(core.NewMatcher(store, nil), store, tr)
}

func mustCreate(t *testing.T, store core.SubscriptionStore, in core.CreateSubscriptionInput) core.Subscription {
	t.Helper()
	sub, err := store.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func hotelNotification() core.Notification {
	return core.Notification{
		Index:           "hotels",
		ResourceType:    "availability",
		ResourceAddress: "abc",
		Action:          optional.Some("update"),
	}
}

func TestDispatcher_DeliversPayloadToWildcardSubscription(t *testing.T) {
	recv := newReceiver(t, http.StatusOK, "notification accepted")
	store := core.NewMemorySubscriptionStore()
	sub := mustCreate(t, store, core.CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "availability",
		URL:          recv.server.URL,
	})

	report := newTestDispatcher(store, transport.NewRESTAdapter(recv.server.Client())).
		ProcessWithReport(context.Background(), hotelNotification())
	if report.Err != nil {
		t.Fatalf("unexpected dispatch error: %v", report.Err)
	}

	hits := recv.hits()
	if len(hits) != 1 {
		t.Fatalf("expected exactly one POST, got %d", len(hits))
	}
	if hits[0].contentType != "application/json" {
		t.Fatalf("expected json content type, got %q", hits[0].contentType)
	}
	want := `{"wtIndex":"hotels","resourceType":"availability","resourceAddress":"abc","scope":{"action":"update"}}`
	if string(hits[0].body) != want {
		t.Fatalf("expected body %s, got %s", want, hits[0].body)
	}
	if !slices.Equal(report.Accepted, []string{recv.server.URL}) {
		t.Fatalf("expected url accepted, got %#v", report)
	}
	got, err := store.Get(context.Background(), sub.ID)
	if err != nil || !got.Active {
		t.Fatalf("expected subscription to remain active, got %#v %v", got, err)
	}
}

func TestDispatcher_DeactivatesOnServerError(t *testing.T) {
	recv := newReceiver(t, http.StatusInternalServerError, "notification accepted")
	store := core.NewMemorySubscriptionStore()
	sub := mustCreate(t, store, core.CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "availability",
		URL:          recv.server.URL,
	})
	logger := newCaptureLogger()
	dispatcher := newTestDispatcher(store, transport.NewRESTAdapter(recv.server.Client()))
	dispatcher.Logger = logger

	report := dispatcher.ProcessWithReport(context.Background(), hotelNotification())
	if !slices.Equal(report.Deactivated, []string{sub.ID}) {
		t.Fatalf("expected subscription deactivated, got %#v", report)
	}
	got, err := store.Get(context.Background(), sub.ID)
	if err != nil || got.Active {
		t.Fatalf("expected inactive subscription, got %#v %v", got, err)
	}
	if !logger.has("info", "deactivating subscription") {
		t.Fatalf("expected deactivation log line")
	}

	page, err := core.NewMatcher(store, nil).Resolve(context.Background(), hotelNotification(), 0, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if page.URLs.Len() != 0 {
		t.Fatalf("expected no matches after deactivation, got %#v", page.URLs.Map())
	}

	second := dispatcher.ProcessWithReport(context.Background(), hotelNotification())
	if second.URLs != 0 || len(recv.hits()) != 1 {
		t.Fatalf("expected repeat dispatch to skip inactive subscription, got %#v", second)
	}
}

func TestDispatcher_AcceptanceIsCaseInsensitiveAndTrimmed(t *testing.T) {
	recv := newReceiver(t, http.StatusOK, "  Notification Accepted \n")
	store := core.NewMemorySubscriptionStore()
	sub := mustCreate(t, store, core.CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "availability",
		URL:          recv.server.URL,
	})

	report := newTestDispatcher(store, transport.NewRESTAdapter(recv.server.Client())).
		ProcessWithReport(context.Background(), hotelNotification())
	if len(report.Accepted) != 1 || len(report.Deactivated) != 0 {
		t.Fatalf("expected mixed-case body accepted, got %#v", report)
	}
	got, _ := store.Get(context.Background(), sub.ID)
	if !got.Active {
		t.Fatalf("expected subscription to stay active")
	}
}

func TestDispatcher_SharedURLSubjectFilter(t *testing.T) {
	recv := newReceiver(t, http.StatusTeapot, "")
	store := core.NewMemorySubscriptionStore()
	open := mustCreate(t, store, core.CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "availability",
		URL:          recv.server.URL,
	})
	restricted := mustCreate(t, store, core.CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "availability",
		URL:          recv.server.URL,
		Subjects:     []string{"x"},
	})
	n := hotelNotification()
	n.Subjects = []string{"y"}

	page, err := core.NewMatcher(store, nil).Resolve(context.Background(), n, 0, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ids := page.URLs.IDs(recv.server.URL); !slices.Equal(ids, []string{open.ID}) {
		t.Fatalf("expected only unrestricted subscription, got %v", ids)
	}

	report := newTestDispatcher(store, transport.NewRESTAdapter(recv.server.Client())).ProcessWithReport(context.Background(), n)
	if !slices.Equal(report.Deactivated, []string{open.ID}) {
		t.Fatalf("expected only matched id deactivated, got %#v", report.Deactivated)
	}
	got, _ := store.Get(context.Background(), restricted.ID)
	if !got.Active {
		t.Fatalf("expected unmatched subscription untouched")
	}
}

func TestDispatcher_OneRequestPerDistinctURL(t *testing.T) {
	recv := newReceiver(t, http.StatusOK, "notification accepted")
	store := core.NewMemorySubscriptionStore()
	for range 3 {
		mustCreate(t, store, core.CreateSubscriptionInput{Index: "hotels", ResourceType: "availability", URL: recv.server.URL})
	}
	report := newTestDispatcher(store, transport.NewRESTAdapter(recv.server.Client())).ProcessWithReport(context.Background(), hotelNotification())
	if report.URLs != 1 || len(recv.hits()) != 1 {
		t.Fatalf("expected single request for shared url, got %d requests", len(recv.hits()))
	}
}

// gatedTransport counts concurrent Post calls and holds each one until the
// gate opens.
type gatedTransport struct {
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
	gate     chan struct{}
	status   func(url string) int
}

func (g *gatedTransport) Post(ctx context.Context, url string, _ []byte) (core.TransportResponse, error) {
	current := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.calls.Add(1)
	for {
		peak := g.peak.Load()
		if current <= peak || g.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return core.TransportResponse{}, ctx.Err()
	}
	status := http.StatusOK
	if g.status != nil {
		status = g.status(url)
	}
	return core.TransportResponse{StatusCode: status, Body: []byte("notification accepted")}, nil
}

func TestDispatcher_ConcurrencyNeverExceedsBound(t *testing.T) {
	store := core.NewMemorySubscriptionStore()
	for i := range 50 {
		mustCreate(t, store, core.CreateSubscriptionInput{
			Index:        "hotels",
			ResourceType: "availability",
			URL:          fmt.Sprintf("http://subscriber-%02d.test/hook", i),
		})
	}
	tr := &gatedTransport{gate: make(chan struct{})}
	dispatcher := newTestDispatcher(store, tr)
	dispatcher.Concurrency = 64
	dispatcher.PageSize = 7

	done := make(chan DispatchReport, 1)
	go func() {
		done <- dispatcher.ProcessWithReport(context.Background(), hotelNotification())
	}()

	deadline := time.After(5 * time.Second)
	for tr.inFlight.Load() < core.MaxDispatchConcurrency {
		select {
		case <-deadline:
			t.Fatalf("expected %d in-flight sends, got %d", core.MaxDispatchConcurrency, tr.inFlight.Load())
		case <-time.After(time.Millisecond):
		}
	}
	close(tr.gate)

	report := <-done
	if tr.peak.Load() > core.MaxDispatchConcurrency {
		t.Fatalf("expected at most %d concurrent sends, observed %d", core.MaxDispatchConcurrency, tr.peak.Load())
	}
	if tr.calls.Load() != 50 || len(report.Accepted) != 50 {
		t.Fatalf("expected every url delivered once across pages, got %d calls", tr.calls.Load())
	}
}

func TestDispatcher_FailureOfOneURLDoesNotAffectOthers(t *testing.T) {
	store := core.NewMemorySubscriptionStore()
	good := mustCreate(t, store, core.CreateSubscriptionInput{Index: "hotels", ResourceType: "availability", URL: "http://good.test/hook"})
	bad := mustCreate(t, store, core.CreateSubscriptionInput{Index: "hotels", ResourceType: "availability", URL: "http://bad.test/hook"})
	tr := &gatedTransport{gate: make(chan struct{}), status: func(url string) int {
		if url == "http://bad.test/hook" {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	}}
	close(tr.gate)

	report := newTestDispatcher(store, tr).ProcessWithReport(context.Background(), hotelNotification())
	if !slices.Equal(report.Deactivated, []string{bad.ID}) || !slices.Equal(report.Accepted, []string{"http://good.test/hook"}) {
		t.Fatalf("unexpected report %#v", report)
	}
	got, _ := store.Get(context.Background(), good.ID)
	if !got.Active {
		t.Fatalf("expected good subscription active")
	}
}

type failingDeactivator struct {
	calls atomic.Int64
}

func (f *failingDeactivator) Deactivate(context.Context, string) (bool, error) {
	f.calls.Add(1)
	return false, errors.New("store unavailable")
}

func TestDispatcher_DeactivationFailuresAreIsolated(t *testing.T) {
	store := core.NewMemorySubscriptionStore()
	first := mustCreate(t, store, core.CreateSubscriptionInput{Index: "hotels", ResourceType: "availability", URL: "http://a.test/hook"})
	second := mustCreate(t, store, core.CreateSubscriptionInput{Index: "hotels", ResourceType: "availability", URL: "http://a.test/hook"})
	deactivator := &failingDeactivator{}
	tr := &gatedTransport{gate: make(chan struct{}), status: func(string) int { return http.StatusNotFound }}
	close(tr.gate)

	dispatcher := NewDispatcher(core.NewMatcher(store, nil), deactivator, tr)
	report := dispatcher.ProcessWithReport(context.Background(), hotelNotification())
	if deactivator.calls.Load() != 2 {
		t.Fatalf("expected one deactivate call per id, got %d", deactivator.calls.Load())
	}
	want := []string{first.ID, second.ID}
	slices.Sort(want)
	if !slices.Equal(report.DeactivationFailures, want) {
		t.Fatalf("expected failures recorded per id, got %#v", report.DeactivationFailures)
	}
	if report.Err != nil {
		t.Fatalf("expected deactivation failures not to fail the dispatch, got %v", report.Err)
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, core.Notification, int, *core.MatchCursor) (core.MatchPage, error) {
	return core.MatchPage{}, errors.New("db down")
}

type panickingTransport struct{}

func (panickingTransport) Post(context.Context, string, []byte) (core.TransportResponse, error) {
	panic("boom")
}

func TestDispatcher_ProcessSwallowsFailures(t *testing.T) {
	logger := newCaptureLogger()
	metrics := core.NewMemoryMetricsRecorder()
	dispatcher := NewDispatcher(failingResolver{}, nil, panickingTransport{})
	dispatcher.Logger = logger
	dispatcher.Metrics = metrics

	dispatcher.Process(context.Background(), hotelNotification())
	if !logger.has("error", "process failed") {
		t.Fatalf("expected match failure logged")
	}
	if metrics.Counter("fanout.dispatch.process.total") != 1 {
		t.Fatalf("expected process metric")
	}

	store := core.NewMemorySubscriptionStore()
	mustCreate(t, store, core.CreateSubscriptionInput{Index: "hotels", ResourceType: "availability", URL: "http://a.test/hook"})
	panicking := newTestDispatcher(store, panickingTransport{})
	panicking.Logger = logger
	report := panicking.ProcessWithReport(context.Background(), hotelNotification())
	if len(report.Rejected) != 1 || !logger.has("error", "delivery panic") {
		t.Fatalf("expected panicking delivery contained, got %#v", report)
	}

	var nilDispatcher *Dispatcher
	nilDispatcher.Process(context.Background(), hotelNotification())
}

func TestDispatcher_InvalidNotificationIsLogged(t *testing.T) {
	logger := newCaptureLogger()
	dispatcher := newTestDispatcher(core.NewMemorySubscriptionStore(), &gatedTransport{})
	dispatcher.Logger = logger
	report := dispatcher.ProcessWithReport(context.Background(), core.Notification{Index: "hotels"})
	if !core.IsInvalidNotification(report.Err) {
		t.Fatalf("expected invalid notification, got %v", report.Err)
	}
}

func TestDispatcher_SendTimeoutCollapsesToRejection(t *testing.T) {
	store := core.NewMemorySubscriptionStore()
	sub := mustCreate(t, store, core.CreateSubscriptionInput{Index: "hotels", ResourceType: "availability", URL: "http://slow.test/hook"})
	dispatcher := newTestDispatcher(store, &gatedTransport{gate: make(chan struct{})})
	dispatcher.SendTimeout = 20 * time.Millisecond

	report := dispatcher.ProcessWithReport(context.Background(), hotelNotification())
	if !slices.Equal(report.Deactivated, []string{sub.ID}) {
		t.Fatalf("expected timed out send to deactivate, got %#v", report)
	}
}

func TestPayload_Encoding(t *testing.T) {
	n := core.Notification{Index: "hotels", ResourceType: "availability", ResourceAddress: "abc"}
	body, err := EncodePayload(n)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(body) != `{"wtIndex":"hotels","resourceType":"availability","resourceAddress":"abc"}` {
		t.Fatalf("expected no scope without action, got %s", body)
	}

	n.Subjects = []string{"x"}
	body, _ = EncodePayload(n)
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["scope"]; ok {
		t.Fatalf("expected subjects dropped without action, got %s", body)
	}

	n.Action = optional.Some("update")
	n.Subjects = []string{"x", "y"}
	body, _ = EncodePayload(n)
	want := `{"wtIndex":"hotels","resourceType":"availability","resourceAddress":"abc","scope":{"action":"update","subjects":["x","y"]}}`
	if string(body) != want {
		t.Fatalf("expected %s, got %s", want, body)
	}

	back, err := DecodePayload(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if action, _ := back.Action.Get(); action != "update" || !slices.Equal(back.Subjects, []string{"x", "y"}) {
		t.Fatalf("unexpected decoded notification %#v", back)
	}
}

func TestAccepted(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		err    error
		want   bool
	}{
		{name: "exact", status: 200, body: "notification accepted", want: true},
		{name: "mixed case", status: 200, body: "Notification Accepted  ", want: true},
		{name: "wrong body", status: 200, body: "ok"},
		{name: "created", status: 201, body: "notification accepted"},
		{name: "transport error", status: 200, body: "notification accepted", err: errors.New("reset")},
	}
	for _, tc := range cases {
		got := Accepted(core.TransportResponse{StatusCode: tc.status, Body: []byte(tc.body)}, tc.err)
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
