package adapters_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/types/optional"
	"github.com/goliatone/go-command"
	"github.com/goliatone/go-fanout/adapters/gocommand"
	"github.com/goliatone/go-fanout/adapters/gojob"
	"github.com/goliatone/go-fanout/adapters/gologger"
	fanoutcommand "github.com/goliatone/go-fanout/command"
	"github.com/goliatone/go-fanout/core"
	"github.com/goliatone/go-fanout/inbound"
	"github.com/goliatone/go-fanout/transport"
	"github.com/goliatone/go-fanout/webhooks"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// TestRuntimeCompatibility_JobQueueToWebhook runs a notification from a go-job
// publisher through the consumer, the inbound queue and the dispatcher to a
// real HTTP receiver.
func TestRuntimeCompatibility_JobQueueToWebhook(t *testing.T) {
	ctx := context.Background()

	accepting := newReceiver(t, http.StatusOK, webhooks.AcceptedBody)
	rejecting := newReceiver(t, http.StatusOK, "nope")

	provider, logger, jobProvider, jobLogger := gologger.ResolveForJob("fanout", gologger.NewProvider(io.Discard, "debug", false), nil)
	if jobProvider == nil || jobLogger == nil || logger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	svc, err := core.NewService(core.DefaultConfig(),
		core.WithLoggerProvider(provider),
		core.WithTransport(transport.NewRESTAdapter(nil)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	keep := mustSubscribe(t, svc, accepting.URL)
	drop := mustSubscribe(t, svc, rejecting.URL)

	dispatcher, err := webhooks.NewDispatcherFromService(svc)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	q, err := inbound.NewQueueFromService(svc, dispatcher)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	broker := newMemoryBroker()
	publisher := gojob.NewPublisher(broker)
	consumer, err := gojob.NewConsumer(broker, q, gojob.WithConsumerLogger(svc.Logger("fanout.jobs")))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	n := core.Notification{Index: "hotels", ResourceType: "room", ResourceAddress: "room-1", Action: optional.Some("update")}
	if err := publisher.Publish(ctx, n, "idem-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return rejecting.hits() == 1 && accepting.hits() == 1 && q.Stats().Processed == 1 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("consumer run: %v", err)
	}
	closeCtx, closeCancel := context.WithTimeout(ctx, 5*time.Second)
	defer closeCancel()
	if err := q.Close(closeCtx); err != nil {
		t.Fatalf("close queue: %v", err)
	}

	kept, err := svc.GetSubscription(ctx, keep.ID)
	if err != nil || !kept.Active {
		t.Fatalf("expected accepting subscription to stay active, got %#v err=%v", kept, err)
	}
	dropped, err := svc.GetSubscription(ctx, drop.ID)
	if err != nil || dropped.Active {
		t.Fatalf("expected rejecting subscription to be deactivated, got %#v err=%v", dropped, err)
	}
}

func TestRuntimeCompatibility_CommandsMirrorIntoJobRegistry(t *testing.T) {
	svc, err := core.NewService(core.DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	bindings, err := gocommand.RegisterFanout(adapter, gocommand.Handlers{Subscriptions: svc, Resolver: svc})
	if err != nil {
		t.Fatalf("register fanout: %v", err)
	}
	defer bindings.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(fanoutcommand.TypeCreateSubscription); !ok {
		t.Fatalf("expected create command mirrored into go-job queue registry")
	}
}

func mustSubscribe(t *testing.T, svc *core.Service, url string) core.Subscription {
	t.Helper()
	sub, err := svc.CreateSubscription(context.Background(), core.CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "room",
		URL:          url,
	})
	if err != nil {
		t.Fatalf("create subscription %s: %v", url, err)
	}
	return sub
}

type receiver struct {
	*httptest.Server
	mu    sync.Mutex
	count int
}

func newReceiver(t *testing.T, status int, body string) *receiver {
	t.Helper()
	r := &receiver{}
	r.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.Copy(io.Discard, req.Body)
		r.mu.Lock()
		r.count++
		r.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(r.Close)
	return r
}

func (r *receiver) hits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

type memoryBroker struct {
	messages chan *job.ExecutionMessage
}

func newMemoryBroker() *memoryBroker {
	return &memoryBroker{messages: make(chan *job.ExecutionMessage, 8)}
}

func (b *memoryBroker) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	b.messages <- msg
	return queue.EnqueueReceipt{DispatchID: msg.IdempotencyKey, EnqueuedAt: time.Now()}, nil
}

func (b *memoryBroker) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case msg := <-b.messages:
		return &memoryDelivery{msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memoryDelivery struct {
	msg *job.ExecutionMessage
}

func (d *memoryDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *memoryDelivery) Ack(context.Context) error { return nil }

func (d *memoryDelivery) Nack(context.Context, queue.NackOptions) error { return nil }
