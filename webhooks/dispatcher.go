package webhooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-fanout/core"
)

const LoggerName = "fanout.dispatcher"

// DispatchReport summarizes one Process call.
type DispatchReport struct {
	URLs                 int
	Accepted             []string
	Rejected             []string
	Deactivated          []string
	DeactivationFailures []string
	Err                  error
}

type Dispatcher struct {
	Resolver    core.MatchResolver
	Deactivator core.SubscriptionDeactivator
	Transport   core.Transport
	// Concurrency caps in-flight sends per Process call. Values outside
	// 1..core.MaxDispatchConcurrency fall back to the maximum.
	Concurrency int
	// PageSize is the match page size; zero resolves in a single query.
	PageSize    int
	SendTimeout time.Duration
	Logger      core.Logger
	Metrics     core.MetricsRecorder
	Now         func() time.Time
}

func NewDispatcher(resolver core.MatchResolver, deactivator core.SubscriptionDeactivator, transport core.Transport) *Dispatcher {
	return &Dispatcher{
		Resolver:    resolver,
		Deactivator: deactivator,
		Transport:   transport,
		Concurrency: core.MaxDispatchConcurrency,
		PageSize:    core.DefaultDispatchPageSize,
		Logger:      glog.Nop(),
		Metrics:     core.NopMetricsRecorder{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewDispatcherFromService wires a dispatcher to the service store, matcher
// and dispatch configuration.
func NewDispatcherFromService(svc *core.Service) (*Dispatcher, error) {
	if svc == nil {
		return nil, fmt.Errorf("webhooks: service is required")
	}
	deps := svc.Dependencies()
	if deps.Transport == nil {
		return nil, fmt.Errorf("webhooks: service transport is required")
	}
	cfg := svc.Config().Dispatch
	d := NewDispatcher(svc.Matcher(), deps.SubscriptionStore, deps.Transport)
	d.Concurrency = cfg.Concurrency
	d.PageSize = cfg.PageSize
	d.SendTimeout = cfg.SendTimeout()
	d.Logger = svc.Logger(LoggerName)
	d.Metrics = deps.MetricsRecorder
	return d, nil
}

// Process delivers n to every interested subscriber. It never returns an
// error and never panics; failures are logged.
func (d *Dispatcher) Process(ctx context.Context, n core.Notification) {
	_ = d.ProcessWithReport(ctx, n)
}

func (d *Dispatcher) ProcessWithReport(ctx context.Context, n core.Notification) (report DispatchReport) {
	startedAt := d.now()
	observer := d.observer()
	fields := core.NotificationFields(n)
	defer func() {
		if recovered := recover(); recovered != nil {
			report.Err = fmt.Errorf("webhooks: dispatch panic: %v", recovered)
		}
		fields["urls"] = report.URLs
		fields["accepted"] = len(report.Accepted)
		fields["rejected"] = len(report.Rejected)
		fields["deactivated"] = len(report.Deactivated)
		observer.Observe(ctx, startedAt, "process", report.Err, fields)
	}()

	if d == nil || d.Resolver == nil || d.Transport == nil {
		report.Err = fmt.Errorf("webhooks: dispatcher requires resolver and transport")
		return report
	}

	urls, err := d.collect(ctx, n)
	if err != nil {
		report.Err = err
		return report
	}
	report.URLs = urls.Len()
	if urls.Len() == 0 {
		return report
	}

	body, err := EncodePayload(n)
	if err != nil {
		report.Err = err
		return report
	}

	var mu sync.Mutex
	group := new(errgroup.Group)
	group.SetLimit(d.concurrency())
	for _, url := range urls.URLs() {
		ids := urls.IDs(url)
		group.Go(func() error {
			outcome := d.deliver(ctx, observer, url, ids, body)
			mu.Lock()
			defer mu.Unlock()
			if outcome.accepted {
				report.Accepted = append(report.Accepted, url)
				return nil
			}
			report.Rejected = append(report.Rejected, url)
			report.Deactivated = append(report.Deactivated, outcome.deactivated...)
			report.DeactivationFailures = append(report.DeactivationFailures, outcome.failed...)
			return nil
		})
	}
	_ = group.Wait()

	sort.Strings(report.Accepted)
	sort.Strings(report.Rejected)
	sort.Strings(report.Deactivated)
	sort.Strings(report.DeactivationFailures)
	return report
}

// collect drives the resolver across every page before any send starts.
func (d *Dispatcher) collect(ctx context.Context, n core.Notification) (*core.URLSet, error) {
	urls := core.NewURLSet()
	var cursor *core.MatchCursor
	for {
		page, err := d.Resolver.Resolve(ctx, n, d.pageSize(), cursor)
		if err != nil {
			return nil, err
		}
		urls.Merge(page.URLs)
		if page.Next == nil {
			return urls, nil
		}
		if cursor != nil && cursor.Compare(*page.Next) == 0 {
			return nil, fmt.Errorf("webhooks: match cursor %s did not advance", page.Next)
		}
		cursor = page.Next
	}
}

type deliveryOutcome struct {
	accepted    bool
	deactivated []string
	failed      []string
}

func (d *Dispatcher) deliver(ctx context.Context, observer core.Observer, url string, ids []string, body []byte) (outcome deliveryOutcome) {
	tags := map[string]string{}
	defer func() {
		if recovered := recover(); recovered != nil {
			observer.Error(ctx, "delivery panic", map[string]any{"url": url, "panic": fmt.Sprint(recovered)})
			outcome.failed = append(outcome.failed, ids...)
		}
	}()

	startedAt := d.now()
	resp, err := d.send(ctx, url, body)
	observer.Histogram(ctx, "send.duration_ms", float64(d.now().Sub(startedAt).Milliseconds()), tags)
	observer.Count(ctx, "sent", 1, tags)

	if Accepted(resp, err) {
		observer.Count(ctx, "accepted", 1, tags)
		outcome.accepted = true
		return outcome
	}
	observer.Count(ctx, "rejected", 1, tags)
	fields := map[string]any{"url": url, "status_code": resp.StatusCode}
	if err != nil {
		fields["error"] = err.Error()
	}
	observer.Warn(ctx, "delivery not accepted", fields)

	for _, id := range ids {
		observer.Info(ctx, "deactivating subscription", map[string]any{"subscription_id": id, "url": url})
		changed, err := d.deactivate(ctx, id)
		if err != nil {
			observer.Count(ctx, "deactivation_failed", 1, tags)
			observer.Error(ctx, "deactivate subscription failed", map[string]any{
				"subscription_id": id,
				"url":             url,
				"error":           err.Error(),
			})
			outcome.failed = append(outcome.failed, id)
			continue
		}
		if changed {
			observer.Count(ctx, "deactivated", 1, tags)
			outcome.deactivated = append(outcome.deactivated, id)
		}
	}
	return outcome
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte) (core.TransportResponse, error) {
	if d.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.SendTimeout)
		defer cancel()
	}
	return d.Transport.Post(ctx, url, body)
}

func (d *Dispatcher) deactivate(ctx context.Context, id string) (bool, error) {
	if d.Deactivator == nil {
		return false, fmt.Errorf("webhooks: deactivator is not configured")
	}
	return d.Deactivator.Deactivate(ctx, id)
}

func (d *Dispatcher) concurrency() int {
	if d.Concurrency < 1 || d.Concurrency > core.MaxDispatchConcurrency {
		return core.MaxDispatchConcurrency
	}
	return d.Concurrency
}

func (d *Dispatcher) pageSize() int {
	if d.PageSize < 0 {
		return core.DefaultDispatchPageSize
	}
	return d.PageSize
}

func (d *Dispatcher) observer() core.Observer {
	if d == nil {
		return core.NewObserver("fanout.dispatch", nil, nil)
	}
	return core.NewObserver("fanout.dispatch", d.Logger, d.Metrics)
}

func (d *Dispatcher) now() time.Time {
	if d == nil || d.Now == nil {
		return time.Now().UTC()
	}
	return d.Now()
}

var _ core.NotificationProcessor = (*Dispatcher)(nil)
