package main

import (
	"encoding/json"
	"os"

	gocmd "github.com/goliatone/go-command"

	fanoutcommand "github.com/goliatone/go-fanout/command"
	"github.com/goliatone/go-fanout/core"
	fanoutquery "github.com/goliatone/go-fanout/query"
	"github.com/goliatone/go-fanout/webhooks"
)

type migrateCmd struct{}

func (migrateCmd) Run(app *appContext) error {
	client, err := app.openClient()
	if err != nil {
		return err
	}
	if err := client.Migrate(app.ctx); err != nil {
		return err
	}
	app.logger.Info("migrations applied", "dialect", app.dialect)
	return nil
}

// scopeFlags describe the notification or subscription scope shared by
// several commands.
type scopeFlags struct {
	Index        string   `name:"index" required:"" help:"Index the resource lives in."`
	ResourceType string   `name:"type" required:"" help:"Resource type."`
	Address      string   `name:"address" help:"Resource address."`
	Action       string   `name:"action" help:"Action performed on the resource."`
	Subjects     []string `name:"subject" help:"Subject touched by the action (repeatable)."`
}

func (s scopeFlags) notification() core.Notification {
	return core.Notification{
		Index:           s.Index,
		ResourceType:    s.ResourceType,
		ResourceAddress: s.Address,
		Action:          core.OptionalString(s.Action),
		Subjects:        s.Subjects,
	}
}

type subscribeCmd struct {
	scopeFlags
	URL      string `name:"url" required:"" help:"Webhook URL notifications are POSTed to."`
	Inactive bool   `help:"Create the subscription inactive."`
}

func (c subscribeCmd) Run(app *appContext) error {
	facade, err := app.open()
	if err != nil {
		return err
	}
	in := core.CreateSubscriptionInput{
		Index:           c.Index,
		ResourceType:    c.ResourceType,
		ResourceAddress: core.OptionalString(c.Address),
		Action:          core.OptionalString(c.Action),
		URL:             c.URL,
		Subjects:        c.Subjects,
	}
	if c.Inactive {
		active := false
		in.Active = &active
	}
	collector := gocmd.NewResult[core.Subscription]()
	ctx := gocmd.ContextWithResult(app.ctx, collector)
	if err := facade.Commands().CreateSubscription.Execute(ctx, fanoutcommand.CreateSubscriptionMessage{Input: in}); err != nil {
		return err
	}
	sub, _ := collector.Load()
	return printJSON(newSubscriptionView(sub))
}

type getCmd struct {
	ID string `arg:"" help:"Subscription id."`
}

func (c getCmd) Run(app *appContext) error {
	facade, err := app.open()
	if err != nil {
		return err
	}
	sub, err := facade.Queries().GetSubscription.Query(app.ctx, fanoutquery.GetSubscriptionMessage{SubscriptionID: c.ID})
	if err != nil {
		return err
	}
	return printJSON(newSubscriptionView(sub))
}

type deactivateCmd struct {
	ID string `arg:"" help:"Subscription id."`
}

func (c deactivateCmd) Run(app *appContext) error {
	facade, err := app.open()
	if err != nil {
		return err
	}
	collector := gocmd.NewResult[bool]()
	ctx := gocmd.ContextWithResult(app.ctx, collector)
	if err := facade.Commands().DeactivateSubscription.Execute(ctx, fanoutcommand.DeactivateSubscriptionMessage{SubscriptionID: c.ID}); err != nil {
		return err
	}
	changed, _ := collector.Load()
	return printJSON(map[string]any{"id": c.ID, "changed": changed})
}

type matchCmd struct {
	scopeFlags
	Limit     int    `default:"100" help:"Page size; 0 returns every match in one page."`
	CursorURL string `name:"cursor-url" help:"Resume from this URL (inclusive)."`
	CursorID  string `name:"cursor-id" help:"Resume from this subscription id (inclusive)."`
	All       bool   `help:"Follow cursors until the last page."`
}

func (c matchCmd) Run(app *appContext) error {
	facade, err := app.open()
	if err != nil {
		return err
	}
	var cursor *core.MatchCursor
	if c.CursorURL != "" {
		cursor = &core.MatchCursor{URL: c.CursorURL, ID: c.CursorID}
	}
	pages := []matchPageView{}
	for {
		page, err := facade.Queries().ResolveMatches.Query(app.ctx, fanoutquery.ResolveMatchesMessage{
			Notification: c.notification(),
			Limit:        c.Limit,
			Cursor:       cursor,
		})
		if err != nil {
			return err
		}
		pages = append(pages, newMatchPageView(page))
		if !c.All || page.Next == nil {
			break
		}
		cursor = page.Next
	}
	return printJSON(pages)
}

type notifyCmd struct {
	scopeFlags
	Async bool `help:"Hand the notification to the ingress queue and wait for it to drain."`
}

func (c notifyCmd) Run(app *appContext) error {
	facade, err := app.open()
	if err != nil {
		return err
	}
	n := c.notification()
	if c.Async {
		if err := facade.Commands().EnqueueNotification.Execute(app.ctx, fanoutcommand.EnqueueNotificationMessage{Notification: n}); err != nil {
			return err
		}
		if err := app.runtime.Close(app.ctx); err != nil {
			return err
		}
		return printJSON(app.runtime.Queue().Stats())
	}

	collector := gocmd.NewResult[webhooks.DispatchReport]()
	ctx := gocmd.ContextWithResult(app.ctx, collector)
	if err := facade.Commands().DispatchNotification.Execute(ctx, fanoutcommand.DispatchNotificationMessage{Notification: n}); err != nil {
		return err
	}
	report, _ := collector.Load()
	return printJSON(newDispatchReportView(report))
}

type subscriptionView struct {
	ID              string   `json:"id"`
	Index           string   `json:"wtIndex"`
	ResourceType    string   `json:"resourceType"`
	ResourceAddress *string  `json:"resourceAddress"`
	Action          *string  `json:"action"`
	Subjects        []string `json:"subjects,omitempty"`
	URL             string   `json:"url"`
	Active          bool     `json:"active"`
}

func newSubscriptionView(sub core.Subscription) subscriptionView {
	return subscriptionView{
		ID:              sub.ID,
		Index:           sub.Index,
		ResourceType:    sub.ResourceType,
		ResourceAddress: sub.ResourceAddress.Ptr(),
		Action:          sub.Action.Ptr(),
		Subjects:        sub.Subjects,
		URL:             sub.URL,
		Active:          sub.Active,
	}
}

type matchPageView struct {
	URLs map[string][]string `json:"urls"`
	Next *core.MatchCursor   `json:"next,omitempty"`
}

func newMatchPageView(page core.MatchPage) matchPageView {
	view := matchPageView{URLs: map[string][]string{}, Next: page.Next}
	if page.URLs != nil {
		view.URLs = page.URLs.Map()
	}
	return view
}

type dispatchReportView struct {
	URLs                 int      `json:"urls"`
	Accepted             []string `json:"accepted"`
	Rejected             []string `json:"rejected"`
	Deactivated          []string `json:"deactivated"`
	DeactivationFailures []string `json:"deactivationFailures,omitempty"`
}

func newDispatchReportView(report webhooks.DispatchReport) dispatchReportView {
	return dispatchReportView{
		URLs:                 report.URLs,
		Accepted:             report.Accepted,
		Rejected:             report.Rejected,
		Deactivated:          report.Deactivated,
		DeactivationFailures: report.DeactivationFailures,
	}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
