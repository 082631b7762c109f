package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-fanout/core"
)

var (
	_ gocmd.Querier[GetSubscriptionMessage, core.Subscription] = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[ResolveMatchesMessage, core.MatchPage]     = (*ResolveMatchesQuery)(nil)
)
