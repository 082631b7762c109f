package core

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"
)

// Matcher resolves the delivery URLs interested in a notification, one
// keyset page at a time.
type Matcher struct {
	querier MatchQuerier
	logger  Logger
}

func NewMatcher(querier MatchQuerier, logger Logger) *Matcher {
	return &Matcher{
		querier: querier,
		logger:  glog.Ensure(logger),
	}
}

// Resolve returns the URLs of the active subscriptions matching n, grouped
// with the subscription ids that produced them. A limit of zero returns every
// match. When more matches remain, Next is the cursor to pass on the
// following call; it is nil on the last page.
func (m *Matcher) Resolve(ctx context.Context, n Notification, limit int, cursor *MatchCursor) (MatchPage, error) {
	if m == nil || m.querier == nil {
		return MatchPage{}, fmt.Errorf("core: matcher store is required")
	}
	n = NormalizeNotification(n)
	if err := n.ValidateForMatch(); err != nil {
		return MatchPage{}, err
	}
	if limit < 0 {
		return MatchPage{}, badInputError("core: match limit must not be negative", map[string]any{"limit": limit})
	}

	rows, err := m.collect(ctx, n, limit, cursor)
	if err != nil {
		return MatchPage{}, err
	}
	page, boundary := SeekPage(rows, limit, CompareMatchRows)

	urls := NewURLSet()
	for _, row := range page {
		urls.Add(row.URL, row.ID)
	}
	result := MatchPage{URLs: urls}
	if next, ok := boundary.Get(); ok {
		c := next.Cursor()
		result.Next = &c
	}
	m.logger.Debug("match page resolved",
		"index", n.Index,
		"resource_type", n.ResourceType,
		"rows", len(page),
		"urls", urls.Len(),
		"has_next", result.Next != nil,
	)
	return result, nil
}

// collect fetches until it holds limit+1 distinct rows or the store is
// exhausted. Stores may repeat a row when joins fan out, so a fetch that
// makes no progress past its inclusive start is retried with twice the size.
func (m *Matcher) collect(ctx context.Context, n Notification, limit int, cursor *MatchCursor) ([]MatchRow, error) {
	fetch := 0
	if limit > 0 {
		fetch = limit + 1
	}
	from := cursor
	var collected []MatchRow
	for {
		rows, err := m.querier.MatchQuery(ctx, MatchQuery{Notification: n, Limit: fetch, From: from})
		if err != nil {
			return nil, StoreError(err, "core: match query failed")
		}
		if fetch == 0 || len(rows) < fetch {
			return append(collected, rows...), nil
		}
		last := rows[len(rows)-1].Cursor()
		if from != nil && from.Compare(last) == 0 {
			fetch *= 2
			continue
		}
		collected = append(collected, rows...)
		if _, boundary := SeekPage(collected, limit, CompareMatchRows); boundary.Ok() {
			return collected, nil
		}
		from = &last
	}
}
