package core

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// MatchesSubscription reports whether sub is interested in n. Both values
// are expected to be normalized.
func MatchesSubscription(sub Subscription, n Notification) bool {
	if !sub.Active {
		return false
	}
	if sub.Index != n.Index || sub.ResourceType != n.ResourceType {
		return false
	}
	if address, ok := sub.ResourceAddress.Get(); ok && address != n.ResourceAddress {
		return false
	}
	if action, ok := sub.Action.Get(); ok {
		wanted, present := n.Action.Get()
		if !present || action != wanted {
			return false
		}
	}
	if n.HasSubjects() && sub.HasSubjects() {
		return mapset.NewThreadUnsafeSet(sub.Subjects...).ContainsAny(n.Subjects...)
	}
	return true
}

// MemorySubscriptionStore keeps subscriptions in process memory.
type MemorySubscriptionStore struct {
	mu      sync.RWMutex
	records map[string]Subscription
	now     func() time.Time
}

func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{
		records: map[string]Subscription{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemorySubscriptionStore) Create(_ context.Context, in CreateSubscriptionInput) (Subscription, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return Subscription{}, err
	}
	now := s.now()
	sub := Subscription{
		ID:              uuid.NewString(),
		Index:           in.Index,
		ResourceType:    in.ResourceType,
		ResourceAddress: in.ResourceAddress,
		Action:          in.Action,
		URL:             in.URL,
		Active:          in.IsActive(),
		Subjects:        append([]string(nil), in.Subjects...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.mu.Lock()
	s.records[sub.ID] = sub
	s.mu.Unlock()
	return cloneSubscription(sub), nil
}

func (s *MemorySubscriptionStore) Get(_ context.Context, id string) (Subscription, error) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	sub, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return Subscription{}, NotFoundError(id)
	}
	return cloneSubscription(sub), nil
}

func (s *MemorySubscriptionStore) Deactivate(_ context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.records[id]
	if !ok || !sub.Active {
		return false, nil
	}
	sub.Active = false
	sub.UpdatedAt = s.now()
	s.records[id] = sub
	return true, nil
}

func (s *MemorySubscriptionStore) MatchQuery(_ context.Context, query MatchQuery) ([]MatchRow, error) {
	n := NormalizeNotification(query.Notification)
	s.mu.RLock()
	rows := make([]MatchRow, 0, len(s.records))
	for _, sub := range s.records {
		if !MatchesSubscription(sub, n) {
			continue
		}
		row := MatchRow{ID: sub.ID, URL: sub.URL}
		if query.From != nil && row.Cursor().Compare(*query.From) < 0 {
			continue
		}
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	slices.SortFunc(rows, CompareMatchRows)
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}
	return rows, nil
}

func cloneSubscription(sub Subscription) Subscription {
	sub.Subjects = append([]string(nil), sub.Subjects...)
	if len(sub.Subjects) == 0 {
		sub.Subjects = nil
	}
	return sub
}

var _ SubscriptionStore = (*MemorySubscriptionStore)(nil)
