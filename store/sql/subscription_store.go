package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-fanout/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SubscriptionStore struct {
	db       *bun.DB
	repo     repository.Repository[*subscriptionRecord]
	subjects repository.Repository[*subjectRecord]
	now      func() time.Time
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	subjects := repository.NewRepository[*subjectRecord](db, subjectHandlers())
	if validator, ok := subjects.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subject repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{
		db:       db,
		repo:     repo,
		subjects: subjects,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create writes the subscription row and its subject bindings in one
// transaction.
func (s *SubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Subscription{}, err
	}
	now := s.now()

	var out core.Subscription
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := newSubscriptionRecord(in, now)
		record.ID = uuid.NewString()
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return err
		}
		subjects := newSubjectRecords(record.ID, in.Subjects, now, uuid.NewString)
		if len(subjects) > 0 {
			if _, err := tx.NewInsert().Model(&subjects).Exec(ctx); err != nil {
				return err
			}
		}
		out = record.toDomain(append([]string(nil), in.Subjects...))
		return nil
	})
	if err != nil {
		return core.Subscription{}, err
	}
	return out, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.repo == nil || s.subjects == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Subscription{}, core.NotFoundError(id)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Subscription{}, err
	}
	if len(records) == 0 || records[0] == nil {
		return core.Subscription{}, core.NotFoundError(id)
	}
	subjects, err := s.loadSubjects(ctx, id)
	if err != nil {
		return core.Subscription{}, err
	}
	return records[0].toDomain(subjects), nil
}

// Deactivate flips active to false. It reports false when the row is missing
// or already inactive.
func (s *SubscriptionStore) Deactivate(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	result, err := s.db.NewUpdate().
		Model((*subscriptionRecord)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", s.now()).
		Where("id = ?", id).
		Where("active = ?", true).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type matchRowRecord struct {
	ID  string `bun:"id"`
	URL string `bun:"url"`
}

// MatchQuery runs the wildcard match as a single keyset-paginated select.
// Subject intersection uses EXISTS so a subscription appears at most once.
func (s *SubscriptionStore) MatchQuery(ctx context.Context, query core.MatchQuery) ([]core.MatchRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	n := core.NormalizeNotification(query.Notification)

	q := s.db.NewSelect().
		Model((*subscriptionRecord)(nil)).
		ColumnExpr("?TableAlias.id, ?TableAlias.url").
		Where("?TableAlias.wt_index = ?", n.Index).
		Where("?TableAlias.resource_type = ?", n.ResourceType).
		Where("?TableAlias.active = ?", true).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.resource_address = ?", n.ResourceAddress).
				WhereOr("?TableAlias.resource_address IS NULL")
		})

	if action, ok := n.Action.Get(); ok {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.action = ?", action).
				WhereOr("?TableAlias.action IS NULL")
		})
	} else {
		q = q.Where("?TableAlias.action IS NULL")
	}

	if n.HasSubjects() {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("NOT EXISTS (SELECT 1 FROM fanout_subscription_subjects AS fss WHERE fss.subscription_id = ?TableAlias.id)").
				WhereOr(
					"EXISTS (SELECT 1 FROM fanout_subscription_subjects AS fss WHERE fss.subscription_id = ?TableAlias.id AND fss.name IN (?))",
					bun.In(n.Subjects),
				)
		})
	}

	if from := query.From; from != nil {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.url > ?", from.URL).
				WhereOr("?TableAlias.url = ? AND ?TableAlias.id >= ?", from.URL, from.ID)
		})
	}

	q = q.OrderExpr("?TableAlias.url ASC, ?TableAlias.id ASC")
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var records []matchRowRecord
	if err := q.Scan(ctx, &records); err != nil {
		return nil, err
	}
	rows := make([]core.MatchRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, core.MatchRow{ID: record.ID, URL: record.URL})
	}
	return rows, nil
}

func (s *SubscriptionStore) loadSubjects(ctx context.Context, subscriptionID string) ([]string, error) {
	records, _, err := s.subjects.List(ctx,
		repository.SelectBy("subscription_id", "=", subscriptionID),
		repository.OrderBy("position ASC"),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	subjects := make([]string, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		subjects = append(subjects, record.Name)
	}
	return subjects, nil
}
