package sqlstore

import (
	"time"

	"github.com/alecthomas/types/optional"
	"github.com/goliatone/go-fanout/core"
	"github.com/uptrace/bun"
)

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:fanout_subscriptions,alias:fs"`

	ID              string    `bun:"id,pk"`
	Index           string    `bun:"wt_index,notnull"`
	ResourceType    string    `bun:"resource_type,notnull"`
	ResourceAddress *string   `bun:"resource_address"`
	Action          *string   `bun:"action"`
	URL             string    `bun:"url,notnull"`
	Active          bool      `bun:"active,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type subjectRecord struct {
	bun.BaseModel `bun:"table:fanout_subscription_subjects,alias:fss"`

	ID             string    `bun:"id,pk"`
	SubscriptionID string    `bun:"subscription_id,notnull"`
	Name           string    `bun:"name,notnull"`
	Position       int       `bun:"position,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newSubscriptionRecord(in core.CreateSubscriptionInput, now time.Time) *subscriptionRecord {
	return &subscriptionRecord{
		Index:           in.Index,
		ResourceType:    in.ResourceType,
		ResourceAddress: in.ResourceAddress.Ptr(),
		Action:          in.Action.Ptr(),
		URL:             in.URL,
		Active:          in.IsActive(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func newSubjectRecords(subscriptionID string, subjects []string, now time.Time, newID func() string) []*subjectRecord {
	records := make([]*subjectRecord, 0, len(subjects))
	for i, name := range subjects {
		records = append(records, &subjectRecord{
			ID:             newID(),
			SubscriptionID: subscriptionID,
			Name:           name,
			Position:       i,
			CreatedAt:      now,
		})
	}
	return records
}

func (r *subscriptionRecord) toDomain(subjects []string) core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	return core.Subscription{
		ID:              r.ID,
		Index:           r.Index,
		ResourceType:    r.ResourceType,
		ResourceAddress: optionalFromPtr(r.ResourceAddress),
		Action:          optionalFromPtr(r.Action),
		URL:             r.URL,
		Active:          r.Active,
		Subjects:        subjects,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func optionalFromPtr(value *string) optional.Option[string] {
	if value == nil {
		return optional.None[string]()
	}
	return core.OptionalString(*value)
}
