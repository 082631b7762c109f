package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alecthomas/types/optional"
)

// Subscription is a persisted rule mapping a notification pattern to a
// delivery URL. ResourceAddress and Action are wildcards when absent.
type Subscription struct {
	ID              string
	Index           string
	ResourceType    string
	ResourceAddress optional.Option[string]
	Action          optional.Option[string]
	URL             string
	Active          bool
	Subjects        []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Subscription) HasSubjects() bool {
	return len(s.Subjects) > 0
}

type CreateSubscriptionInput struct {
	Index           string
	ResourceType    string
	ResourceAddress optional.Option[string]
	Action          optional.Option[string]
	URL             string
	// Active defaults to true when nil.
	Active   *bool
	Subjects []string
}

// Normalize trims every field and collapses blank optionals and empty subject
// lists to their absent form. It is the only place emptiness is interpreted.
func (in CreateSubscriptionInput) Normalize() CreateSubscriptionInput {
	out := CreateSubscriptionInput{
		Index:           strings.TrimSpace(in.Index),
		ResourceType:    strings.TrimSpace(in.ResourceType),
		ResourceAddress: NormalizeOptional(in.ResourceAddress),
		Action:          NormalizeOptional(in.Action),
		URL:             strings.TrimSpace(in.URL),
		Subjects:        NormalizeSubjects(in.Subjects),
	}
	if in.Active != nil {
		active := *in.Active
		out.Active = &active
	}
	return out
}

func (in CreateSubscriptionInput) IsActive() bool {
	if in.Active == nil {
		return true
	}
	return *in.Active
}

func (in CreateSubscriptionInput) Validate() error {
	if in.Index == "" {
		return badInputError("core: subscription index is required", map[string]any{"field": "index"})
	}
	if in.ResourceType == "" {
		return badInputError("core: subscription resource type is required", map[string]any{"field": "resource_type"})
	}
	if in.URL == "" {
		return badInputError("core: subscription url is required", map[string]any{"field": "url"})
	}
	parsed, err := url.Parse(in.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return badInputError(
			fmt.Sprintf("core: subscription url %q must be an absolute http(s) url", in.URL),
			map[string]any{"field": "url"},
		)
	}
	return nil
}

// Notification describes a change to a resource. It is a value object built by
// producers and never persisted.
type Notification struct {
	Index           string
	ResourceType    string
	ResourceAddress string
	Action          optional.Option[string]
	Subjects        []string
}

// NormalizeNotification trims fields, collapses a blank action to absent and
// drops subjects when no action is present.
func NormalizeNotification(n Notification) Notification {
	out := Notification{
		Index:           strings.TrimSpace(n.Index),
		ResourceType:    strings.TrimSpace(n.ResourceType),
		ResourceAddress: strings.TrimSpace(n.ResourceAddress),
		Action:          NormalizeOptional(n.Action),
		Subjects:        NormalizeSubjects(n.Subjects),
	}
	if !out.Action.Ok() {
		out.Subjects = nil
	}
	return out
}

// ValidateForMatch enforces the fields the matching query compares against.
func (n Notification) ValidateForMatch() error {
	switch {
	case n.Index == "":
		return invalidNotificationError("index")
	case n.ResourceType == "":
		return invalidNotificationError("resource_type")
	case n.ResourceAddress == "":
		return invalidNotificationError("resource_address")
	case !n.Action.Ok():
		return invalidNotificationError("action")
	}
	return nil
}

func (n Notification) HasSubjects() bool {
	return len(n.Subjects) > 0
}

// MatchCursor is a position in the (url, id) order of match rows. A cursor
// names the first row a resumed query returns.
type MatchCursor struct {
	URL string
	ID  string
}

func (c MatchCursor) Compare(other MatchCursor) int {
	if cmp := strings.Compare(c.URL, other.URL); cmp != 0 {
		return cmp
	}
	return strings.Compare(c.ID, other.ID)
}

func (c MatchCursor) String() string {
	return c.URL + "#" + c.ID
}

// MatchRow is one (subscription, url) pair produced by the matching query.
type MatchRow struct {
	ID  string
	URL string
}

func (r MatchRow) Cursor() MatchCursor {
	return MatchCursor{URL: r.URL, ID: r.ID}
}

func CompareMatchRows(a, b MatchRow) int {
	return a.Cursor().Compare(b.Cursor())
}

// MatchQuery is the store-facing form of a resolve request. Limit is the
// number of rows to fetch (0 is unbounded); From is inclusive.
type MatchQuery struct {
	Notification Notification
	Limit        int
	From         *MatchCursor
}

// URLSet maps delivery URLs to the subscription ids that resolved to them,
// keeping first-appearance order of URLs and return order of ids.
type URLSet struct {
	order []string
	ids   map[string][]string
	seen  map[MatchCursor]struct{}
}

func NewURLSet() *URLSet {
	return &URLSet{
		ids:  map[string][]string{},
		seen: map[MatchCursor]struct{}{},
	}
}

func (s *URLSet) Add(url string, id string) {
	key := MatchCursor{URL: url, ID: id}
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	if _, ok := s.ids[url]; !ok {
		s.order = append(s.order, url)
	}
	s.ids[url] = append(s.ids[url], id)
}

func (s *URLSet) Merge(other *URLSet) {
	if other == nil {
		return
	}
	for _, url := range other.order {
		for _, id := range other.ids[url] {
			s.Add(url, id)
		}
	}
}

func (s *URLSet) URLs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

func (s *URLSet) IDs(url string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.ids[url]...)
}

// Len reports the number of distinct URLs.
func (s *URLSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *URLSet) Map() map[string][]string {
	out := make(map[string][]string, s.Len())
	if s == nil {
		return out
	}
	for _, url := range s.order {
		out[url] = append([]string(nil), s.ids[url]...)
	}
	return out
}

type MatchPage struct {
	URLs *URLSet
	Next *MatchCursor
}

// NormalizeOptional trims a present value and treats blank as absent.
func NormalizeOptional(value optional.Option[string]) optional.Option[string] {
	raw, ok := value.Get()
	if !ok {
		return optional.None[string]()
	}
	return optional.Zero(strings.TrimSpace(raw))
}

// OptionalString builds an optional from a raw string, blank meaning absent.
func OptionalString(value string) optional.Option[string] {
	return optional.Zero(strings.TrimSpace(value))
}

// NormalizeSubjects trims and de-duplicates subject names, preserving first
// appearance. An empty result is nil, which reads as "no restriction".
func NormalizeSubjects(subjects []string) []string {
	if len(subjects) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		name := strings.TrimSpace(subject)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
