// Package readmodel implements the query side of the Labour read models: cursor-paginated projections built by pkg/projection from
// the event log, queried per spec.md §6.5 (limit, cursor?) → up to
// limit+1 rows ordered by (updated_at DESC, id DESC), trimmed and
// annotated with next_cursor.
package readmodel

import "time"

// LabourSummary is the at-a-glance view of a labour used by list/detail
// queries: current phase, subscriber count, no per-event detail.
type LabourSummary struct {
	LabourID      string
	MotherID      string
	LabourName    string
	Phase         string
	BegunAt       *time.Time
	CompletedAt   *time.Time
	Deleted       bool
	SubscriberCount int
	UpdatedAt     time.Time
}

// LabourUpdateRow is one row of the labour-updates read model.
type LabourUpdateRow struct {
	UpdateID  string
	LabourID  string
	Type      string
	Message   string
	Deleted   bool
	PostedAt  time.Time
	UpdatedAt time.Time
}

func (r LabourUpdateRow) ID() string          { return r.UpdateID }
func (r LabourUpdateRow) SortKey() time.Time  { return r.UpdatedAt }

// SubscriptionRow is one row of the subscription read model.
type SubscriptionRow struct {
	SubscriptionID string
	LabourID       string
	SubscriberID   string
	Role           string
	Status         string
	AccessLevel    string
	UpdatedAt      time.Time
}

func (r SubscriptionRow) ID() string         { return r.SubscriptionID }
func (r SubscriptionRow) SortKey() time.Time { return r.UpdatedAt }
