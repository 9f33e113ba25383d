package labour

import "time"

// Plan holds the mutable planning attributes of a labour (spec.md §3,
// SPEC_FULL.md §3 UpdateLabourPlan).
type Plan struct {
	FirstLabour bool
	DueDate     time.Time
	LabourName  string
}

// Contraction is a single contraction entry. It is "active" iff Start
// equals End (spec.md §3 invariant); Start must never be after End.
type Contraction struct {
	ID        string
	Start     time.Time
	End       time.Time
	Intensity int // 1-10, 0 = unspecified
	Deleted   bool
}

func (c Contraction) Active() bool {
	return !c.Deleted && c.Start.Equal(c.End)
}

// LabourUpdate is one entry in the ordered sequence of updates posted
// against a labour. Edits set Edited; deletes set Deleted but the entry
// remains in history (spec.md §3 lifecycle rule).
type LabourUpdate struct {
	ID                  string
	Type                LabourUpdateType
	Message             string
	ApplicationGenerated bool
	Edited              bool
	Deleted             bool
	PostedAt            time.Time
}

// Subscription is a single subscriber relationship to the labour.
type Subscription struct {
	ID                  string
	SubscriberID        string
	Role                SubscriberRole
	Status              SubscriberStatus
	AccessLevel         AccessLevel
	NotificationMethods []ContactMethod
	RequestedAt         time.Time
	UpdatedAt           time.Time
}
