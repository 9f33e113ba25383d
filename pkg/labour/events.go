package labour

import "time"

// Event type tags (spec.md §6.1's event_type). Exhaustively matched by
// Labour.ApplyEvent.
const (
	EventLabourPlanned                   = "LabourPlanned"
	EventLabourPlanUpdated               = "LabourPlanUpdated"
	EventLabourBegun                     = "LabourBegun"
	EventLabourPhaseChanged              = "LabourPhaseChanged"
	EventLabourCompleted                 = "LabourCompleted"
	EventLabourDeleted                   = "LabourDeleted"
	EventLabourInviteSent                = "LabourInviteSent"
	EventSubscriptionTokenSet            = "SubscriptionTokenSet"
	EventContractionAdded                = "ContractionAdded"
	EventContractionUpdated              = "ContractionUpdated"
	EventContractionDeleted              = "ContractionDeleted"
	EventLabourUpdatePosted              = "LabourUpdatePosted"
	EventLabourUpdateMessageUpdated      = "LabourUpdateMessageUpdated"
	EventLabourUpdateTypeUpdated         = "LabourUpdateTypeUpdated"
	EventLabourUpdateDeleted             = "LabourUpdateDeleted"
	EventSubscriberRequested             = "SubscriberRequested"
	EventSubscriberApproved              = "SubscriberApproved"
	EventSubscriberUnsubscribed          = "SubscriberUnsubscribed"
	EventSubscriberRemoved               = "SubscriberRemoved"
	EventSubscriberBlocked               = "SubscriberBlocked"
	EventSubscriberUnblocked             = "SubscriberUnblocked"
	EventSubscriberRoleUpdated           = "SubscriberRoleUpdated"
	EventSubscriberAccessLevelUpdated    = "SubscriberAccessLevelUpdated"
	EventSubscriberNotificationMethodsUpdated = "SubscriberNotificationMethodsUpdated"
)

type LabourPlanned struct {
	LabourID    string    `json:"labour_id"`
	MotherID    string    `json:"mother_id"`
	FirstLabour bool      `json:"first_labour"`
	DueDate     time.Time `json:"due_date"`
	LabourName  string    `json:"labour_name,omitempty"`
}

type LabourPlanUpdated struct {
	FirstLabour *bool      `json:"first_labour,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	LabourName  *string    `json:"labour_name,omitempty"`
}

type LabourBegun struct {
	BegunAt time.Time `json:"begun_at"`
}

type LabourPhaseChanged struct {
	From Phase `json:"-"`
	To   Phase `json:"-"`
	// FromTag/ToTag are the wire representation; Phase itself is an int
	// that must never be persisted directly since its ordinal values are
	// an implementation detail.
	FromTag string `json:"from"`
	ToTag   string `json:"to"`
}

type LabourCompleted struct {
	CompletedAt time.Time `json:"completed_at"`
	Notes       string    `json:"notes,omitempty"`
}

type LabourDeleted struct {
	DeletedAt time.Time `json:"deleted_at"`
}

type LabourInviteSent struct {
	InviteEmail string `json:"invite_email"`
}

type SubscriptionTokenSet struct {
	Token string `json:"token"`
}

type ContractionAdded struct {
	ContractionID string    `json:"contraction_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Intensity     int       `json:"intensity,omitempty"`
}

type ContractionUpdated struct {
	ContractionID string     `json:"contraction_id"`
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	Intensity     *int       `json:"intensity,omitempty"`
}

type ContractionDeleted struct {
	ContractionID string `json:"contraction_id"`
}

type LabourUpdatePosted struct {
	UpdateID             string           `json:"update_id"`
	Type                 LabourUpdateType `json:"type"`
	Message              string           `json:"message"`
	ApplicationGenerated bool             `json:"application_generated"`
	PostedAt             time.Time        `json:"posted_at"`
}

type LabourUpdateMessageUpdated struct {
	UpdateID string `json:"update_id"`
	Message  string `json:"message"`
}

type LabourUpdateTypeUpdated struct {
	UpdateID string           `json:"update_id"`
	Type     LabourUpdateType `json:"type"`
}

type LabourUpdateDeleted struct {
	UpdateID string `json:"update_id"`
}

type SubscriberRequested struct {
	SubscriptionID string         `json:"subscription_id"`
	SubscriberID   string         `json:"subscriber_id"`
	Role           SubscriberRole `json:"role"`
	RequestedAt    time.Time      `json:"requested_at"`
}

type SubscriberApproved struct {
	SubscriptionID string `json:"subscription_id"`
}

type SubscriberUnsubscribed struct {
	SubscriptionID string `json:"subscription_id"`
}

type SubscriberRemoved struct {
	SubscriptionID string `json:"subscription_id"`
}

type SubscriberBlocked struct {
	SubscriptionID string `json:"subscription_id"`
}

type SubscriberUnblocked struct {
	SubscriptionID string `json:"subscription_id"`
}

type SubscriberRoleUpdated struct {
	SubscriptionID string         `json:"subscription_id"`
	Role           SubscriberRole `json:"role"`
}

type SubscriberAccessLevelUpdated struct {
	SubscriptionID string      `json:"subscription_id"`
	AccessLevel    AccessLevel `json:"access_level"`
}

type SubscriberNotificationMethodsUpdated struct {
	SubscriptionID string          `json:"subscription_id"`
	Methods        []ContactMethod `json:"methods"`
}
