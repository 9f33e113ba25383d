package process

import (
	"encoding/json"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/labour"
)

// LabourPolicy inspects one Labour event (with the aggregate state it
// produced, already folded in by the caller) and returns the effects it
// triggers. Declared in the exhaustive order spec.md §4.5 lists them.
type LabourPolicy func(event *eventsourcing.Event, agg *labour.Labour) []Effect

// LabourPolicies is keyed by labour event type; every branch of spec.md
// §4.5's Labour policy table has an entry here.
var LabourPolicies = map[string]LabourPolicy{
	labour.EventLabourPlanned:       onLabourPlanned,
	labour.EventLabourBegun:         onLabourBegun,
	labour.EventLabourCompleted:     onLabourCompleted,
	labour.EventLabourInviteSent:    onLabourInviteSent,
	labour.EventLabourUpdatePosted:  onLabourUpdatePosted,
	labour.EventSubscriberRequested: onSubscriberRequested,
	labour.EventSubscriberApproved:  onSubscriberApproved,
}

// onLabourPlanned issues the GenerateSubscriptionToken effect: every
// planned labour needs a token before any subscriber can be invited.
func onLabourPlanned(event *eventsourcing.Event, agg *labour.Labour) []Effect {
	return []Effect{{
		Kind:          EffectGenerateSubscriptionToken,
		AggregateID:   event.AggregateID,
		Sequence:      event.Version,
		Discriminator: "generate_subscription_token",
		Priority:      true,
		TokenSeed:     &TokenSeed{MotherID: agg.Mother, LabourID: agg.ID()},
	}}
}

func onLabourBegun(event *eventsourcing.Event, agg *labour.Labour) []Effect {
	return notifySubscribed(event, agg, "LABOUR_STARTED")
}

func onLabourCompleted(event *eventsourcing.Event, agg *labour.Labour) []Effect {
	return notifySubscribed(event, agg, "LABOUR_COMPLETED")
}

// onLabourInviteSent notifies the invitee directly; no subscriber record
// exists yet so there is nothing to fan out over.
func onLabourInviteSent(event *eventsourcing.Event, agg *labour.Labour) []Effect {
	var payload labour.LabourInviteSent
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil
	}
	return []Effect{{
		Kind:          EffectSendNotification,
		AggregateID:   event.AggregateID,
		Sequence:      event.Version,
		Discriminator: "invite:" + payload.InviteEmail,
		Priority:      false,
		Notification: &NotificationIntent{
			Recipient: payload.InviteEmail, Channel: "EMAIL", Kind: "LABOUR_INVITE",
			Payload: map[string]string{"labour_id": event.AggregateID},
		},
	}}
}

// onLabourUpdatePosted fans out only ANNOUNCEMENT updates the mother
// authored herself; application-generated updates (phase-change
// announcements etc.) are not re-announced to avoid notification storms.
func onLabourUpdatePosted(event *eventsourcing.Event, agg *labour.Labour) []Effect {
	var payload labour.LabourUpdatePosted
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil
	}
	if payload.Type != labour.UpdateTypeAnnouncement || payload.ApplicationGenerated {
		return nil
	}
	return notifySubscribed(event, agg, "LABOUR_UPDATE_POSTED")
}

func onSubscriberRequested(event *eventsourcing.Event, agg *labour.Labour) []Effect {
	var payload labour.SubscriberRequested
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil
	}
	return []Effect{{
		Kind:          EffectSendNotification,
		AggregateID:   event.AggregateID,
		Sequence:      event.Version,
		Discriminator: "subscriber_requested:" + payload.SubscriptionID,
		Priority:      false,
		Notification: &NotificationIntent{
			Recipient: agg.Mother, Channel: "EMAIL", Kind: "NEW_SUBSCRIBER_REQUEST",
			Payload: map[string]string{"subscription_id": payload.SubscriptionID},
		},
	}}
}

func onSubscriberApproved(event *eventsourcing.Event, agg *labour.Labour) []Effect {
	var payload labour.SubscriberApproved
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return nil
	}
	s := findSubscription(agg, payload.SubscriptionID)
	if s == nil {
		return nil
	}
	return []Effect{{
		Kind:          EffectSendNotification,
		AggregateID:   event.AggregateID,
		Sequence:      event.Version,
		Discriminator: "subscriber_approved:" + payload.SubscriptionID,
		Priority:      false,
		Notification: &NotificationIntent{
			Recipient: s.SubscriberID, Channel: "EMAIL", Kind: "SUBSCRIBER_APPROVED",
			Payload: map[string]string{"labour_id": event.AggregateID},
		},
	}}
}

// notifySubscribed fans SendNotification out across every SUBSCRIBED
// subscriber's chosen contact methods (spec.md §4.5).
func notifySubscribed(event *eventsourcing.Event, agg *labour.Labour, kind string) []Effect {
	var effects []Effect
	for _, s := range agg.SubscriptionsByID {
		if s.Status != labour.StatusSubscribed {
			continue
		}
		for _, method := range s.NotificationMethods {
			effects = append(effects, Effect{
				Kind:          EffectSendNotification,
				AggregateID:   event.AggregateID,
				Sequence:      event.Version,
				Discriminator: kind + ":" + s.ID + ":" + string(method),
				Priority:      false,
				Notification: &NotificationIntent{
					Recipient: s.SubscriberID, Channel: string(method), Kind: kind,
					Payload: map[string]string{"labour_id": event.AggregateID, "subscription_id": s.ID},
				},
			})
		}
	}
	return effects
}

func findSubscription(agg *labour.Labour, id string) *labour.Subscription {
	for i := range agg.SubscriptionsByID {
		if agg.SubscriptionsByID[i].ID == id {
			return &agg.SubscriptionsByID[i]
		}
	}
	return nil
}
