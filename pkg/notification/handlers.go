package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// Handlers adapts each notification command to eventsourcing.CommandHandler.
// Unlike Labour, every command here is issued internally by the process
// manager or an external render/dispatch worker, never directly by an
// end-user principal, so none of these carry an authz check.
type Handlers struct {
	repo eventsourcing.Repository[*Notification]
}

func NewHandlers(repo eventsourcing.Repository[*Notification]) *Handlers {
	return &Handlers{repo: repo}
}

func (h *Handlers) Register(bus eventsourcing.CommandBus) {
	bus.Register(CmdRequestNotification, eventsourcing.CommandHandlerFunc(h.handleRequestNotification))
	bus.Register(CmdStoreRenderedContent, eventsourcing.CommandHandlerFunc(h.handleStoreRenderedContent))
	bus.Register(CmdDispatchNotification, eventsourcing.CommandHandlerFunc(h.handleDispatchNotification))
	bus.Register(CmdMarkDelivered, eventsourcing.CommandHandlerFunc(h.handleMarkDelivered))
	bus.Register(CmdMarkFailed, eventsourcing.CommandHandlerFunc(h.handleMarkFailed))
}

func notFound(id string) error {
	return &eventsourcing.AppError{
		Code:     "NOTIFICATION_NOT_FOUND",
		Message:  fmt.Sprintf("notification %s not found", id),
		Solution: "Check the notification ID and try again",
		Details:  make(map[string]string),
	}
}

func invalid(code, message string) error {
	return &eventsourcing.AppError{Code: code, Message: message, Details: make(map[string]string)}
}

func (h *Handlers) load(id string) (*Notification, error) {
	agg, err := h.repo.Load(id)
	if err != nil {
		return nil, notFound(id)
	}
	return agg, nil
}

func (h *Handlers) save(agg *Notification, meta eventsourcing.CommandMetadata) ([]*eventsourcing.Event, error) {
	result, err := h.repo.SaveWithCommand(agg, meta.CommandID)
	if err != nil {
		return nil, invalid("SAVE_FAILED", err.Error())
	}
	return result.Events, nil
}

func eventMeta(env *eventsourcing.CommandEnvelope) eventsourcing.EventMetadata {
	return eventsourcing.EventMetadata{
		CausationID:   env.Metadata.CommandID,
		CorrelationID: env.Metadata.CorrelationID,
		PrincipalID:   env.Metadata.PrincipalID,
	}
}

func (h *Handlers) handleRequestNotification(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*RequestNotification)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	if cmd.Recipient == "" {
		return nil, invalid("INVALID_RECIPIENT", "recipient is required")
	}

	agg := NewNotification(cmd.AggregateID())
	agg.SetCommandID(env.Metadata.CommandID)
	event := NotificationRequested{
		NotificationID: cmd.AggregateID(), Recipient: cmd.Recipient,
		Channel: cmd.Channel, Kind: cmd.Kind, Payload: cmd.Payload,
		RequestedAt: eventsourcing.Now(),
	}
	if err := agg.ApplyChange(event, EventNotificationRequested, eventMeta(env)); err != nil {
		return nil, err
	}
	if err := agg.ApplyEvent(&eventsourcing.Event{EventType: EventNotificationRequested, Data: mustJSON(event)}); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleStoreRenderedContent(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*StoreRenderedContent)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if agg.State != StateRequested {
		return nil, invalid("INVALID_NOTIFICATION_STATE", fmt.Sprintf("notification is %s, expected REQUESTED", agg.State))
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := RenderedContentStored{ContentRef: cmd.ContentRef, RenderedAt: eventsourcing.Now()}
	if err := applyAndRecord(agg, event, EventRenderedContentStored, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleDispatchNotification(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*DispatchNotification)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if agg.State != StateRendered {
		return nil, invalid("INVALID_NOTIFICATION_STATE", fmt.Sprintf("notification is %s, expected RENDERED", agg.State))
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := NotificationDispatched{DispatchedAt: eventsourcing.Now(), TransportRef: cmd.TransportRef}
	if err := applyAndRecord(agg, event, EventNotificationDispatched, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleMarkDelivered(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*MarkDelivered)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if agg.State != StateDispatched {
		return nil, invalid("INVALID_NOTIFICATION_STATE", fmt.Sprintf("notification is %s, expected DISPATCHED", agg.State))
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := NotificationDelivered{DeliveredAt: eventsourcing.Now()}
	if err := applyAndRecord(agg, event, EventNotificationDelivered, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

// handleMarkFailed is issued by the retry loop once the current attempt's
// exponential backoff window (base 1s, cap 30s) is exhausted or the default
// retry budget (3 attempts) runs out (spec.md §4.5).
func (h *Handlers) handleMarkFailed(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*MarkFailed)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if agg.State == StateDelivered || agg.State == StateFailed {
		return nil, invalid("INVALID_NOTIFICATION_STATE", fmt.Sprintf("notification is already %s", agg.State))
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := NotificationFailed{FailedAt: eventsourcing.Now(), Reason: cmd.Reason, Attempt: cmd.Attempt}
	if err := applyAndRecord(agg, event, EventNotificationFailed, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func applyAndRecord(agg *Notification, event interface{}, eventType string, meta eventsourcing.EventMetadata) error {
	if err := agg.ApplyChange(event, eventType, meta); err != nil {
		return err
	}
	return agg.ApplyEvent(&eventsourcing.Event{EventType: eventType, Data: mustJSON(event)})
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("notification: marshal event: %v", err))
	}
	return data
}
