// Package notifier implements spec.md's "external effect executor": the
// collaborator that drives a requested Notification through its
// REQUESTED -> RENDERED -> DISPATCHED -> DELIVERED|FAILED lifecycle by
// rendering content and handing it to an outbound Sender, issuing the
// follow-up commands the notification.Handlers state machine expects.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/notification"
	"github.com/kieran-gray/fern-labour-sub001/pkg/process"
	"github.com/kieran-gray/fern-labour-sub001/pkg/runner"
)

// Renderer turns a notification Kind/Payload into content ready for an
// outbound transport. A content ref is whatever the renderer used to
// address the rendered body (a blob key, a template ID, etc).
type Renderer interface {
	Render(ctx context.Context, kind notification.Kind, payload map[string]string) (contentRef string, err error)
}

// Sender hands rendered content to a transport and reports back a
// transport-specific reference (e.g. a provider message ID) or an error.
type Sender interface {
	Send(ctx context.Context, channel notification.Channel, recipient, contentRef string) (transportRef string, err error)
}

// Executor subscribes to NotificationRequested events and runs each one
// through Renderer and Sender synchronously, recording the result via the
// notification CommandBus handlers. It retries failures with
// process.BackoffConfig up to a configured attempt budget before issuing
// MarkFailed (spec.md §4.5).
type Executor struct {
	bus        eventsourcing.CommandBus
	renderer   Renderer
	sender     Sender
	maxRetries int
	backoff    process.BackoffConfig
	logger     runner.Logger
}

type Option func(*Executor)

func WithMaxRetries(n int) Option { return func(e *Executor) { e.maxRetries = n } }
func WithBackoff(b process.BackoffConfig) Option {
	return func(e *Executor) { e.backoff = b }
}
func WithLogger(l runner.Logger) Option { return func(e *Executor) { e.logger = l } }

func NewExecutor(bus eventsourcing.CommandBus, renderer Renderer, sender Sender, opts ...Option) *Executor {
	backoff := process.DefaultBackoff()
	e := &Executor{
		bus:        bus,
		renderer:   renderer,
		sender:     sender,
		maxRetries: backoff.MaxRetries,
		backoff:    backoff,
		logger:     runner.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent is wired as an eventsourcing.EventHandler against the
// NotificationRequested stream.
func (e *Executor) HandleEvent(env *eventsourcing.EventEnvelope) error {
	if env.EventType != notification.EventNotificationRequested {
		return nil
	}
	var req notification.NotificationRequested
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return fmt.Errorf("notifier: decode %s: %w", env.EventType, err)
	}
	return e.Run(context.Background(), env.AggregateID, &req)
}

// Run drives one notification's render-then-send pipeline to completion,
// retrying send failures up to maxRetries with backoff before giving up.
func (e *Executor) Run(ctx context.Context, notificationID string, req *notification.NotificationRequested) error {
	contentRef, err := e.renderer.Render(ctx, req.Kind, req.Payload)
	if err != nil {
		return e.fail(ctx, notificationID, fmt.Sprintf("render: %v", err), 0)
	}
	if err := e.send(ctx, eventsourcing.CommandEnvelope{
		Command:  &notification.StoreRenderedContent{ID_: notificationID, ContentRef: contentRef},
		Metadata: eventsourcing.CommandMetadata{CommandID: notificationID + ":rendered"},
	}); err != nil {
		return err
	}

	var transportRef string
	var sendErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		transportRef, sendErr = e.sender.Send(ctx, req.Channel, req.Recipient, contentRef)
		if sendErr == nil {
			break
		}
		e.logger.Error("notifier: send attempt failed", "notification_id", notificationID, "attempt", attempt, "error", sendErr)
		if attempt < e.maxRetries {
			time.Sleep(e.backoff.Delay(attempt))
		}
	}
	if sendErr != nil {
		return e.fail(ctx, notificationID, sendErr.Error(), e.maxRetries)
	}

	if err := e.send(ctx, eventsourcing.CommandEnvelope{
		Command:  &notification.DispatchNotification{ID_: notificationID, TransportRef: transportRef},
		Metadata: eventsourcing.CommandMetadata{CommandID: notificationID + ":dispatched"},
	}); err != nil {
		return err
	}
	return e.send(ctx, eventsourcing.CommandEnvelope{
		Command:  &notification.MarkDelivered{ID_: notificationID},
		Metadata: eventsourcing.CommandMetadata{CommandID: notificationID + ":delivered"},
	})
}

func (e *Executor) fail(ctx context.Context, notificationID, reason string, attempt int) error {
	return e.send(ctx, eventsourcing.CommandEnvelope{
		Command: &notification.MarkFailed{
			ID_: notificationID, Reason: reason, Attempt: attempt, At: eventsourcing.Now(),
		},
		Metadata: eventsourcing.CommandMetadata{CommandID: fmt.Sprintf("%s:failed:%d", notificationID, attempt)},
	})
}

func (e *Executor) send(ctx context.Context, env eventsourcing.CommandEnvelope) error {
	if err := e.bus.Send(ctx, &env); err != nil {
		e.logger.Error("notifier: command failed", "command_type", env.Command.CommandType(), "error", err)
		return err
	}
	return nil
}
