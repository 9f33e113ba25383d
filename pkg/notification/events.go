package notification

import "time"

const (
	EventNotificationRequested      = "notification.requested"
	EventRenderedContentStored      = "notification.rendered_content_stored"
	EventNotificationDispatched     = "notification.dispatched"
	EventNotificationDelivered      = "notification.delivered"
	EventNotificationFailed         = "notification.failed"
)

// NotificationRequested is the terminal effect of a Labour process-manager
// policy (spec.md §4.5): a SendNotification effect materializes as one of
// these per recipient/channel pair.
type NotificationRequested struct {
	NotificationID string            `json:"notification_id"`
	Recipient      string            `json:"recipient"`
	Channel        Channel           `json:"channel"`
	Kind           Kind              `json:"kind"`
	Payload        map[string]string `json:"payload"`
	RequestedAt    time.Time         `json:"requested_at"`
}

// RenderedContentStored records that the rendering stage (the first half of
// the two-stage notification process manager) wrote the rendered body to
// blob storage and is ready for dispatch.
type RenderedContentStored struct {
	ContentRef string    `json:"content_ref"`
	RenderedAt time.Time `json:"rendered_at"`
}

// NotificationDispatched records that the dispatch stage handed the rendered
// content to an outbound transport (e-mail/SMS gateway).
type NotificationDispatched struct {
	DispatchedAt time.Time `json:"dispatched_at"`
	TransportRef string    `json:"transport_ref"`
}

type NotificationDelivered struct {
	DeliveredAt time.Time `json:"delivered_at"`
}

type NotificationFailed struct {
	FailedAt time.Time `json:"failed_at"`
	Reason   string    `json:"reason"`
	Attempt  int       `json:"attempt"`
}
