package notification

import "time"

const (
	CmdRequestNotification = "notification.Request"
	CmdStoreRenderedContent = "notification.StoreRenderedContent"
	CmdDispatchNotification = "notification.Dispatch"
	CmdMarkDelivered        = "notification.MarkDelivered"
	CmdMarkFailed           = "notification.MarkFailed"
)

// RequestNotification is issued by the Labour process manager's
// SendNotification effect (spec.md §4.5); it is the entry point of the
// notification aggregate's own two-stage process (SPEC_FULL.md §3).
type RequestNotification struct {
	ID_       string
	Recipient string
	Channel   Channel
	Kind      Kind
	Payload   map[string]string
}

func (c *RequestNotification) ID() string          { return c.ID_ }
func (c *RequestNotification) AggregateID() string  { return c.ID_ }
func (c *RequestNotification) CommandType() string  { return CmdRequestNotification }

// StoreRenderedContent is issued by the external renderer once it has
// written the rendered body to blob storage (spec.md §4.5 render stage).
type StoreRenderedContent struct {
	ID_        string
	ContentRef string
}

func (c *StoreRenderedContent) ID() string         { return c.ID_ }
func (c *StoreRenderedContent) AggregateID() string { return c.ID_ }
func (c *StoreRenderedContent) CommandType() string { return CmdStoreRenderedContent }

// DispatchNotification is issued once rendering completes; pkg/notifier's
// executor sends it with the reference the outbound transport returned.
type DispatchNotification struct {
	ID_          string
	TransportRef string
}

func (c *DispatchNotification) ID() string          { return c.ID_ }
func (c *DispatchNotification) AggregateID() string  { return c.ID_ }
func (c *DispatchNotification) CommandType() string  { return CmdDispatchNotification }

type MarkDelivered struct {
	ID_ string
}

func (c *MarkDelivered) ID() string         { return c.ID_ }
func (c *MarkDelivered) AggregateID() string { return c.ID_ }
func (c *MarkDelivered) CommandType() string { return CmdMarkDelivered }

// MarkFailed is issued by the retry-aware dispatch path (spec.md §4.5:
// exponential backoff base 1s, cap 30s, default max 3 retries).
type MarkFailed struct {
	ID_     string
	Reason  string
	Attempt int
	At      time.Time
}

func (c *MarkFailed) ID() string         { return c.ID_ }
func (c *MarkFailed) AggregateID() string { return c.ID_ }
func (c *MarkFailed) CommandType() string { return CmdMarkFailed }
