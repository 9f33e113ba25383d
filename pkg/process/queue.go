package process

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSQueue is a JetStream-backed Queue, grounded on pkg/nats/eventbus.go's
// connect-ensure-stream-publish shape but targeting its own "effects.>"
// subject space rather than the domain event stream.
type NATSQueue struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string
}

func NewNATSQueue(url string) (*NATSQueue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("process: connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("process: create JetStream context: %w", err)
	}
	q := &NATSQueue{nc: nc, js: js, streamName: "EFFECTS"}
	if err := q.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

func (q *NATSQueue) ensureStream() error {
	cfg := &nats.StreamConfig{
		Name:      q.streamName,
		Subjects:  []string{"effects.>"},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}
	if _, err := q.js.StreamInfo(q.streamName); err != nil {
		if _, err := q.js.AddStream(cfg); err != nil {
			return fmt.Errorf("process: create effects stream: %w", err)
		}
	}
	return nil
}

func (q *NATSQueue) Enqueue(effect Effect) error {
	data, err := json.Marshal(effect)
	if err != nil {
		return fmt.Errorf("process: marshal effect: %w", err)
	}
	subject := fmt.Sprintf("effects.%s.%s", effect.AggregateID, effect.Kind)
	if _, err := q.js.Publish(subject, data); err != nil {
		return fmt.Errorf("process: publish effect: %w", err)
	}
	return nil
}

// Drain subscribes to every queued effect and hands it to handle, acking on
// success and nacking (for redelivery) on failure. This is the consumer
// side the alarm-driven batch delivery loop (spec.md §5) runs.
func (q *NATSQueue) Drain(handle func(Effect) error) (func() error, error) {
	sub, err := q.js.QueueSubscribe("effects.>", "effect-workers", func(msg *nats.Msg) {
		var effect Effect
		if err := json.Unmarshal(msg.Data, &effect); err != nil {
			msg.Term() // malformed payload, never retryable
			return
		}
		if err := handle(effect); err != nil {
			msg.Nak()
			return
		}
		msg.Ack()
	}, nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, fmt.Errorf("process: subscribe to effects: %w", err)
	}
	return func() error {
		if err := sub.Unsubscribe(); err != nil {
			return err
		}
		q.nc.Close()
		return nil
	}, nil
}

func (q *NATSQueue) Close() error {
	q.nc.Close()
	return nil
}
