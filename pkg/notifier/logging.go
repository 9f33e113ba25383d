package notifier

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kieran-gray/fern-labour-sub001/pkg/notification"
)

// TemplateRenderer renders content as a formatted string keyed by Kind; it
// stands in for a real template engine (e.g. HTML email bodies) without
// pulling one into the core module.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer { return &TemplateRenderer{} }

func (TemplateRenderer) Render(ctx context.Context, kind notification.Kind, payload map[string]string) (string, error) {
	return fmt.Sprintf("%s:%v", kind, payload), nil
}

// LoggingSender logs the send instead of calling a real transport. It is
// the default Sender for deployments that have not wired a provider
// (spec.md names "dispatch to rendering/queue clients" as an external
// collaborator, not a component this module must itself integrate with).
type LoggingSender struct {
	logger Logger
}

// Logger is the single-method logging interface LoggingSender needs;
// runner.Logger satisfies it.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
}

func NewLoggingSender(logger Logger) *LoggingSender {
	return &LoggingSender{logger: logger}
}

func (s *LoggingSender) Send(ctx context.Context, channel notification.Channel, recipient, contentRef string) (string, error) {
	ref := uuid.NewString()
	if s.logger != nil {
		s.logger.Info("notifier: sent", "channel", channel, "recipient", recipient, "transport_ref", ref)
	}
	return ref, nil
}
