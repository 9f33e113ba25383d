package middleware

import (
	"context"
	"fmt"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// MetadataValidationMiddleware validates command metadata.
func MetadataValidationMiddleware() eventsourcing.CommandMiddleware {
	return func(next eventsourcing.CommandHandler) eventsourcing.CommandHandler {
		return eventsourcing.CommandHandlerFunc(func(ctx context.Context, cmd *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
			// Validate command ID
			if cmd.Metadata.CommandID == "" {
				return nil, fmt.Errorf("%w: command_id is required", eventsourcing.ErrInvalidCommand)
			}

			// Validate command type
			if cmd.Metadata.Custom["command_type"] == "" {
				return nil, fmt.Errorf("%w: command_type is required", eventsourcing.ErrInvalidCommand)
			}

			// Validate principal ID (optional but recommended)
			if cmd.Metadata.PrincipalID == "" {
				// Log warning but don't fail
				// In production, you might want to enforce this
			}

			return next.Handle(ctx, cmd)
		})
	}
}
