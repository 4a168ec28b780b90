package ports

import (
	"context"

	"github.com/layer-3/forum/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishAuth(ctx context.Context, event core.AuthEvent) error
	PublishMessage(ctx context.Context, event core.MessageEvent) error
}
