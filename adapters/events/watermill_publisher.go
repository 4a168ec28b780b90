package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
)

const (
	TopicAuth     = "forum.auth"
	TopicMessages = "forum.messages"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishAuth publishes a login, logout or revocation event
func (p *WatermillPublisher) PublishAuth(ctx context.Context, event core.AuthEvent) error {
	return p.publish(ctx, TopicAuth, event.ID, string(event.Kind), event)
}

// PublishMessage publishes a message_posted event
func (p *WatermillPublisher) PublishMessage(ctx context.Context, event core.MessageEvent) error {
	return p.publish(ctx, TopicMessages, event.ID, "message_posted", event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id, kind string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.Metadata.Set("kind", kind)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
