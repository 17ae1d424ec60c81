// Package mq publishes domain events to a message broker.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kardai/apiserver/config"
)

const (
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"

	AttrEventType   = "event_type"
	AttrContentType = "content_type"
)

// Backend defines the broker operations used by the app.
type Backend interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// NewBackend constructs the configured broker backend. It returns nil when
// publishing is disabled.
func NewBackend(ctx context.Context, cfg config.MQConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case BackendRabbitMQ:
		return NewRabbitMQBackend(cfg.RabbitMQ)
	case BackendPubSub:
		return NewPubSubBackend(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Publisher sends JSON encoded events to a single topic.
type Publisher struct {
	backend Backend
	topic   string
}

func NewPublisher(backend Backend, topic string) *Publisher {
	return &Publisher{backend: backend, topic: topic}
}

// PublishJSON encodes payload and publishes it tagged with eventType.
func (p *Publisher) PublishJSON(ctx context.Context, eventType string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s event: %w", eventType, err)
	}
	id, err := p.backend.Publish(ctx, p.topic, data, map[string]string{
		AttrEventType:   eventType,
		AttrContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return id, nil
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	return p.backend.Close()
}
