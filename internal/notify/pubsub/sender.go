// Package pubsub implements a Sender that publishes match events to a Google
// Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapewatch/internal/target"
)

// Event is the JSON payload of each published message.
type Event struct {
	Address     string `json:"address"`
	URI         string `json:"uri"`
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
	Message     string `json:"message"`
}

// Sender wraps a Pub/Sub topic.
type Sender struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// New creates a client for projectID and a publisher for topicID.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Sender, error) {
	if projectID == "" || topicID == "" {
		return nil, errors.New("pubsub project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return NewWithClient(client, topicID, logger), nil
}

// NewWithClient builds a Sender from an existing client (primarily for testing).
func NewWithClient(client *pubsub.Client, topicID string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{client: client, topic: client.Topic(topicID), logger: logger}
}

// Send marshals the notification to JSON and waits for the publish to be
// acknowledged. Trace context is propagated in message attributes.
func (s *Sender) Send(ctx context.Context, address string, t target.Target, message string) error {
	if s == nil || s.topic == nil {
		return fmt.Errorf("pubsub sender is not configured")
	}
	data, err := json.Marshal(Event{
		Address:     address,
		URI:         t.URI,
		Text:        t.Text,
		Description: t.Description,
		Message:     message,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"uri": t.URI}}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := s.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	s.logger.Debug("notification published", zap.String("uri", t.URI), zap.String("message_id", id))
	return nil
}

// Close flushes pending publishes and closes the client.
func (s *Sender) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	s.topic.Stop()
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
