package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes checkout events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishPaymentCreated waits for the server to acknowledge the message.
func (p *PubSubPublisher) PublishPaymentCreated(ctx context.Context, event PaymentCreated) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}

	attrs := map[string]string{"eventType": TypePaymentCreated}
	setAttr(attrs, "orderRef", event.OrderRef)
	setAttr(attrs, "packageId", event.PackageID)
	setAttr(attrs, "paymentIntentId", event.PaymentIntentID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish payment event: %w", err)
	}
	return nil
}

// Close flushes pending messages and stops the topic's background goroutines.
func (p *PubSubPublisher) Close() error {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
