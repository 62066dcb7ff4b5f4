// Package pubsub publishes task events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	publish publishFunc
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	if topic == nil {
		return &Publisher{}
	}
	return &Publisher{publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return topic.Publish(ctx, msg).Get(ctx)
	}}
}

// Publish marshals the payload to JSON and publishes it. Task events carry
// their id and status as attributes so subscribers can filter.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.publish == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{}}
	if ev, ok := payload.(discovery.TaskEvent); ok {
		msg.Attributes["task_id"] = ev.TaskID
		msg.Attributes["status"] = string(ev.Status)
	}

	id, err := p.publish(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}
