// Package kafka publishes task events to a Kafka topic via sarama.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// Publisher sends JSON payloads through a synchronous producer.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer dials the brokers with acks from all in-sync replicas.
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// New wraps a producer. The topic is used when Publish receives an empty one.
func New(producer sarama.SyncProducer, topic string) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	return &Publisher{producer: producer, topic: topic}, nil
}

// Publish sends the payload keyed by task id when it is a task event.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		topic = p.topic
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(data)}
	if ev, ok := payload.(discovery.TaskEvent); ok {
		msg.Key = sarama.StringEncoder(ev.TaskID)
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return "", fmt.Errorf("send kafka message: %w", err)
	}
	return fmt.Sprintf("%s/%d/%d", topic, partition, offset), nil
}

// Close shuts down the producer.
func (p *Publisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
