package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"

	"breakdown-service/internal/domain"
)

// PaidEventPublisher announces completed payments to downstream consumers
// (the notification pipeline keys on request_id).
type PaidEventPublisher interface {
	PublishPaid(ctx context.Context, event domain.PaidEvent) error
}

type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *kafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishPaid(ctx context.Context, event domain.PaidEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal paid event: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.RequestID),
		Value:          payload,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("produce paid event: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-deliveryChan:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event: %v", ev)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("deliver paid event: %w", msg.TopicPartition.Error)
		}
	}

	log.WithFields(log.Fields{
		"topic":      p.topic,
		"request_id": event.RequestID,
	}).Info("Published paid event")
	return nil
}

// Close flushes any in-flight messages before shutting the producer down.
func (p *KafkaPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
