package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/tourze/wechat-fans-service/pkg/log"
)

// KafkaPublisher publishes fan-sync events to a single Kafka topic,
// keyed by account id so events of one account stay ordered.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

// NewKafkaPublisher connects a producer and starts the delivery-report
// handler.
func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kp := &KafkaPublisher{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}

	go kp.deliveryReportHandler()

	return kp, nil
}

// deliveryReportHandler drains producer events and logs failed deliveries.
func (p *KafkaPublisher) deliveryReportHandler() {
	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				log.L().Warn().
					Err(ev.TopicPartition.Error).
					Str("topic", p.topic).
					Msg("event delivery failed")
			}
		}
	}
	close(p.doneCh)
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.AccountID),
		Value: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	p.producer.Flush(5000)
	p.producer.Close()
	<-p.doneCh
	return nil
}

var _ Publisher = (*KafkaPublisher)(nil)
