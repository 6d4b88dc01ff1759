package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher appends catalog changes to a Kafka topic for downstream
// consumers. Upload progress events are not written.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.Type == EventProgress {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		// keyed by row so one row's changes stay ordered on one partition
		Key:   []byte(ev.Table + ":" + ev.ID),
		Value: data,
		Time:  time.UnixMilli(ev.Timestamp),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s/%s: %w", ev.Table, ev.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
