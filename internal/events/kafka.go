package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
)

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

// NewPublisher returns a Kafka publisher, or a NoopPublisher when cfg has no
// brokers.
func NewPublisher(cfg config.KafkaConfig, log zerolog.Logger) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return NoopPublisher{}, nil
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.ClientID = "tutorhub-api"
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisher(producer, cfg.Topic, log), nil
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: log}
}

// Publish keys messages by user so one user's events stay ordered within a
// partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.UserID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
			{Key: []byte("event-id"), Value: []byte(event.ID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s event: %w", event.Type, err)
	}

	p.log.Debug().
		Str("event", string(event.Type)).
		Str("user_id", event.UserID).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
