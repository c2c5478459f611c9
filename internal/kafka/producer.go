package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
)

// Producer publishes catalog change events. Messages are keyed by part
// number so every change to one product lands on the same partition.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicChanges,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxRetries,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}

	logger.Info("kafka producer created", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.TopicChanges))

	return &Producer{
		writer: w,
		logger: logger,
	}
}

func (p *Producer) PublishChangeEvent(ctx context.Context, event *models.ChangeEvent) error {
	msg, err := newMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing change event: %w", err)
	}
	return nil
}

func (p *Producer) PublishBatch(ctx context.Context, events []*models.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := newMessage(event)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		msgs[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publishing batch of %d events: %w", len(events), err)
	}
	p.logger.Debug("change events published", zap.Int("count", len(events)))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func newMessage(event *models.ChangeEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling change event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.PartNumber),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "source", Value: []byte(event.Source)},
		},
	}, nil
}
