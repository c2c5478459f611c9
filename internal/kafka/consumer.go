package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
	"github.com/shubhsaxena/catalog-search/internal/resilience"
)

var errInvalidEvent = errors.New("invalid change event")

type MessageHandler func(ctx context.Context, event *models.ChangeEvent) error

// Flusher makes handled events durable. Offsets are committed only after
// Flush succeeds, so a handler that buffers never loses committed events.
type Flusher interface {
	Flush(ctx context.Context) error
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Consumer struct {
	reader     *kafka.Reader
	committer  committer
	dlqWriter  *kafka.Writer
	handler    MessageHandler
	flusher    Flusher
	cfg        config.KafkaConfig
	retry      resilience.RetryConfig
	logger     *zap.Logger
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc

	commitMu  sync.Mutex
	pendingMu sync.Mutex
	pending   []kafka.Message
}

// NewConsumer builds a group consumer. With a nil flusher every message is
// committed as soon as it is handled; otherwise offsets are held until the
// flusher has persisted the events they carry.
func NewConsumer(cfg config.KafkaConfig, handler MessageHandler, flusher Flusher, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.TopicChanges,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.TopicDLQ,
		Balancer: &kafka.Hash{},
	}

	logger.Info("kafka consumer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.TopicChanges),
		zap.String("group", cfg.ConsumerGroup),
	)

	return &Consumer{
		reader:    reader,
		committer: reader,
		dlqWriter: dlqWriter,
		handler:   handler,
		flusher:   flusher,
		cfg:       cfg,
		retry:     resilience.RetryConfigFrom(cfg.Retry),
		logger:    logger,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consumeLoop(ctx)
	}()

	if c.flusher != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.commitLoop(ctx)
		}()
	}

	c.logger.Info("kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka consumer shutting down")
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetching kafka message", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		c.processMessage(ctx, msg)
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	start := time.Now()

	event, err := decodeEvent(msg.Value)
	if err != nil {
		c.logger.Error("decoding change event",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.Int("partition", msg.Partition),
		)
		observability.MirrorEventsTotal.WithLabelValues("unknown", "dlq").Inc()
		c.sendToDLQ(ctx, msg, fmt.Sprintf("decode error: %v", err))
		c.settle(ctx, msg)
		return
	}

	err = resilience.Retry(ctx, c.retry, func() error {
		return c.handler(ctx, event)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Left uncommitted; redelivered after restart.
			return
		}
		c.logger.Error("handler failed after retries, sending to DLQ",
			zap.Error(err),
			zap.String("part_number", event.PartNumber),
		)
		observability.MirrorEventsTotal.WithLabelValues(string(event.Type), "dlq").Inc()
		c.sendToDLQ(ctx, msg, fmt.Sprintf("handler error after retries: %v", err))
	}

	c.settle(ctx, msg)

	c.logger.Debug("message processed",
		zap.String("part_number", event.PartNumber),
		zap.Duration("duration", time.Since(start)),
	)
}

// decodeEvent parses and checks a change event. Upserts must carry the
// product; the event part number falls back to the product's.
func decodeEvent(data []byte) (*models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshaling change event: %w", err)
	}

	if event.PartNumber == "" && event.Product != nil {
		event.PartNumber = event.Product.PartNumber
	}
	event.PartNumber = strings.TrimSpace(event.PartNumber)
	if event.PartNumber == "" {
		return nil, fmt.Errorf("%w: missing part number", errInvalidEvent)
	}

	switch event.Type {
	case models.ChangeUpsert:
		if event.Product == nil {
			return nil, fmt.Errorf("%w: upsert without product", errInvalidEvent)
		}
		event.Product.PartNumber = event.PartNumber
	case models.ChangeDelete:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", errInvalidEvent, event.Type)
	}
	return &event, nil
}

func (c *Consumer) sendToDLQ(ctx context.Context, msg kafka.Message, reason string) {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "dlq_reason", Value: []byte(reason)},
			kafka.Header{Key: "original_topic", Value: []byte(c.cfg.TopicChanges)},
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		),
	}

	if err := c.dlqWriter.WriteMessages(ctx, dlqMsg); err != nil {
		c.logger.Error("failed to send to DLQ",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
	}
}

// settle marks a message as done. Its offset is committed right away or
// queued until the next successful flush.
func (c *Consumer) settle(ctx context.Context, msg kafka.Message) {
	if c.flusher == nil {
		c.commitMessage(ctx, msg)
		return
	}

	c.pendingMu.Lock()
	c.pending = append(c.pending, msg)
	full := len(c.pending) >= c.commitBatchSize()
	c.pendingMu.Unlock()

	if full {
		if err := c.flushAndCommit(ctx); err != nil {
			c.logger.Error("flush before commit failed", zap.Error(err))
		}
	}
}

func (c *Consumer) commitLoop(ctx context.Context) {
	interval := c.cfg.BatchTimeout
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.flushAndCommit(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("periodic flush before commit failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// flushAndCommit persists handled events, then commits their offsets. On
// failure the offsets stay pending and the next call retries them.
func (c *Consumer) flushAndCommit(ctx context.Context) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	c.pendingMu.Lock()
	msgs := c.pending
	c.pending = nil
	c.pendingMu.Unlock()
	if len(msgs) == 0 {
		return nil
	}

	if err := c.flusher.Flush(ctx); err != nil {
		c.requeue(msgs)
		return fmt.Errorf("flushing %d events: %w", len(msgs), err)
	}
	if err := c.committer.CommitMessages(ctx, msgs...); err != nil {
		c.requeue(msgs)
		return fmt.Errorf("committing %d offsets: %w", len(msgs), err)
	}
	return nil
}

func (c *Consumer) requeue(msgs []kafka.Message) {
	c.pendingMu.Lock()
	c.pending = append(msgs, c.pending...)
	c.pendingMu.Unlock()
}

func (c *Consumer) commitBatchSize() int {
	if c.cfg.BatchSize > 0 {
		return c.cfg.BatchSize
	}
	return 500
}

func (c *Consumer) commitMessage(ctx context.Context, msg kafka.Message) {
	if err := c.committer.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("committing kafka message",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
	}
}

func (c *Consumer) HealthCheck(ctx context.Context) error {
	if len(c.cfg.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", c.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka health check dial: %w", err)
	}
	defer conn.Close()

	_, err = conn.Brokers()
	if err != nil {
		return fmt.Errorf("kafka health check brokers: %w", err)
	}
	return nil
}

func (c *Consumer) Stop() error {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()

	var errs []error
	if c.flusher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := c.flushAndCommit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final flush: %w", err))
		}
		cancel()
	}
	if err := c.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing reader: %w", err))
	}
	if err := c.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing dlq writer: %w", err))
	}
	return errors.Join(errs...)
}
