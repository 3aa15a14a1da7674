package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message represents a generic Kafka message
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler is a function that processes a Kafka message
type Handler func(ctx context.Context, msg Message) error

// Publisher is the subset of Producer the consumer needs for dead-lettering.
type Publisher interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// ConsumerConfig configures a job consumer.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	ClientID string

	// DLQTopic receives messages whose handler error is Permanent.
	DLQTopic string
	DLQ      Publisher
	// Permanent reports whether a handler error will never succeed on redelivery.
	Permanent func(error) bool

	// RetryDelay is how long a failed partition waits before it is re-polled.
	RetryDelay time.Duration
}

type topicPartition struct {
	topic     string
	partition int32
}

// Consumer routes records to per-topic handlers. Records of one partition are
// handled strictly in order; a retryable failure rewinds the partition to the
// failed offset so nothing after it is committed.
type Consumer struct {
	client   *kgo.Client
	logger   *logrus.Logger
	cfg      ConsumerConfig
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger *logrus.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		client:   client,
		logger:   logger,
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}, nil
}

// AddHandler registers a handler for a specific topic and subscribes to it
func (c *Consumer) AddHandler(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler
	if c.client != nil {
		c.client.AddConsumeTopics(topic)
	}
}

// Close closes the underlying client
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

// Start polls until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := c.client.PollFetches(ctx)
		if errs := fetches.Errors(); len(errs) > 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Errorf("errors while polling: %v", errs)
			continue
		}

		var records []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})

		commit, failed := c.processRecords(ctx, records)
		if len(commit) > 0 {
			if err := c.client.CommitRecords(ctx, commit...); err != nil {
				c.logger.WithError(err).Error("failed to commit records")
			}
		}
		if len(failed) > 0 {
			c.rewind(failed)
			c.client.AllowRebalance()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
			continue
		}
		c.client.AllowRebalance()
	}
}

func (c *Consumer) rewind(failed map[topicPartition]*kgo.Record) {
	offsets := make(map[string]map[int32]kgo.EpochOffset)
	for tp, rec := range failed {
		if offsets[tp.topic] == nil {
			offsets[tp.topic] = make(map[int32]kgo.EpochOffset)
		}
		offsets[tp.topic][tp.partition] = kgo.EpochOffset{Epoch: rec.LeaderEpoch, Offset: rec.Offset}
	}
	c.client.SetOffsets(offsets)
}

// processRecords returns the last record to commit per partition and the
// first failed record of every partition that must be redelivered.
func (c *Consumer) processRecords(ctx context.Context, records []*kgo.Record) ([]*kgo.Record, map[topicPartition]*kgo.Record) {
	failed := make(map[topicPartition]*kgo.Record)
	lastSuccess := make(map[topicPartition]*kgo.Record)

	for _, record := range records {
		tp := topicPartition{topic: record.Topic, partition: record.Partition}
		if failed[tp] != nil {
			continue
		}

		c.mu.RLock()
		handler, exists := c.handlers[record.Topic]
		c.mu.RUnlock()

		if !exists {
			c.logger.WithField("topic", record.Topic).Warn("No handler registered for topic")
			lastSuccess[tp] = record
			continue
		}

		msg := toMessage(record)
		fields := logrus.Fields{
			"topic":     record.Topic,
			"partition": record.Partition,
			"offset":    record.Offset,
		}

		err := handler(ctx, msg)
		if err == nil {
			lastSuccess[tp] = record
			continue
		}

		if c.cfg.Permanent != nil && c.cfg.Permanent(err) {
			if dlqErr := c.deadLetter(ctx, msg, err); dlqErr != nil {
				c.logger.WithError(dlqErr).WithFields(fields).Error("Failed to dead-letter message; will retry")
				failed[tp] = record
				continue
			}
			c.logger.WithError(err).WithFields(fields).Warn("Permanent handler failure; message dead-lettered")
			lastSuccess[tp] = record
			continue
		}

		c.logger.WithError(err).WithFields(fields).Error("Failed to handle message; partition will be retried")
		failed[tp] = record
	}

	if len(lastSuccess) == 0 {
		return nil, failed
	}
	commit := make([]*kgo.Record, 0, len(lastSuccess))
	for _, record := range lastSuccess {
		commit = append(commit, record)
	}
	return commit, failed
}

func (c *Consumer) deadLetter(ctx context.Context, msg Message, cause error) error {
	if c.cfg.DLQ == nil || c.cfg.DLQTopic == "" {
		// Nowhere to park it; dropping is still better than blocking forever.
		return nil
	}
	payload, err := EncodeDLQMessage(msg, cause, c.cfg.GroupID)
	if err != nil {
		return err
	}
	return c.cfg.DLQ.Produce(ctx, c.cfg.DLQTopic, msg.Key, payload, map[string]string{"source_topic": msg.Topic})
}

func toMessage(record *kgo.Record) Message {
	hdrs := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		hdrs[h.Key] = string(h.Value)
	}
	return Message{
		Key:       record.Key,
		Value:     record.Value,
		Headers:   hdrs,
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Timestamp: record.Timestamp,
	}
}

// HealthCheck pings the broker
func (c *Consumer) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}
