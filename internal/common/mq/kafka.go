package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"codejudge/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Metadata travels in Kafka headers so consumers can restore a Message.
const (
	headerID         = "cj-message-id"
	headerTimestamp  = "cj-message-ts"
	headerRetryCount = "cj-retry-count"
	headerMaxRetries = "cj-max-retries"
	headerTTL        = "cj-ttl-ms"

	// Set on dead-lettered messages.
	HeaderOriginTopic = "cj-origin-topic"
	HeaderLastError   = "cj-last-error"
)

const fetchBackoff = 100 * time.Millisecond

// KafkaConfig defines configuration for Kafka implementation.
type KafkaConfig struct {
	Brokers  []string
	ClientID string

	// Producer settings
	RequiredAcks kafka.RequiredAcks
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafka.Compression

	// Consumer settings
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// Dialer settings
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *KafkaConfig) setDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 50 * time.Millisecond
	}
	if c.MinBytes == 0 {
		c.MinBytes = 1 << 10
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxWait == 0 {
		c.MaxWait = time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = kafka.RequireOne
	}
}

// KafkaQueue implements MessageQueue on Kafka. Each subscription owns a
// consumer-group reader and a pool of handler workers.
type KafkaQueue struct {
	config KafkaConfig
	writer *kafka.Writer
	dialer *kafka.Dialer

	mu            sync.Mutex
	subscriptions []*kafkaSubscription
	started       bool
	closed        bool
}

var _ MessageQueue = (*KafkaQueue)(nil)

// committer acknowledges fetched messages.
type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	reader     *kafka.Reader
	commit     committer
	deadLetter Producer
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewKafkaQueue creates a Kafka-backed message queue.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	cfg.setDefaults()

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: cfg.RequiredAcks,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  cfg.Compression,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
			ClientID: cfg.ClientID,
		},
	}
	return &KafkaQueue{config: cfg, writer: writer, dialer: dialer}, nil
}

// Publish publishes a message to a topic. Messages are keyed by ID, so all
// events of one submission land on the same partition.
func (k *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	return k.writer.WriteMessages(ctx, encodeMessage(topic, message))
}

// PublishBatch publishes multiple messages in one write.
func (k *KafkaQueue) PublishBatch(ctx context.Context, topic string, messages []*Message) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if len(messages) == 0 {
		return errors.New("messages are required")
	}
	batch := make([]kafka.Message, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			return errors.New("message is nil")
		}
		batch = append(batch, encodeMessage(topic, msg))
	}
	return k.writer.WriteMessages(ctx, batch...)
}

// Subscribe subscribes to a topic with default options.
func (k *KafkaQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	return k.SubscribeWithOptions(ctx, topic, handler, nil)
}

// SubscribeWithOptions registers a handler. Consumption begins on Start, or
// immediately when the queue is already started.
func (k *KafkaQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = fmt.Sprintf("codejudge-%s", topic)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sub := &kafkaSubscription{
		topic:      topic,
		handler:    handler,
		opts:       options,
		baseCtx:    ctx,
		deadLetter: k,
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("message queue is closed")
	}
	k.subscriptions = append(k.subscriptions, sub)
	if k.started {
		k.startSubscription(sub)
	}
	return nil
}

// Start starts consuming messages for all subscriptions.
func (k *KafkaQueue) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("message queue is closed")
	}
	if k.started {
		return nil
	}
	for _, sub := range k.subscriptions {
		k.startSubscription(sub)
	}
	k.started = true
	return nil
}

// Stop cancels all consumers and waits for in-flight handlers.
func (k *KafkaQueue) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, sub := range k.subscriptions {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range k.subscriptions {
		sub.wg.Wait()
		if sub.reader != nil {
			_ = sub.reader.Close()
			sub.reader = nil
		}
	}
	k.started = false
	return nil
}

// Ping dials the first reachable broker.
func (k *KafkaQueue) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range k.config.Brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// Close stops consumers and flushes the producer.
func (k *KafkaQueue) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	_ = k.Stop()
	return k.writer.Close()
}

func (k *KafkaQueue) startSubscription(sub *kafkaSubscription) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       sub.topic,
		GroupID:     sub.opts.ConsumerGroup,
		Dialer:      k.dialer,
		MinBytes:    k.config.MinBytes,
		MaxBytes:    k.config.MaxBytes,
		MaxWait:     k.config.MaxWait,
		StartOffset: kafka.LastOffset,
	})
	sub.reader = reader
	sub.commit = reader
	sub.ctx, sub.cancel = context.WithCancel(sub.baseCtx)

	msgCh := make(chan kafka.Message, sub.opts.Concurrency*sub.opts.PrefetchCount)
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		defer close(msgCh)
		for {
			msg, err := reader.FetchMessage(sub.ctx)
			if err != nil {
				if sub.ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				logger.Warn(sub.ctx, "kafka fetch failed", zap.String("topic", sub.topic), zap.Error(err))
				select {
				case <-sub.ctx.Done():
					return
				case <-time.After(fetchBackoff):
				}
				continue
			}
			select {
			case msgCh <- msg:
			case <-sub.ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < sub.opts.Concurrency; i++ {
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			for msg := range msgCh {
				sub.deliver(msg)
			}
		}()
	}
}

// deliver runs the handler with retries. The message is committed once it
// succeeds, expires, or is dead-lettered; it stays uncommitted only when the
// subscription is stopped mid-retry.
func (sub *kafkaSubscription) deliver(msg kafka.Message) {
	m := decodeMessage(msg)
	if m.MaxRetries == 0 {
		m.MaxRetries = sub.opts.MaxRetries
	}
	if m.Expiration == 0 {
		m.Expiration = sub.opts.MessageTTL
	}
	fields := []zap.Field{zap.String("topic", sub.topic), zap.String("message_id", m.ID), zap.Int64("offset", msg.Offset)}

	if m.Expiration > 0 && !m.Timestamp.IsZero() && time.Since(m.Timestamp) > m.Expiration {
		logger.Warn(sub.ctx, "drop expired message", fields...)
		sub.ack(msg, fields)
		return
	}

	for {
		err := sub.handler(sub.ctx, m)
		if err == nil {
			sub.ack(msg, fields)
			return
		}
		m.RetryCount++
		if m.RetryCount > m.MaxRetries {
			logger.Error(sub.ctx, "message handler exhausted retries", append(fields, zap.Int("retries", m.MaxRetries), zap.Error(err))...)
			sub.sendToDeadLetter(m, err, fields)
			sub.ack(msg, fields)
			return
		}
		logger.Warn(sub.ctx, "message handler failed", append(fields, zap.Int("attempt", m.RetryCount), zap.Error(err))...)
		select {
		case <-sub.ctx.Done():
			return
		case <-time.After(sub.opts.RetryDelay):
		}
	}
}

func (sub *kafkaSubscription) sendToDeadLetter(m *Message, cause error, fields []zap.Field) {
	if sub.opts.DeadLetterTopic == "" || sub.deadLetter == nil {
		return
	}
	m.SetHeader(HeaderOriginTopic, sub.topic)
	m.SetHeader(HeaderLastError, cause.Error())
	if err := sub.deadLetter.Publish(sub.ctx, sub.opts.DeadLetterTopic, m); err != nil {
		logger.Error(sub.ctx, "dead letter publish failed", append(fields, zap.Error(err))...)
	}
}

func (sub *kafkaSubscription) ack(msg kafka.Message, fields []zap.Field) {
	if err := sub.commit.CommitMessages(sub.ctx, msg); err != nil && sub.ctx.Err() == nil {
		logger.Warn(sub.ctx, "kafka commit failed", append(fields, zap.Error(err))...)
	}
}

func encodeMessage(topic string, message *Message) kafka.Message {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	headers := make([]kafka.Header, 0, len(message.Headers)+5)
	for k, v := range message.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	add := func(key, value string) {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	if message.ID != "" {
		add(headerID, message.ID)
	}
	add(headerTimestamp, message.Timestamp.Format(time.RFC3339Nano))
	if message.RetryCount > 0 {
		add(headerRetryCount, strconv.Itoa(message.RetryCount))
	}
	if message.MaxRetries > 0 {
		add(headerMaxRetries, strconv.Itoa(message.MaxRetries))
	}
	if message.Expiration > 0 {
		add(headerTTL, strconv.FormatInt(message.Expiration.Milliseconds(), 10))
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Headers: headers,
		Time:    message.Timestamp,
	}
}

// decodeMessage restores a Message. Malformed metadata headers are ignored.
func decodeMessage(msg kafka.Message) *Message {
	m := &Message{
		Body:      msg.Value,
		Headers:   make(map[string]string),
		Timestamp: msg.Time,
	}
	for _, h := range msg.Headers {
		value := string(h.Value)
		switch h.Key {
		case headerID:
			m.ID = value
		case headerTimestamp:
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				m.Timestamp = ts
			}
		case headerRetryCount:
			m.RetryCount = nonNegative(value)
		case headerMaxRetries:
			m.MaxRetries = nonNegative(value)
		case headerTTL:
			m.Expiration = time.Duration(nonNegative(value)) * time.Millisecond
		default:
			m.Headers[h.Key] = value
		}
	}
	if m.ID == "" {
		m.ID = string(msg.Key)
	}
	return m
}

func nonNegative(value string) int {
	v, err := strconv.Atoi(value)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
