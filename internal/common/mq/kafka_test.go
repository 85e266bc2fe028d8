package mq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type recordingCommitter struct {
	mu        sync.Mutex
	committed []int64
}

func (c *recordingCommitter) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.committed = append(c.committed, m.Offset)
	}
	return nil
}

type recordingProducer struct {
	topic    string
	messages []*Message
}

func (p *recordingProducer) Publish(_ context.Context, topic string, m *Message) error {
	p.topic = topic
	p.messages = append(p.messages, m)
	return nil
}

func (p *recordingProducer) PublishBatch(ctx context.Context, topic string, ms []*Message) error {
	for _, m := range ms {
		_ = p.Publish(ctx, topic, m)
	}
	return nil
}

func newTestSubscription(ctx context.Context, handler HandlerFunc, opts SubscribeOptions) (*kafkaSubscription, *recordingCommitter, *recordingProducer) {
	opts.SetDefaults()
	c := &recordingCommitter{}
	p := &recordingProducer{}
	return &kafkaSubscription{
		topic:      "judge.task",
		handler:    handler,
		opts:       opts,
		ctx:        ctx,
		commit:     c,
		deadLetter: p,
	}, c, p
}

func TestKafkaMessageHeaders(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := &Message{
		ID:         "sub-1",
		Body:       []byte(`{"status":"finished"}`),
		Headers:    map[string]string{"trace_id": "t-1"},
		Timestamp:  ts,
		RetryCount: 1,
		MaxRetries: 5,
		Expiration: 2 * time.Minute,
	}

	km := encodeMessage("judge.verdicts", msg)
	if km.Topic != "judge.verdicts" || string(km.Key) != "sub-1" {
		t.Fatalf("unexpected kafka message: topic=%s key=%s", km.Topic, km.Key)
	}

	got := decodeMessage(km)
	if got.ID != "sub-1" || string(got.Body) != string(msg.Body) {
		t.Fatalf("unexpected message: %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.RetryCount != 1 || got.MaxRetries != 5 || got.Expiration != 2*time.Minute {
		t.Fatalf("delivery metadata not preserved: %+v", got)
	}
	if v, ok := got.GetHeader("trace_id"); !ok || v != "t-1" || len(got.Headers) != 1 {
		t.Fatalf("only custom headers should remain: %v", got.Headers)
	}
}

func TestDecodeMessageFallsBackToKey(t *testing.T) {
	got := decodeMessage(kafka.Message{
		Key:     []byte("key-id"),
		Value:   []byte("x"),
		Headers: []kafka.Header{{Key: headerRetryCount, Value: []byte("bad")}, {Key: headerTTL, Value: []byte("-5")}},
	})
	if got.ID != "key-id" {
		t.Fatalf("ID = %q, want key-id", got.ID)
	}
	if got.RetryCount != 0 || got.Expiration != 0 {
		t.Fatalf("invalid metadata should be ignored, got %+v", got)
	}
}

func TestDeliverCommitsOnSuccess(t *testing.T) {
	calls := 0
	sub, c, _ := newTestSubscription(context.Background(), func(context.Context, *Message) error {
		calls++
		return nil
	}, SubscribeOptions{})

	sub.deliver(encodeMessage("judge.task", &Message{ID: "s-1", Body: []byte("{}")}))
	if calls != 1 || len(c.committed) != 1 {
		t.Fatalf("expected one call and one commit, got %d calls %v", calls, c.committed)
	}
}

func TestDeliverDeadLettersAfterRetries(t *testing.T) {
	calls := 0
	sub, c, p := newTestSubscription(context.Background(), func(context.Context, *Message) error {
		calls++
		return errors.New("judge unavailable")
	}, SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond, DeadLetterTopic: "judge.task.dlq"})

	msg := encodeMessage("judge.task", &Message{ID: "s-1", Body: []byte("{}")})
	msg.Offset = 42
	sub.deliver(msg)

	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if p.topic != "judge.task.dlq" || len(p.messages) != 1 {
		t.Fatalf("message not dead-lettered: %q %d", p.topic, len(p.messages))
	}
	dead := p.messages[0]
	if origin, _ := dead.GetHeader(HeaderOriginTopic); origin != "judge.task" {
		t.Fatalf("origin topic header = %q", origin)
	}
	if reason, _ := dead.GetHeader(HeaderLastError); reason != "judge unavailable" {
		t.Fatalf("last error header = %q", reason)
	}
	if len(c.committed) != 1 || c.committed[0] != 42 {
		t.Fatalf("dead-lettered message should be committed, got %v", c.committed)
	}
}

func TestDeliverDropsExpiredMessage(t *testing.T) {
	calls := 0
	sub, c, _ := newTestSubscription(context.Background(), func(context.Context, *Message) error {
		calls++
		return nil
	}, SubscribeOptions{MessageTTL: time.Minute})

	sub.deliver(encodeMessage("judge.task", &Message{ID: "s-1", Timestamp: time.Now().Add(-time.Hour)}))
	if calls != 0 || len(c.committed) != 1 {
		t.Fatalf("expired message should be committed unhandled, got %d calls %v", calls, c.committed)
	}
}

func TestDeliverLeavesMessageOnStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub, c, p := newTestSubscription(ctx, func(context.Context, *Message) error {
		return errors.New("boom")
	}, SubscribeOptions{MaxRetries: 3, RetryDelay: time.Hour, DeadLetterTopic: "dlq"})

	sub.deliver(encodeMessage("judge.task", &Message{ID: "s-1"}))
	if len(c.committed) != 0 || len(p.messages) != 0 {
		t.Fatalf("stopped subscription must not commit or dead-letter: %v %d", c.committed, len(p.messages))
	}
}

func TestSubscribeOptionsDefaults(t *testing.T) {
	var opts SubscribeOptions
	opts.SetDefaults()
	if opts.PrefetchCount != 1 || opts.Concurrency != 1 || opts.MaxRetries != 3 || opts.RetryDelay != time.Second {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestNewKafkaQueueRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaQueue(KafkaConfig{}); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestSubscribeValidation(t *testing.T) {
	q, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	if err != nil {
		t.Fatalf("new queue failed: %v", err)
	}
	defer func() { _ = q.Close() }()

	if err := q.Subscribe(context.Background(), "", func(context.Context, *Message) error { return nil }); err == nil {
		t.Fatal("expected error for empty topic")
	}
	if err := q.Subscribe(context.Background(), "judge.task", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
	if err := q.Subscribe(context.Background(), "judge.task", func(context.Context, *Message) error { return nil }); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if got := q.subscriptions[0].opts.ConsumerGroup; got != "codejudge-judge.task" {
		t.Fatalf("default consumer group = %q", got)
	}
}
