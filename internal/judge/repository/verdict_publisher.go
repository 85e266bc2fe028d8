package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codejudge/internal/common/mq"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
)

// MQVerdictPublisher publishes final verdict events to a message queue.
type MQVerdictPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQVerdictPublisher creates a new verdict publisher.
func NewMQVerdictPublisher(producer mq.Producer, topic string) *MQVerdictPublisher {
	return &MQVerdictPublisher{producer: producer, topic: topic}
}

// PublishVerdict publishes a final verdict event keyed by submission id.
func (p *MQVerdictPublisher) PublishVerdict(ctx context.Context, event model.VerdictEvent) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = event.SubmissionID
	message.SetHeader("event_type", "verdict.final")
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.MessagePublishFailed, "publish verdict event failed")
	}
	return nil
}

// MQTaskQueue enqueues asynchronous judge tasks.
type MQTaskQueue struct {
	producer mq.Producer
	topic    string
}

// NewMQTaskQueue creates a task queue publishing to topic.
func NewMQTaskQueue(producer mq.Producer, topic string) *MQTaskQueue {
	return &MQTaskQueue{producer: producer, topic: topic}
}

// Topic returns the task topic.
func (q *MQTaskQueue) Topic() string {
	return q.topic
}

// EnqueueTask publishes a judge task.
func (q *MQTaskQueue) EnqueueTask(ctx context.Context, task model.JudgeTask) error {
	if q == nil || q.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("task queue is not configured")
	}
	if q.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("task topic is required")
	}
	if task.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal judge task failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = task.SubmissionID
	if err := q.producer.Publish(ctx, q.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.JudgeQueueFull, "enqueue judge task failed")
	}
	return nil
}

// DecodeTask parses a queued judge task.
func DecodeTask(message *mq.Message) (model.JudgeTask, error) {
	var task model.JudgeTask
	if message == nil {
		return task, appErr.ValidationError("message", "required")
	}
	if err := json.Unmarshal(message.Body, &task); err != nil {
		return task, appErr.Wrapf(err, appErr.InvalidFormat, "decode judge task failed")
	}
	if task.SubmissionID == "" {
		task.SubmissionID = message.ID
	}
	if task.SubmissionID == "" {
		return task, appErr.ValidationError("submission_id", "required")
	}
	return task, nil
}
