package repository

import (
	"context"
	"encoding/json"
	"time"

	"codegrade/internal/common/mq"
	"codegrade/internal/execution/model"
	"codegrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// ExecutionEvent is the message emitted when a grading request finishes.
type ExecutionEvent struct {
	SubmissionID  string                `json:"submission_id"`
	Status        model.ExecutionStatus `json:"status"`
	OverallPassed bool                  `json:"overall_passed"`
	TotalTimeMs   int64                 `json:"total_time_ms"`
	PeakMemoryMB  float64               `json:"peak_memory_mb"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	FinishedAt    int64                 `json:"finished_at"`
}

// EventPublisher emits execution lifecycle events to the message queue.
// Publishing is best-effort relative to the grading result: a broker outage
// must not turn a finished grading into a failure.
type EventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewEventPublisher creates a publisher for the given topic.
func NewEventPublisher(producer mq.Producer, topic string) *EventPublisher {
	if topic == "" {
		topic = "execution.finished"
	}
	return &EventPublisher{producer: producer, topic: topic}
}

// PublishFinished emits the terminal event for a submission. Errors are
// logged and swallowed; see the type comment.
func (p *EventPublisher) PublishFinished(ctx context.Context, record *model.ExecutionStatusRecord) {
	if p == nil || p.producer == nil || record == nil {
		return
	}
	event := ExecutionEvent{
		SubmissionID: record.SubmissionID,
		Status:       record.Status,
		ErrorMessage: record.ErrorMessage,
		FinishedAt:   record.Timestamps.FinishedAt,
	}
	if record.Summary != nil {
		event.OverallPassed = record.Summary.OverallPassed
		event.TotalTimeMs = record.Summary.TotalExecutionTimeMs
		event.PeakMemoryMB = record.Summary.PeakMemoryMB
	}
	body, err := json.Marshal(event)
	if err != nil {
		logger.Error(ctx, "marshal execution event failed",
			zap.String("submission_id", record.SubmissionID),
			zap.Error(err))
		return
	}
	msg := &mq.Message{
		ID:        record.SubmissionID,
		Body:      body,
		Timestamp: time.Now(),
	}
	if err := p.producer.Publish(ctx, p.topic, msg); err != nil {
		logger.Warn(ctx, "publish execution event failed",
			zap.String("submission_id", record.SubmissionID),
			zap.Error(err))
	}
}
