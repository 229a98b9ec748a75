package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/progress"
)

// Publisher delivers a payload to a named topic and returns the broker
// message id. Implementations own the payload encoding.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublishSink forwards terminal task events to a message topic so external
// consumers can react to finished tasks without polling.
type PublishSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink wires a publisher and topic to the sink interface.
func NewPublishSink(publisher Publisher, topic string, logger *zap.Logger) (*PublishSink, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}, nil
}

// Consume publishes every terminal event in the batch. Non-terminal stages are
// skipped. Publish errors are joined after the whole batch is tried.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if !evt.Stage.Terminal() {
			continue
		}
		msgID, err := s.publisher.Publish(ctx, s.topic, evt)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish task event %s: %w", evt.TaskID, err))
			continue
		}
		s.logger.Debug("task event published",
			zap.String("task_id", evt.TaskID),
			zap.String("stage", string(evt.Stage)),
			zap.String("message_id", msgID),
		)
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; the publisher's lifecycle is owned by the caller.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
