package audit

import (
	"context"

	"github.com/actualpc/phillip-therapy/internal/model"
)

// Publisher publishes audit events to a message stream.
type Publisher interface {
	PublishEvent(ctx context.Context, event *model.AuditEvent) (uint64, error)
}

// StreamSink mirrors audit events onto a JetStream stream.
type StreamSink struct {
	publisher Publisher
}

// NewStreamSink creates a sink backed by publisher.
func NewStreamSink(publisher Publisher) *StreamSink {
	return &StreamSink{publisher: publisher}
}

// Name implements Sink.
func (s *StreamSink) Name() string {
	return "jetstream"
}

// Append implements Sink.
func (s *StreamSink) Append(ctx context.Context, event *model.AuditEvent) error {
	_, err := s.publisher.PublishEvent(ctx, event)
	return err
}
