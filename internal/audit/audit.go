// Package audit records an append-only trail of chat and billing decisions.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/actualpc/phillip-therapy/internal/model"
	"github.com/actualpc/phillip-therapy/pkg/logger"
	"github.com/actualpc/phillip-therapy/pkg/metrics"
)

// Sink appends whole audit records. Each Append must be a single atomic write
// so concurrent writers never interleave partial records.
type Sink interface {
	Append(ctx context.Context, event *model.AuditEvent) error
	Name() string
}

// Recorder stamps events and fans them out to every sink. Write failures are
// logged and swallowed; auditing never fails the user-facing request.
type Recorder struct {
	sinks  []Sink
	logger *logger.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder over sinks.
func NewRecorder(log *logger.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:  sinks,
		logger: log,
		now:    time.Now,
	}
}

// Record assigns the event ID and timestamp if unset and appends it to all sinks.
func (r *Recorder) Record(ctx context.Context, event *model.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}

	for _, s := range r.sinks {
		if err := s.Append(ctx, event); err != nil {
			metrics.AuditWriteFailures.WithLabelValues(s.Name()).Inc()
			r.logger.Warn("audit append failed",
				zap.String("sink", s.Name()),
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}
}
