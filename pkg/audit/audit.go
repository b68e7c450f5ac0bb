// Package audit records security-relevant decisions without ever blocking
// the request that produced them.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/metrics"
)

const (
	ActionAccessDenied    = "access_denied"
	ActionAuthFailed      = "authentication_failed"
	ActionResourceCreated = "resource_created"
	ActionResourceDeleted = "resource_deleted"
)

type Event struct {
	ID             string    `json:"id"`
	Action         string    `json:"action"`
	SubjectID      string    `json:"subjectId,omitempty"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Resource       string    `json:"resource"`
	Reason         string    `json:"reason,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Sink accepts events. Emit must return promptly and never fail the caller.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Writer is a destination an AsyncSink fans events out to.
type Writer interface {
	Write(ctx context.Context, event Event) error
}

type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

type requestIDKey struct{}

// WithRequestID lets events emitted further down carry the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// AsyncSink buffers events in a bounded channel drained by one goroutine.
// Every event is logged; writers are best effort and their failures are
// only logged. A full buffer drops the event.
type AsyncSink struct {
	events  chan Event
	writers []Writer
	logger  logger.Logger
	timeout time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
}

func NewAsyncSink(bufferSize int, log logger.Logger, writers ...Writer) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	s := &AsyncSink{
		events:  make(chan Event, bufferSize),
		writers: writers,
		logger:  log.Named("audit"),
		timeout: 5 * time.Second,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AsyncSink) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.RequestID == "" {
		if id, ok := ctx.Value(requestIDKey{}).(string); ok {
			event.RequestID = id
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.AuditEventsDropped.Inc()
		return
	}

	select {
	case s.events <- event:
		metrics.AuditEventsEmitted.WithLabelValues(event.Action).Inc()
	default:
		metrics.AuditEventsDropped.Inc()
	}
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for event := range s.events {
		s.logger.Warn("security audit",
			"event_id", event.ID,
			"action", event.Action,
			"subject", event.SubjectID,
			"organization", event.OrganizationID,
			"resource", event.Resource,
			"reason", event.Reason,
			"request_id", event.RequestID,
		)
		for _, w := range s.writers {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			if err := w.Write(ctx, event); err != nil {
				s.logger.Error("audit writer failed", "event_id", event.ID, "error", err)
			}
			cancel()
		}
	}
}

// Close stops accepting events and waits for buffered ones to be written.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
