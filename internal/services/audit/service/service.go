// Package service assembles the security audit sink from its configured
// destinations.
package service

import (
	"context"

	"github.com/scho1ar-go/internal/services/audit/repository"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/database"
	"github.com/scho1ar-go/pkg/events"
	"github.com/scho1ar-go/pkg/logger"
)

const (
	aggregateType = "organization"
	bufferSize    = 1024
)

// StreamWriter forwards audit events to the event stream.
type StreamWriter struct {
	publisher events.Publisher
}

func NewStreamWriter(publisher events.Publisher) *StreamWriter {
	return &StreamWriter{publisher: publisher}
}

func (w *StreamWriter) Write(ctx context.Context, e audit.Event) error {
	event, err := events.NewEvent("security."+e.Action, aggregateType, e.OrganizationID, e)
	if err != nil {
		return err
	}
	event.ID = e.ID
	event.Timestamp = e.OccurredAt
	event.Metadata.RequestID = e.RequestID
	return w.publisher.Publish(ctx, event)
}

// NewAuditSink returns a sink that logs every event and also stores it in
// db and publishes it when those are given.
func NewAuditSink(db *database.DB, publisher events.Publisher, log logger.Logger) *audit.AsyncSink {
	var writers []audit.Writer
	if db != nil {
		writers = append(writers, repository.NewAuditRepository(db))
	}
	if publisher != nil {
		writers = append(writers, NewStreamWriter(publisher))
	}
	return audit.NewAsyncSink(bufferSize, log, writers...)
}
