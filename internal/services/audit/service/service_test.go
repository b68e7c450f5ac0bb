package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/scho1ar-go/internal/domain/audit"
	"github.com/scho1ar-go/internal/services/audit/repository"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/database/databasetest"
	"github.com/scho1ar-go/pkg/events"
	"github.com/scho1ar-go/pkg/logger"
)

type memoryPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *memoryPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *memoryPublisher) Close() error { return nil }

func TestAuditSinkFansOut(t *testing.T) {
	db := databasetest.New(t, &domain.SecurityAuditEvent{})
	publisher := &memoryPublisher{}
	sink := NewAuditSink(db, publisher, logger.NewNop())

	ctx := audit.WithRequestID(context.Background(), "req-42")
	sink.Emit(ctx, audit.Event{
		Action:         audit.ActionAccessDenied,
		SubjectID:      "user_1",
		OrganizationID: "org_1",
		Resource:       "cloud-accounts",
		Reason:         "organization mismatch",
	})

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(closeCtx))

	stored, err := repository.NewAuditRepository(db).ListSince(context.Background(), "org_1", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, audit.ActionAccessDenied, stored[0].Action)
	assert.Equal(t, "req-42", stored[0].RequestID)

	require.Len(t, publisher.events, 1)
	published := publisher.events[0]
	assert.Equal(t, "security."+audit.ActionAccessDenied, published.Type)
	assert.Equal(t, "org_1", published.AggregateID)
	assert.Equal(t, stored[0].ID, published.ID)
	assert.Equal(t, "req-42", published.Metadata.RequestID)

	var payload audit.Event
	require.NoError(t, json.Unmarshal(published.Payload, &payload))
	assert.Equal(t, "organization mismatch", payload.Reason)
}

func TestAuditSinkWithoutDestinations(t *testing.T) {
	sink := NewAuditSink(nil, nil, logger.NewNop())
	sink.Emit(context.Background(), audit.Event{Action: audit.ActionAuthFailed, Resource: "api"})
	require.NoError(t, sink.Close(context.Background()))
}
