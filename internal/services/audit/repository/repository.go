package repository

import (
	"context"
	"time"

	domain "github.com/scho1ar-go/internal/domain/audit"
	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/audit"
	"github.com/scho1ar-go/pkg/database"
)

// AuditRepository persists security audit events. It is an audit.Writer.
type AuditRepository struct {
	db *database.DB
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Write(ctx context.Context, event audit.Event) error {
	if err := r.db.WithContext(ctx).Create(domain.FromEvent(event)).Error; err != nil {
		return apperrors.Storage("insert audit event", err)
	}
	return nil
}

// ListSince returns an organization's events newer than since, newest first.
func (r *AuditRepository) ListSince(ctx context.Context, organizationID string, since time.Time, limit int) ([]domain.SecurityAuditEvent, error) {
	var events []domain.SecurityAuditEvent
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND created_at >= ?", organizationID, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Storage("list audit events", err)
	}
	return events, nil
}
