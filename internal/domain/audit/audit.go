package audit

import (
	"time"

	"github.com/scho1ar-go/pkg/audit"
)

// SecurityAuditEvent is the persisted form of an audit.Event.
type SecurityAuditEvent struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Action         string    `json:"action" gorm:"type:varchar(64);not null;index"`
	SubjectID      string    `json:"subjectId" gorm:"index"`
	OrganizationID string    `json:"organizationId" gorm:"index"`
	Resource       string    `json:"resource" gorm:"not null"`
	Reason         string    `json:"reason"`
	RequestID      string    `json:"requestId"`
	CreatedAt      time.Time `json:"createdAt" gorm:"index"`
}

func (SecurityAuditEvent) TableName() string {
	return "security_audit_events"
}

func FromEvent(e audit.Event) *SecurityAuditEvent {
	return &SecurityAuditEvent{
		ID:             e.ID,
		Action:         e.Action,
		SubjectID:      e.SubjectID,
		OrganizationID: e.OrganizationID,
		Resource:       e.Resource,
		Reason:         e.Reason,
		RequestID:      e.RequestID,
		CreatedAt:      e.OccurredAt,
	}
}
