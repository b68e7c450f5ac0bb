package job

import (
	"time"

	"github.com/google/uuid"
)

// Status of a background job. The only transitions are
// pending -> running -> succeeded|failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusSucceeded, StatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Kind string

const KindCloudAccountSync Kind = "cloud_account.sync"

type Job struct {
	ID              string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrganizationID  string     `json:"organizationId" gorm:"not null;index:idx_jobs_org_created"`
	Kind            Kind       `json:"kind" gorm:"type:varchar(64);not null"`
	ResourceID      string     `json:"resourceId,omitempty" gorm:"index"`
	Status          Status     `json:"status" gorm:"type:varchar(16);not null;index"`
	Progress        int        `json:"progress" gorm:"not null;default:0"`
	ProgressMessage string     `json:"progressMessage"`
	CreatedBy       string     `json:"createdBy"`
	CreatedAt       time.Time  `json:"createdAt" gorm:"index:idx_jobs_org_created"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

func (Job) TableName() string {
	return "background_jobs"
}

// New returns a pending job with zero progress.
func New(organizationID string, kind Kind, resourceID, createdBy, message string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:              uuid.NewString(),
		OrganizationID:  organizationID,
		Kind:            kind,
		ResourceID:      resourceID,
		Status:          StatusPending,
		Progress:        0,
		ProgressMessage: message,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Outcome is how a run ended.
type Outcome struct {
	Status  Status
	Message string
}

func Succeeded(message string) Outcome {
	return Outcome{Status: StatusSucceeded, Message: message}
}

func Failed(message string) Outcome {
	return Outcome{Status: StatusFailed, Message: message}
}

// Accepted is the body returned when a job-trigger endpoint queues work.
type Accepted struct {
	JobID           string `json:"jobId"`
	Status          Status `json:"status"`
	Progress        int    `json:"progress"`
	ProgressMessage string `json:"progressMessage"`
}

func (j *Job) Accepted() Accepted {
	return Accepted{
		JobID:           j.ID,
		Status:          j.Status,
		Progress:        j.Progress,
		ProgressMessage: j.ProgressMessage,
	}
}

// Descriptor is what the executor receives for a queued job.
type Descriptor struct {
	ID             string
	OrganizationID string
	Kind           Kind
	ResourceID     string
}

func (j *Job) Descriptor() Descriptor {
	return Descriptor{ID: j.ID, OrganizationID: j.OrganizationID, Kind: j.Kind, ResourceID: j.ResourceID}
}
