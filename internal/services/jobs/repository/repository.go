package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/database"
	"github.com/scho1ar-go/pkg/pagination"
	"github.com/scho1ar-go/pkg/repository"
)

// Scope narrows job listings. OrganizationID is always set by the caller
// from the verified token.
type Scope struct {
	OrganizationID string
	Status         job.Status
	Kind           job.Kind
}

var SortColumns = pagination.NewSortColumns("createdAt", map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"status":    "status",
	"kind":      "kind",
})

type JobRepository struct {
	db *database.DB
}

func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Insert(ctx context.Context, j *job.Job) error {
	if err := r.db.WithContext(ctx).Create(j).Error; err != nil {
		return apperrors.Storage("insert job", err)
	}
	return nil
}

// Get returns the job only if it belongs to organizationID.
func (r *JobRepository) Get(ctx context.Context, organizationID, id string) (*job.Job, error) {
	var j job.Job
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, organizationID).
		First(&j).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NotFound("job", id)
		}
		return nil, apperrors.Storage("get job", err)
	}
	return &j, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*job.Job, error) {
	var j job.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperrors.NotFound("job", id)
		}
		return nil, apperrors.Storage("get job", err)
	}
	return &j, nil
}

func (r *JobRepository) FetchPage(ctx context.Context, b pagination.Bounds, c pagination.Criteria[Scope]) ([]job.Job, error) {
	var jobs []job.Job
	err := r.db.WithContext(ctx).
		Scopes(r.filter(c), repository.Page(b)).
		Find(&jobs).Error
	if err != nil {
		return nil, apperrors.Storage("list jobs", err)
	}
	return jobs, nil
}

func (r *JobRepository) Count(ctx context.Context, c pagination.Criteria[Scope]) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&job.Job{}).
		Scopes(r.filter(c)).
		Count(&total).Error
	if err != nil {
		return 0, apperrors.Storage("count jobs", err)
	}
	return total, nil
}

func (r *JobRepository) filter(c pagination.Criteria[Scope]) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("organization_id = ?", c.Scope.OrganizationID)
		if c.Scope.Status != "" {
			db = db.Where("status = ?", c.Scope.Status)
		}
		if c.Scope.Kind != "" {
			db = db.Where("kind = ?", c.Scope.Kind)
		}
		return db.Scopes(repository.Search(c.Search, "kind", "progress_message", "resource_id"))
	}
}

// MarkRunning moves a pending job to running. It reports false when the job
// was not pending.
func (r *JobRepository) MarkRunning(ctx context.Context, id, message string) (bool, error) {
	now := time.Now().UTC()
	return r.transition(ctx, "start job", id, job.StatusPending, map[string]interface{}{
		"status":           job.StatusRunning,
		"progress_message": message,
		"started_at":       now,
		"updated_at":       now,
	})
}

// UpdateProgress records progress on a running job. Updates for jobs that
// are not running affect nothing and report false.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress int, message string) (bool, error) {
	return r.transition(ctx, "advance job", id, job.StatusRunning, map[string]interface{}{
		"progress":         progress,
		"progress_message": message,
		"updated_at":       time.Now().UTC(),
	})
}

// Finish moves a running job to its terminal status.
func (r *JobRepository) Finish(ctx context.Context, id string, outcome job.Outcome) (bool, error) {
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":           outcome.Status,
		"progress_message": outcome.Message,
		"finished_at":      now,
		"updated_at":       now,
	}
	if outcome.Status == job.StatusSucceeded {
		fields["progress"] = 100
	}
	return r.transition(ctx, "finish job", id, job.StatusRunning, fields)
}

func (r *JobRepository) transition(ctx context.Context, op, id string, expected job.Status, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&job.Job{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(fields)
	if res.Error != nil {
		return false, apperrors.Storage(op, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// HasActive reports whether a pending or running job of kind exists for
// resourceID.
func (r *JobRepository) HasActive(ctx context.Context, kind job.Kind, resourceID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&job.Job{}).
		Where("kind = ? AND resource_id = ? AND status IN ?", kind, resourceID,
			[]job.Status{job.StatusPending, job.StatusRunning}).
		Count(&n).Error
	if err != nil {
		return false, apperrors.Storage("check active jobs", err)
	}
	return n > 0, nil
}

// ListPending returns jobs still pending that were created before cutoff,
// oldest first.
func (r *JobRepository) ListPending(ctx context.Context, cutoff time.Time, limit int) ([]job.Job, error) {
	var jobs []job.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", job.StatusPending, cutoff).
		Order("created_at").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, apperrors.Storage("list pending jobs", err)
	}
	return jobs, nil
}
