// Package lifecycle owns background job state. Handlers create and read
// jobs; only the executor moves them through their statuses.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/internal/services/jobs/repository"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/metrics"
	"github.com/scho1ar-go/pkg/pagination"
)

// ErrNotPending is returned by Start when the job already left pending.
var ErrNotPending = errors.New("job is not pending")

type Store interface {
	pagination.Store[job.Job, repository.Scope]
	Insert(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, organizationID, id string) (*job.Job, error)
	GetByID(ctx context.Context, id string) (*job.Job, error)
	MarkRunning(ctx context.Context, id, message string) (bool, error)
	UpdateProgress(ctx context.Context, id string, progress int, message string) (bool, error)
	Finish(ctx context.Context, id string, outcome job.Outcome) (bool, error)
}

// Dispatcher hands a created job to the executor without blocking.
type Dispatcher interface {
	Enqueue(d job.Descriptor) error
}

type Manager struct {
	store      Store
	dispatcher Dispatcher
	logger     logger.Logger
}

func NewManager(store Store, dispatcher Dispatcher, log logger.Logger) *Manager {
	return &Manager{store: store, dispatcher: dispatcher, logger: log.Named("jobs")}
}

// Create inserts a pending job and queues it. It returns as soon as the job
// is stored. If the queue rejects the job it stays pending and is picked up
// by the next scheduled sweep.
func (m *Manager) Create(ctx context.Context, organizationID string, kind job.Kind, resourceID, createdBy string) (*job.Job, error) {
	j := job.New(organizationID, kind, resourceID, createdBy, "Queued")
	if err := m.store.Insert(ctx, j); err != nil {
		return nil, err
	}
	metrics.RecordJobTransition(string(kind), string(job.StatusPending))

	if err := m.dispatcher.Enqueue(j.Descriptor()); err != nil {
		m.logger.Error("failed to queue job", "job_id", j.ID, "kind", string(kind), "error", err)
	}
	return j, nil
}

func (m *Manager) Get(ctx context.Context, organizationID, id string) (*job.Job, error) {
	return m.store.Get(ctx, organizationID, id)
}

func (m *Manager) List(ctx context.Context, req pagination.Request, scope repository.Scope) (*pagination.Result[job.Job], error) {
	return pagination.List[job.Job, repository.Scope](ctx, req, repository.SortColumns, scope, m.store)
}

// Start moves a pending job to running.
func (m *Manager) Start(ctx context.Context, id, message string) error {
	ok, err := m.store.MarkRunning(ctx, id, message)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("start job %s: %w", id, ErrNotPending)
	}
	return nil
}

// Advance records progress on a running job. Progress for a job that is not
// running is dropped without error.
func (m *Manager) Advance(ctx context.Context, id string, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	ok, err := m.store.UpdateProgress(ctx, id, progress, message)
	if err != nil {
		return err
	}
	if !ok {
		m.logger.Debug("ignoring progress for job that is not running", "job_id", id, "progress", progress)
	}
	return nil
}

// Finish moves a running job to its terminal status. Finishing a job that is
// not running changes nothing.
func (m *Manager) Finish(ctx context.Context, id string, outcome job.Outcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("finish job %s: %q is not a terminal status", id, outcome.Status)
	}
	ok, err := m.store.Finish(ctx, id, outcome)
	if err != nil {
		return err
	}
	if !ok {
		m.logger.Warn("ignoring finish for job that is not running", "job_id", id, "status", string(outcome.Status))
		return nil
	}
	return nil
}
