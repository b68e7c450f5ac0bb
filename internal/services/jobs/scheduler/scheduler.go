// Package scheduler periodically queues cloud account syncs. With several
// replicas running, a redis lock lets one of them act per tick.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/scho1ar-go/internal/domain/cloudaccount"
	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/pkg/logger"
)

const (
	lockKey      = "scheduler:cloud-account-sync"
	staleAfter   = 5 * time.Minute
	requeueBatch = 100
	tickTimeout  = 2 * time.Minute
	minLockTTL   = time.Second
	systemActor  = "system:scheduler"
)

type Accounts interface {
	ListSyncable(ctx context.Context) ([]cloudaccount.CloudAccount, error)
}

type Jobs interface {
	Create(ctx context.Context, organizationID string, kind job.Kind, resourceID, createdBy string) (*job.Job, error)
}

type JobStore interface {
	HasActive(ctx context.Context, kind job.Kind, resourceID string) (bool, error)
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]job.Job, error)
}

type Dispatcher interface {
	Enqueue(d job.Descriptor) error
}

// TickResult summarizes one scheduler run.
type TickResult struct {
	Skipped  bool
	Created  int
	Requeued int
}

type SyncScheduler struct {
	cron       *cron.Cron
	schedule   cron.Schedule
	accounts   Accounts
	jobs       Jobs
	store      JobStore
	dispatcher Dispatcher
	redis      *redis.Client
	instanceID string
	lockTTL    time.Duration
	logger     logger.Logger
	now        func() time.Time
}

// NewSyncScheduler parses a standard five-field cron expression in UTC.
// rdb may be nil for a single replica.
func NewSyncScheduler(spec string, accounts Accounts, jobs Jobs, store JobStore, dispatcher Dispatcher, rdb *redis.Client, log logger.Logger) (*SyncScheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}

	s := &SyncScheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		schedule:   schedule,
		accounts:   accounts,
		jobs:       jobs,
		store:      store,
		dispatcher: dispatcher,
		redis:      rdb,
		instanceID: uuid.NewString(),
		logger:     log.Named("scheduler"),
		now:        time.Now,
	}
	s.lockTTL = lockTTL(schedule, s.now())

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduled sync failed", "error", err)
		}
	}))
	return s, nil
}

func (s *SyncScheduler) Start() {
	s.logger.Info("sync scheduler started", "next", s.schedule.Next(s.now().UTC()))
	s.cron.Start()
}

// Stop waits for a running tick to finish or ctx to end.
func (s *SyncScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("timeout waiting for scheduled sync to finish")
	}
}

// Tick queues a sync for every syncable account without an active sync and
// requeues jobs left pending by a full queue.
func (s *SyncScheduler) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	ok, err := s.acquire(ctx)
	if err != nil {
		return res, err
	}
	if !ok {
		s.logger.Debug("another replica owns this tick")
		res.Skipped = true
		return res, nil
	}

	accounts, err := s.accounts.ListSyncable(ctx)
	if err != nil {
		return res, err
	}
	for _, a := range accounts {
		active, err := s.store.HasActive(ctx, job.KindCloudAccountSync, a.ID)
		if err != nil {
			return res, err
		}
		if active {
			continue
		}
		if _, err := s.jobs.Create(ctx, a.OrganizationID, job.KindCloudAccountSync, a.ID, systemActor); err != nil {
			return res, err
		}
		res.Created++
	}

	stale, err := s.store.ListPending(ctx, s.now().UTC().Add(-staleAfter), requeueBatch)
	if err != nil {
		return res, err
	}
	for i := range stale {
		if err := s.dispatcher.Enqueue(stale[i].Descriptor()); err != nil {
			s.logger.Warn("queue still full, leaving jobs pending", "remaining", len(stale)-i)
			break
		}
		res.Requeued++
	}

	s.logger.Info("scheduled sync queued", "created", res.Created, "requeued", res.Requeued)
	return res, nil
}

func (s *SyncScheduler) acquire(ctx context.Context) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	ok, err := s.redis.SetNX(ctx, lockKey, s.instanceID, s.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire scheduler lock: %w", err)
	}
	return ok, nil
}

// lockTTL holds the lock for half the tick interval so it always expires
// before the next activation.
func lockTTL(schedule cron.Schedule, now time.Time) time.Duration {
	next := schedule.Next(now)
	ttl := schedule.Next(next).Sub(next) / 2
	if ttl < minLockTTL {
		return minLockTTL
	}
	return ttl
}
