package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/metrics"
)

// Lifecycle is the subset of the job manager the pool drives.
type Lifecycle interface {
	Start(ctx context.Context, id, message string) error
	Advance(ctx context.Context, id string, progress int, message string) error
	Finish(ctx context.Context, id string, outcome job.Outcome) error
}

// Reporter lets a running task publish progress on its own job.
type Reporter interface {
	Advance(ctx context.Context, progress int, message string)
}

// Task performs the work of one job and returns the final progress message.
type Task func(ctx context.Context, d job.Descriptor, r Reporter) (string, error)

// Failure is a task error whose message is safe to show to clients.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return f.Message + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

func Fail(message string, err error) *Failure {
	return &Failure{Message: message, Err: err}
}

type Config struct {
	Workers     int
	TaskTimeout time.Duration
}

// Pool runs queued jobs on a fixed number of workers. Each job runs on a
// context detached from the request that created it.
type Pool struct {
	cfg       Config
	queue     *Queue
	lifecycle Lifecycle
	logger    logger.Logger

	mu    sync.RWMutex
	tasks map[job.Kind]Task

	stopCh    chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

func NewPool(cfg Config, queue *Queue, lifecycle Lifecycle, log logger.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 15 * time.Minute
	}
	return &Pool{
		cfg:       cfg,
		queue:     queue,
		lifecycle: lifecycle,
		logger:    log.Named("worker"),
		tasks:     make(map[job.Kind]Task),
		stopCh:    make(chan struct{}),
	}
}

func (p *Pool) Register(kind job.Kind, task Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks[kind] = task
}

func (p *Pool) Size() int {
	return p.cfg.Workers
}

func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.work(i + 1)
		}
		p.logger.Info("worker pool started", "workers", p.cfg.Workers)
	})
}

// Shutdown stops taking new jobs and waits for running ones until ctx ends.
// Jobs still queued stay pending.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped", "queued", p.queue.Len())
		return nil
	case <-ctx.Done():
		p.logger.Warn("timeout waiting for workers to stop")
		return ctx.Err()
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	for {
		// Prefer stopping over picking up more work.
		select {
		case <-p.stopCh:
			return
		default:
		}

		select {
		case d := <-p.queue.ch:
			metrics.JobQueueDepth.Set(float64(p.queue.Len()))
			p.run(id, d)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) run(workerID int, d job.Descriptor) {
	log := p.logger.With("job_id", d.ID, "kind", string(d.Kind), "worker", workerID)

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TaskTimeout)
	defer cancel()

	if err := p.lifecycle.Start(ctx, d.ID, "Running"); err != nil {
		log.Warn("job not started", "error", err)
		return
	}
	metrics.RecordJobTransition(string(d.Kind), string(job.StatusRunning))

	started := time.Now()
	outcome := p.execute(ctx, log, d)
	metrics.RecordJobDuration(string(d.Kind), time.Since(started))

	// Record the outcome even when the task exhausted its deadline.
	finishCtx, finishCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer finishCancel()
	if err := p.lifecycle.Finish(finishCtx, d.ID, outcome); err != nil {
		log.Error("failed to record job outcome", "status", string(outcome.Status), "error", err)
		return
	}
	metrics.RecordJobTransition(string(d.Kind), string(outcome.Status))
}

func (p *Pool) execute(ctx context.Context, log logger.Logger, d job.Descriptor) (outcome job.Outcome) {
	p.mu.RLock()
	task, ok := p.tasks[d.Kind]
	p.mu.RUnlock()
	if !ok {
		log.Error("no task registered for job kind")
		return job.Failed("Unsupported job kind")
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("job task panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			outcome = job.Failed("Job failed unexpectedly")
		}
	}()

	message, err := task(ctx, d, &reporter{lifecycle: p.lifecycle, id: d.ID, log: log})
	if err != nil {
		log.Warn("job task failed", "error", err)
		var failure *Failure
		switch {
		case errors.As(err, &failure):
			return job.Failed(failure.Message)
		case errors.Is(err, context.DeadlineExceeded):
			return job.Failed("Job timed out")
		default:
			return job.Failed("Job failed unexpectedly")
		}
	}
	if message == "" {
		message = "Completed"
	}
	return job.Succeeded(message)
}

type reporter struct {
	lifecycle Lifecycle
	id        string
	log       logger.Logger
}

func (r *reporter) Advance(ctx context.Context, progress int, message string) {
	if err := r.lifecycle.Advance(ctx, r.id, progress, message); err != nil {
		r.log.Warn("failed to record job progress", "progress", progress, "error", err)
	}
}
