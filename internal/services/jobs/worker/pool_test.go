package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/internal/services/jobs/lifecycle"
	"github.com/scho1ar-go/internal/services/jobs/repository"
	"github.com/scho1ar-go/pkg/database/databasetest"
	"github.com/scho1ar-go/pkg/logger"
)

const testKind job.Kind = "test.task"

type harness struct {
	repo    *repository.JobRepository
	manager *lifecycle.Manager
	pool    *Pool
}

func newHarness(t *testing.T) *harness {
	repo := repository.NewJobRepository(databasetest.New(t, &job.Job{}))
	queue := NewQueue(16)
	manager := lifecycle.NewManager(repo, queue, logger.NewNop())
	pool := NewPool(Config{Workers: 2, TaskTimeout: 5 * time.Second}, queue, manager, logger.NewNop())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return &harness{repo: repo, manager: manager, pool: pool}
}

func (h *harness) waitTerminal(t *testing.T, id string) *job.Job {
	t.Helper()
	var got *job.Job
	require.Eventually(t, func() bool {
		j, err := h.repo.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		got = j
		return j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestPool_RunsTaskToSuccess(t *testing.T) {
	h := newHarness(t)
	h.pool.Register(testKind, func(ctx context.Context, d job.Descriptor, r Reporter) (string, error) {
		r.Advance(ctx, 50, "Halfway")
		return "All done", nil
	})
	h.pool.Start()

	j, err := h.manager.Create(context.Background(), "org_1", testKind, "res_1", "user_1")
	require.NoError(t, err)

	got := h.waitTerminal(t, j.ID)
	assert.Equal(t, job.StatusSucceeded, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "All done", got.ProgressMessage)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)
}

func TestPool_RecordsFailures(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		message string
	}{
		{
			name: "public failure",
			task: func(context.Context, job.Descriptor, Reporter) (string, error) {
				return "", Fail("Unable to assume role", errors.New("AccessDenied: arn:aws:iam::123:role/x"))
			},
			message: "Unable to assume role",
		},
		{
			name: "internal error",
			task: func(context.Context, job.Descriptor, Reporter) (string, error) {
				return "", errors.New("pq: relation does not exist")
			},
			message: "Job failed unexpectedly",
		},
		{
			name: "panic",
			task: func(context.Context, job.Descriptor, Reporter) (string, error) {
				var m map[string]int
				m["boom"]++
				return "", nil
			},
			message: "Job failed unexpectedly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.pool.Register(testKind, tt.task)
			h.pool.Start()

			j, err := h.manager.Create(context.Background(), "org_1", testKind, "res_1", "user_1")
			require.NoError(t, err)

			got := h.waitTerminal(t, j.ID)
			assert.Equal(t, job.StatusFailed, got.Status)
			assert.Equal(t, tt.message, got.ProgressMessage)
		})
	}
}

func TestPool_UnknownKindFails(t *testing.T) {
	h := newHarness(t)
	h.pool.Start()

	j, err := h.manager.Create(context.Background(), "org_1", "nobody.handles.this", "", "user_1")
	require.NoError(t, err)

	got := h.waitTerminal(t, j.ID)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Equal(t, "Unsupported job kind", got.ProgressMessage)
}

func TestPool_LateProgressIsIgnored(t *testing.T) {
	h := newHarness(t)
	leaked := make(chan Reporter, 1)
	h.pool.Register(testKind, func(ctx context.Context, d job.Descriptor, r Reporter) (string, error) {
		leaked <- r
		return "Finished", nil
	})
	h.pool.Start()

	j, err := h.manager.Create(context.Background(), "org_1", testKind, "res_1", "user_1")
	require.NoError(t, err)
	h.waitTerminal(t, j.ID)

	r := <-leaked
	r.Advance(context.Background(), 5, "stale update")

	got, err := h.repo.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSucceeded, got.Status)
	assert.Equal(t, "Finished", got.ProgressMessage)
	assert.Equal(t, 100, got.Progress)
}

func TestQueue_EnqueueNeverBlocks(t *testing.T) {
	q := NewQueue(1)

	require.NoError(t, q.Enqueue(job.Descriptor{ID: "a"}))
	assert.ErrorIs(t, q.Enqueue(job.Descriptor{ID: "b"}), ErrQueueFull)
	assert.Equal(t, 1, q.Len())
}

func TestPool_ShutdownLeavesQueuedJobsPending(t *testing.T) {
	h := newHarness(t)
	h.pool.Register(testKind, func(context.Context, job.Descriptor, Reporter) (string, error) {
		return "ok", nil
	})

	j, err := h.manager.Create(context.Background(), "org_1", testKind, "res_1", "user_1")
	require.NoError(t, err)

	require.NoError(t, h.pool.Shutdown(context.Background()))
	h.pool.Start()

	got, err := h.repo.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
}

func TestNewPoolRunsAtLeastOneWorker(t *testing.T) {
	assert.Equal(t, 2, newHarness(t).pool.Size())

	pool := NewPool(Config{Workers: 0}, NewQueue(1), nil, logger.NewNop())
	assert.Equal(t, 1, pool.Size())
}
