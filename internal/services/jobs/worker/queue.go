package worker

import (
	"errors"

	"github.com/scho1ar-go/internal/domain/job"
	"github.com/scho1ar-go/pkg/metrics"
)

var ErrQueueFull = errors.New("job queue is full")

// Queue is the bounded hand-off between request handlers and the pool.
type Queue struct {
	ch chan job.Descriptor
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{ch: make(chan job.Descriptor, size)}
}

// Enqueue never blocks; a full queue is reported as ErrQueueFull.
func (q *Queue) Enqueue(d job.Descriptor) error {
	select {
	case q.ch <- d:
		metrics.JobQueueDepth.Set(float64(len(q.ch)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

// TryDequeue takes the next descriptor if one is waiting.
func (q *Queue) TryDequeue() (job.Descriptor, bool) {
	select {
	case d := <-q.ch:
		metrics.JobQueueDepth.Set(float64(len(q.ch)))
		return d, true
	default:
		return job.Descriptor{}, false
	}
}
