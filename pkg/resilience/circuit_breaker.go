package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scho1ar-go/pkg/logger"
)

// ErrCircuitOpen is returned without calling the protected function while
// the breaker is open or saturated in half-open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type BreakerConfig struct {
	Name         string
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state counter reset period
	Timeout      time.Duration // open duration before half-open
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      15 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  3,
	}
}

// Breaker guards calls to a flaky remote dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewBreaker(cfg BreakerConfig, log logger.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
		// Caller cancellation does not count as a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn under breaker protection.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
