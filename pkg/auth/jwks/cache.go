package jwks

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/metrics"
	"github.com/scho1ar-go/pkg/telemetry"
)

// KeyCache holds the current KeySet snapshot. Readers load the pointer and
// never lock; refreshes are coalesced so concurrent misses share one fetch.
type KeyCache struct {
	provider KeyProvider
	ttl      time.Duration
	now      func() time.Time
	logger   logger.Logger

	current atomic.Pointer[KeySet]
	group   singleflight.Group
}

func NewKeyCache(provider KeyProvider, ttl time.Duration, log logger.Logger) *KeyCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &KeyCache{provider: provider, ttl: ttl, now: time.Now, logger: log}
}

// Snapshot returns the current key set, which may be nil or expired.
func (c *KeyCache) Snapshot() *KeySet {
	return c.current.Load()
}

// Refresh fetches a fresh key set and installs it. On failure the previous
// snapshot is left in place.
func (c *KeyCache) Refresh(ctx context.Context) (*KeySet, error) {
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others.
		fetchCtx := context.WithoutCancel(ctx)
		fetchCtx, span := otel.Tracer("github.com/scho1ar-go/pkg/auth/jwks").Start(fetchCtx, "jwks.refresh")
		defer span.End()

		keys, err := c.provider.FetchKeys(fetchCtx)
		if err != nil {
			telemetry.RecordError(span, err)
			metrics.RecordKeyRefresh(false)
			c.logger.Error("signing key refresh failed", "error", err)
			return nil, err
		}

		set := NewKeySet(keys, c.now(), c.ttl)
		c.current.Store(set)
		span.SetAttributes(attribute.Int("jwks.keys", set.Len()))
		metrics.RecordKeyRefresh(true)
		c.logger.Info("signing keys refreshed", "keys", set.Len())
		return set, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
