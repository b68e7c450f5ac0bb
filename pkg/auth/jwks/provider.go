package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/resilience"
)

// KeyProvider fetches the current signing keys from the identity provider.
type KeyProvider interface {
	FetchKeys(ctx context.Context) ([]SigningKey, error)
}

const maxDocumentSize = 1 << 20

// HTTPProvider loads a JWKS document over HTTP behind a circuit breaker.
type HTTPProvider struct {
	url     string
	client  *http.Client
	breaker *resilience.Breaker
	logger  logger.Logger
}

func NewHTTPProvider(url string, timeout time.Duration, log logger.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig("jwks"), log),
		logger:  log,
	}
}

func (p *HTTPProvider) FetchKeys(ctx context.Context) ([]SigningKey, error) {
	var keys []SigningKey
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		body, err := p.get(ctx)
		if err != nil {
			return err
		}
		parsed, skipped, err := ParseKeySet(body)
		if err != nil {
			return err
		}
		for _, s := range skipped {
			p.logger.Warn("skipping signing key", "kid", s.ID, "reason", s.Reason)
		}
		keys = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (p *HTTPProvider) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}
