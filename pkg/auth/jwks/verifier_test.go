package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/logger"
)

const testIssuer = "https://clerk.example.test"

type fakeProvider struct {
	mu    sync.Mutex
	keys  []SigningKey
	err   error
	calls atomic.Int32
}

func (p *fakeProvider) FetchKeys(context.Context) ([]SigningKey, error) {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return append([]SigningKey(nil), p.keys...), nil
}

func (p *fakeProvider) set(keys []SigningKey, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys, p.err = keys, err
}

type fixture struct {
	provider *fakeProvider
	verifier *Verifier
	signer   *rsa.PrivateKey
	now      time.Time
}

var (
	keyOnce    sync.Once
	primaryKey *rsa.PrivateKey
	otherKey   *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	keyOnce.Do(func() {
		var err error
		primaryKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		otherKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return primaryKey, otherKey
}

func newFixture(t *testing.T) *fixture {
	signer, _ := testKeys(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{keys: []SigningKey{{ID: "key-1", Algorithm: "RS256", Key: &signer.PublicKey}}}

	cache := NewKeyCache(provider, time.Hour, logger.NewNop())
	cache.now = func() time.Time { return now }
	v := NewVerifier(VerifierConfig{Issuer: testIssuer}, cache, logger.NewNop())
	v.now = func() time.Time { return now }

	return &fixture{provider: provider, verifier: v, signer: signer, now: now}
}

func (f *fixture) claims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":      "user_2abc",
		"email":    "ada@example.test",
		"org_id":   "org_42",
		"org_role": "org:admin",
		"org_slug": "acme",
		"sid":      "sess_1",
		"iss":      testIssuer,
		"iat":      f.now.Add(-time.Minute).Unix(),
		"nbf":      f.now.Add(-time.Minute).Unix(),
		"exp":      f.now.Add(time.Hour).Unix(),
		"jti":      "tok_1",
	}
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifyValidTokenReturnsClaims(t *testing.T) {
	f := newFixture(t)
	token := sign(t, f.signer, "key-1", f.claims())

	claims, err := f.verifier.Verify(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "user_2abc", claims.Subject)
	assert.Equal(t, "ada@example.test", claims.Email)
	assert.Equal(t, "org_42", claims.OrganizationID)
	assert.Equal(t, "org:admin", claims.Role)
	assert.Equal(t, "acme", claims.OrgSlug)
	assert.Equal(t, "sess_1", claims.SessionID)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, "tok_1", claims.TokenID)
	assert.Equal(t, f.now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.Equal(t, f.now.Add(-time.Minute).Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestVerifyExpiredRegardlessOfSignature(t *testing.T) {
	f := newFixture(t)
	_, stranger := testKeys(t)

	tests := []struct {
		name string
		key  *rsa.PrivateKey
		kid  string
	}{
		{"known key", f.signer, "key-1"},
		{"wrong key", stranger, "key-1"},
		{"unknown kid", stranger, "rotated-away"},
		{"no kid", stranger, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := f.claims()
			claims["exp"] = f.now.Add(-time.Second).Unix()

			_, err := f.verifier.Verify(context.Background(), sign(t, tt.key, tt.kid, claims))
			assert.ErrorIs(t, err, apperrors.ErrExpired)
		})
	}
	assert.Equal(t, int32(0), f.provider.calls.Load(), "expired tokens must not trigger key fetches")
}

func TestVerifyUnknownKidRefreshesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.keys.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), f.provider.calls.Load())

	_, err = f.verifier.Verify(context.Background(), sign(t, f.signer, "key-unknown", f.claims()))

	assert.ErrorIs(t, err, apperrors.ErrUnknownKey)
	assert.Equal(t, int32(2), f.provider.calls.Load())
}

func TestVerifyPicksUpRotatedKey(t *testing.T) {
	f := newFixture(t)
	_, rotated := testKeys(t)
	_, err := f.verifier.keys.Refresh(context.Background())
	require.NoError(t, err)

	f.provider.set([]SigningKey{
		{ID: "key-1", Algorithm: "RS256", Key: &f.signer.PublicKey},
		{ID: "key-2", Algorithm: "RS256", Key: &rotated.PublicKey},
	}, nil)

	claims, err := f.verifier.Verify(context.Background(), sign(t, rotated, "key-2", f.claims()))
	require.NoError(t, err)
	assert.Equal(t, "user_2abc", claims.Subject)
	assert.Equal(t, int32(2), f.provider.calls.Load())
}

func TestVerifyKeyFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.set(nil, errors.New("dial tcp: connection refused"))

	_, err := f.verifier.Verify(context.Background(), sign(t, f.signer, "key-1", f.claims()))

	assert.ErrorIs(t, err, apperrors.ErrKeyFetchFailed)
}

func TestVerifyRejections(t *testing.T) {
	_, stranger := testKeys(t)

	tests := []struct {
		name   string
		mutate func(jwt.MapClaims)
		key    func(f *fixture) *rsa.PrivateKey
		want   error
	}{
		{
			name:   "missing exp",
			mutate: func(c jwt.MapClaims) { delete(c, "exp") },
			want:   apperrors.ErrMalformed,
		},
		{
			name:   "nbf in the future",
			mutate: func(c jwt.MapClaims) { c["nbf"] = time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC).Unix() },
			want:   apperrors.ErrNotYetValid,
		},
		{
			name:   "iat in the future",
			mutate: func(c jwt.MapClaims) { c["iat"] = time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC).Unix() },
			want:   apperrors.ErrNotYetValid,
		},
		{
			name:   "wrong issuer",
			mutate: func(c jwt.MapClaims) { c["iss"] = "https://evil.example.test" },
			want:   apperrors.ErrInvalidToken,
		},
		{
			name: "bad signature",
			key:  func(*fixture) *rsa.PrivateKey { return stranger },
			want: apperrors.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			claims := f.claims()
			if tt.mutate != nil {
				tt.mutate(claims)
			}
			key := f.signer
			if tt.key != nil {
				key = tt.key(f)
			}

			_, err := f.verifier.Verify(context.Background(), sign(t, key, "key-1", claims))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := f.verifier.Verify(context.Background(), raw)
		assert.ErrorIs(t, err, apperrors.ErrMalformed, raw)
	}
}

func TestVerifyMissingKid(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Verify(context.Background(), sign(t, f.signer, "", f.claims()))
	assert.ErrorIs(t, err, apperrors.ErrMalformed)
}

func TestVerifyConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	token := sign(t, f.signer, "key-1", f.claims())

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.verifier.Verify(context.Background(), token)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.NotNil(t, f.verifier.keys.Snapshot())
}
