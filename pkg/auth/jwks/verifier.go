// Package jwks verifies the identity provider's RS256/RS384/RS512 session
// tokens against a cached, periodically refreshed JSON Web Key Set.
package jwks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/metrics"
)

type VerifierConfig struct {
	Issuer   string // checked when set
	Audience string // checked when set
	Leeway   time.Duration
}

type Verifier struct {
	cfg    VerifierConfig
	keys   *KeyCache
	logger logger.Logger
	now    func() time.Time
}

func NewVerifier(cfg VerifierConfig, keys *KeyCache, log logger.Logger) *Verifier {
	return &Verifier{cfg: cfg, keys: keys, logger: log.Named("verifier"), now: time.Now}
}

// Verify checks token and returns its claims. Temporal claims are checked
// before any key lookup, so an expired token is reported as expired whatever
// its signature. An unknown key id triggers at most one key refresh.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := v.verify(ctx, token)
	if err != nil {
		var authErr *apperrors.AuthError
		kind := apperrors.KindInvalid
		if errors.As(err, &authErr) {
			kind = authErr.Kind
		}
		metrics.RecordTokenVerification(string(kind))
		return nil, err
	}
	metrics.RecordTokenVerification("ok")
	return claims, nil
}

func (v *Verifier) verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, v.reject(raw, nil, apperrors.KindMalformed, "empty token", nil)
	}

	unverified := &tokenClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, unverified)
	if err != nil {
		return nil, v.reject(raw, nil, apperrors.KindMalformed, "undecodable token", err)
	}

	if err := v.checkTemporal(unverified); err != nil {
		return nil, v.reject(raw, parsed, err.Kind, err.Reason, nil)
	}

	kid, _ := parsed.Header["kid"].(string)
	if kid == "" {
		return nil, v.reject(raw, parsed, apperrors.KindMalformed, "missing kid header", nil)
	}

	key, err := v.lookupKey(ctx, kid)
	if err != nil {
		var authErr *apperrors.AuthError
		if errors.As(err, &authErr) {
			return nil, v.reject(raw, parsed, authErr.Kind, authErr.Reason, authErr.Err)
		}
		return nil, v.reject(raw, parsed, apperrors.KindKeyFetchFailed, "", err)
	}

	if alg, _ := parsed.Header["alg"].(string); alg != key.Algorithm {
		return nil, v.reject(raw, parsed, apperrors.KindInvalid, "algorithm does not match key", nil)
	}

	verified := &tokenClaims{}
	_, err = jwt.ParseWithClaims(raw, verified, func(*jwt.Token) (interface{}, error) {
		return key.Key, nil
	}, v.parserOptions(key.Algorithm)...)
	if err != nil {
		kind, reason := classify(err)
		return nil, v.reject(raw, parsed, kind, reason, err)
	}

	return verified.toClaims(), nil
}

func (v *Verifier) parserOptions(alg string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	return opts
}

func (v *Verifier) checkTemporal(c *tokenClaims) *apperrors.AuthError {
	now := v.now()
	if c.ExpiresAt == nil {
		return apperrors.NewAuthError(apperrors.KindMalformed, "missing exp claim", nil)
	}
	if !now.Before(c.ExpiresAt.Add(v.cfg.Leeway)) {
		return apperrors.NewAuthError(apperrors.KindExpired, "token expired", nil)
	}
	if c.NotBefore != nil && now.Add(v.cfg.Leeway).Before(c.NotBefore.Time) {
		return apperrors.NewAuthError(apperrors.KindNotYetValid, "nbf in the future", nil)
	}
	if c.IssuedAt != nil && now.Add(v.cfg.Leeway).Before(c.IssuedAt.Time) {
		return apperrors.NewAuthError(apperrors.KindNotYetValid, "iat in the future", nil)
	}
	return nil
}

func (v *Verifier) lookupKey(ctx context.Context, kid string) (SigningKey, error) {
	set := v.keys.Snapshot()
	refreshed := false

	if set.Expired(v.now()) {
		fresh, err := v.keys.Refresh(ctx)
		if err != nil {
			return SigningKey{}, apperrors.NewAuthError(apperrors.KindKeyFetchFailed, "", err)
		}
		set, refreshed = fresh, true
	}

	if key, ok := set.Lookup(kid); ok {
		return key, nil
	}
	if refreshed {
		return SigningKey{}, apperrors.NewAuthError(apperrors.KindUnknownKey, "kid "+kid, nil)
	}

	fresh, err := v.keys.Refresh(ctx)
	if err != nil {
		return SigningKey{}, apperrors.NewAuthError(apperrors.KindKeyFetchFailed, "", err)
	}
	if key, ok := fresh.Lookup(kid); ok {
		return key, nil
	}
	return SigningKey{}, apperrors.NewAuthError(apperrors.KindUnknownKey, "kid "+kid, nil)
}

func classify(err error) (apperrors.AuthKind, string) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.KindExpired, "token expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return apperrors.KindNotYetValid, "token not yet valid"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing), errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.KindMalformed, "malformed token"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.KindInvalid, "bad signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return apperrors.KindInvalid, "issuer mismatch"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return apperrors.KindInvalid, "audience mismatch"
	default:
		return apperrors.KindInvalid, "token rejected"
	}
}

// reject logs the failure with identifying metadata and builds the error.
// The raw token is only ever logged as a truncated SHA-256 fingerprint.
func (v *Verifier) reject(raw string, parsed *jwt.Token, kind apperrors.AuthKind, reason string, cause error) error {
	fields := []interface{}{"kind", string(kind), "reason", reason, "fingerprint", fingerprint(raw)}
	if parsed != nil {
		if kid, ok := parsed.Header["kid"].(string); ok {
			fields = append(fields, "kid", kid)
		}
		if alg, ok := parsed.Header["alg"].(string); ok {
			fields = append(fields, "alg", alg)
		}
		if sub, err := parsed.Claims.GetSubject(); err == nil && sub != "" {
			fields = append(fields, "sub", sub)
		}
	}
	if cause != nil {
		fields = append(fields, "error", cause.Error())
	}
	v.logger.Warn("token verification failed", fields...)

	return apperrors.NewAuthError(kind, reason, cause)
}

func fingerprint(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}
