package jwks

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// SigningKey is a public key the identity provider signs tokens with.
type SigningKey struct {
	ID        string
	Algorithm string
	Key       *rsa.PublicKey
}

// KeySet is an immutable snapshot of the provider's signing keys. A refresh
// builds a new KeySet and swaps it in whole.
type KeySet struct {
	keys      map[string]SigningKey
	fetchedAt time.Time
	expiresAt time.Time
}

func NewKeySet(keys []SigningKey, fetchedAt time.Time, ttl time.Duration) *KeySet {
	m := make(map[string]SigningKey, len(keys))
	for _, k := range keys {
		m[k.ID] = k
	}
	return &KeySet{keys: m, fetchedAt: fetchedAt, expiresAt: fetchedAt.Add(ttl)}
}

func (s *KeySet) Lookup(kid string) (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

func (s *KeySet) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.expiresAt)
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

var supportedAlgorithms = map[string]bool{"RS256": true, "RS384": true, "RS512": true}

// SkippedKey describes a JWKS entry that could not be used.
type SkippedKey struct {
	ID     string
	Reason string
}

// ParseKeySet decodes a JWKS document. Only RSA signing keys with a supported
// algorithm are returned; every other entry is reported in skipped.
func ParseKeySet(data []byte) (keys []SigningKey, skipped []SkippedKey, err error) {
	var doc jsonWebKeySet
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode jwks: %w", err)
	}

	for _, jwk := range doc.Keys {
		if jwk.Kid == "" {
			skipped = append(skipped, SkippedKey{Reason: "missing kid"})
			continue
		}
		if jwk.Kty != "RSA" {
			skipped = append(skipped, SkippedKey{ID: jwk.Kid, Reason: "unsupported key type " + jwk.Kty})
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			skipped = append(skipped, SkippedKey{ID: jwk.Kid, Reason: "not a signing key"})
			continue
		}
		alg := jwk.Alg
		if alg == "" {
			alg = "RS256"
		}
		if !supportedAlgorithms[alg] {
			skipped = append(skipped, SkippedKey{ID: jwk.Kid, Reason: "unsupported algorithm " + alg})
			continue
		}
		pub, err := rsaPublicKey(jwk.N, jwk.E)
		if err != nil {
			skipped = append(skipped, SkippedKey{ID: jwk.Kid, Reason: err.Error()})
			continue
		}
		keys = append(keys, SigningKey{ID: jwk.Kid, Algorithm: alg, Key: pub})
	}

	return keys, skipped, nil
}

func rsaPublicKey(n, e string) (*rsa.PublicKey, error) {
	if n == "" || e == "" {
		return nil, errors.New("missing modulus or exponent")
	}
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(eBytes)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(exp.Int64())}, nil
}
