package jwks

import (
	"strings"

	"github.com/scho1ar-go/pkg/apperrors"
)

// ExtractBearer returns the token from an Authorization header value.
func ExtractBearer(header string) (string, error) {
	var token string
	switch {
	case strings.HasPrefix(header, "Bearer "):
		token = header[len("Bearer "):]
	case strings.HasPrefix(header, "bearer "):
		token = header[len("bearer "):]
	default:
		return "", apperrors.NewAuthError(apperrors.KindMalformed, "missing bearer prefix", nil)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.NewAuthError(apperrors.KindMalformed, "empty bearer token", nil)
	}
	return token, nil
}
