package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mossline/account-api/internal/user"
)

// Purpose scopes a token to a single operation category. A token issued for
// one purpose is never accepted by another flow.
type Purpose string

const (
	PurposeEmailVerify   Purpose = "email_verify"
	PurposePasswordReset Purpose = "password_reset"

	// PurposeGeneric is representable in storage but never issued through the
	// public flows and carries no expiry policy.
	PurposeGeneric Purpose = "generic"
)

// TTL returns how long a freshly issued token of this purpose stays live.
// Zero means the token does not expire.
func (p Purpose) TTL() time.Duration {
	switch p {
	case PurposeEmailVerify:
		return 24 * time.Hour
	case PurposePasswordReset:
		return time.Hour
	default:
		return 0
	}
}

// Valid reports whether p is a purpose issued via the public flows.
func (p Purpose) Valid() bool {
	return p == PurposeEmailVerify || p == PurposePasswordReset
}

// valueBytes of entropy yield a 64-character base64url value, matching the
// length of the secrets the emailed deep links carry.
const valueBytes = 48

// Token is a single-use secret bound to one user and one purpose. Value is
// the only part ever presented externally.
type Token struct {
	ID        int64
	UserID    uuid.UUID
	Purpose   Purpose
	Value     string
	ExpiresAt *time.Time // nil means the token does not expire
	CreatedAt time.Time

	Owner *user.User
}

// Expired reports whether the token's expiry has passed at the given time.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// generateValue creates a cryptographically secure random token value.
// Entropy-source failure is not recoverable at this layer.
func generateValue() (string, error) {
	buf := make([]byte, valueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
