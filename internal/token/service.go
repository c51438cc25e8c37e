package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mossline/account-api/internal/user"
)

var ErrNotFound = errors.New("token not found")

// Store is the persistence boundary for purpose-scoped tokens.
type Store interface {
	// Replace atomically deletes every token for (t.UserID, t.Purpose) and
	// inserts t, so at most one live token exists per user and purpose.
	Replace(ctx context.Context, t *Token) error

	// FindValid returns the token with the given value whose expiry is after
	// now, newest first if duplicates exist, with Owner populated.
	// Returns ErrNotFound when no such token exists.
	FindValid(ctx context.Context, value string, now time.Time) (*Token, error)

	// DeleteByUserAndPurpose removes every token for (userID, purpose).
	DeleteByUserAndPurpose(ctx context.Context, userID uuid.UUID, purpose Purpose) error
}

// Service issues, resolves, and invalidates purpose-scoped tokens.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Issue invalidates any existing tokens for (owner, purpose) and persists a
// fresh one, returning the raw value. Re-issuing deletes prior unconsumed
// tokens outright, so an old emailed link stops working the moment a new one
// is requested.
func (s *Service) Issue(ctx context.Context, owner *user.User, purpose Purpose) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("cannot issue token for purpose %q", purpose)
	}

	value, err := generateValue()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(purpose.TTL())
	t := &Token{
		UserID:    owner.ID,
		Purpose:   purpose,
		Value:     value,
		ExpiresAt: &expiresAt,
	}

	if err := s.store.Replace(ctx, t); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	return value, nil
}

// ResolveOwner looks up an unexpired token by exact value and returns its
// owner. The token is not consumed; callers invalidate after the guarded
// mutation succeeds. Returns ErrNotFound for absent and expired tokens alike.
func (s *Service) ResolveOwner(ctx context.Context, value string) (*user.User, error) {
	t, err := s.store.FindValid(ctx, value, time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	if t.Owner == nil {
		return nil, ErrNotFound
	}

	return t.Owner, nil
}

// Invalidate deletes all tokens for (ownerID, purpose). Called after a token
// has been consumed so the same link cannot be replayed.
func (s *Service) Invalidate(ctx context.Context, ownerID uuid.UUID, purpose Purpose) error {
	if err := s.store.DeleteByUserAndPurpose(ctx, ownerID, purpose); err != nil {
		return fmt.Errorf("failed to invalidate tokens: %w", err)
	}
	return nil
}

// IsValid reports whether a token with the given value exists and has not
// expired, without resolving the owner.
func (s *Service) IsValid(ctx context.Context, value string) (bool, error) {
	_, err := s.store.FindValid(ctx, value, time.Now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return true, nil
}
