package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mossline/account-api/internal/user"
)

var ErrAccessTokenNotFound = errors.New("access token not found")

// AccessTokenService issues and revokes bearer access tokens. The token the
// client holds is an encrypted PASETO; its token_id claim is mirrored into
// Redis so individual sessions can be revoked before the PASETO itself
// expires. Access tokens live in a different namespace and lifecycle than
// the purpose-scoped tokens that back email links.
type AccessTokenService struct {
	client *redis.Client
	paseto *PasetoService
	ttl    time.Duration
}

func NewAccessTokenService(client *redis.Client, paseto *PasetoService, ttl time.Duration) *AccessTokenService {
	return &AccessTokenService{
		client: client,
		paseto: paseto,
		ttl:    ttl,
	}
}

// accessTokenKey generates the Redis key for an access token identifier
func accessTokenKey(tokenID string) string {
	return fmt.Sprintf("access_token:%s", tokenID)
}

// userTokensKey generates the Redis key for a user's set of token identifiers
func userTokensKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_access_tokens:%s", userID.String())
}

// Create mints a new access token for the user and records its identifier.
// Previously issued tokens stay valid; concurrent sessions are allowed.
func (s *AccessTokenService) Create(ctx context.Context, u *user.User) (string, error) {
	tokenID, err := newTokenID()
	if err != nil {
		return "", err
	}

	tokenKey := accessTokenKey(tokenID)
	setKey := userTokensKey(u.ID)

	// Pipeline so the identifier and the per-user set stay in step
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, tokenKey, map[string]interface{}{
		"user_id":    u.ID.String(),
		"created_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, tokenKey, s.ttl)
	pipe.SAdd(ctx, setKey, tokenID)
	pipe.Expire(ctx, setKey, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store access token: %w", err)
	}

	encrypted, err := s.paseto.CreateToken(u.ID, u.Email, tokenID, s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to create access token: %w", err)
	}

	return encrypted, nil
}

// Authenticate verifies an inbound bearer credential and confirms its
// identifier has not been revoked.
func (s *AccessTokenService) Authenticate(ctx context.Context, tokenStr string) (*TokenClaims, error) {
	claims, err := s.paseto.VerifyToken(tokenStr)
	if err != nil {
		return nil, err
	}

	exists, err := s.client.Exists(ctx, accessTokenKey(claims.TokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check access token: %w", err)
	}
	if exists == 0 {
		return nil, ErrAccessTokenNotFound
	}

	return claims, nil
}

// Delete revokes a single session by its token identifier.
func (s *AccessTokenService) Delete(ctx context.Context, userID uuid.UUID, tokenID string) error {
	pipe := s.client.Pipeline()
	del := pipe.Del(ctx, accessTokenKey(tokenID))
	pipe.SRem(ctx, userTokensKey(userID), tokenID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}

	if del.Val() == 0 {
		return ErrAccessTokenNotFound
	}

	return nil
}

// DeleteAllForUser revokes every live session for a user. Used after a
// password reset.
func (s *AccessTokenService) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	setKey := userTokensKey(userID)

	tokenIDs, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user access tokens: %w", err)
	}

	if len(tokenIDs) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, tokenID := range tokenIDs {
		pipe.Del(ctx, accessTokenKey(tokenID))
	}
	pipe.Del(ctx, setKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete user access tokens: %w", err)
	}

	return nil
}

// newTokenID creates a random identifier for an access token session
func newTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
