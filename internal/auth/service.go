package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mossline/account-api/internal/logging"
	"github.com/mossline/account-api/internal/notify"
	"github.com/mossline/account-api/internal/token"
	"github.com/mossline/account-api/internal/user"
)

var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrEmailRequired         = errors.New("email is required")
	ErrInvalidEmailFormat    = errors.New("invalid email format")
	ErrNameTooShort          = errors.New("first and last name must be at least 3 characters")
	ErrPasswordRequired      = errors.New("password is required")
	ErrPasswordTooShort      = errors.New("password must be at least 8 characters")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrAlreadyVerified       = errors.New("email already verified")
	ErrMissingAccessToken    = errors.New("access token not found in session")
)

// CredentialStore is the persistence boundary for user records.
type CredentialStore interface {
	Create(ctx context.Context, fullName, email, passwordHash string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID uuid.UUID, verifiedAt time.Time) error
}

// PurposeTokens resolves and invalidates the single-use tokens carried by
// emailed links. Issuance happens inside the notification worker.
type PurposeTokens interface {
	ResolveOwner(ctx context.Context, value string) (*user.User, error)
	Invalidate(ctx context.Context, ownerID uuid.UUID, purpose token.Purpose) error
}

// AccessTokens issues and revokes bearer session credentials.
type AccessTokens interface {
	Create(ctx context.Context, u *user.User) (string, error)
	Delete(ctx context.Context, userID uuid.UUID, tokenID string) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) error
}

// Service orchestrates the user-facing authentication flows.
type Service struct {
	users        CredentialStore
	tokens       PurposeTokens
	accessTokens AccessTokens
	hasher       *PasswordHasher
	dispatcher   notify.Dispatcher
	logger       *logging.Logger
}

func NewService(
	users CredentialStore,
	tokens PurposeTokens,
	accessTokens AccessTokens,
	hasher *PasswordHasher,
	dispatcher notify.Dispatcher,
	logger *logging.Logger,
) *Service {
	return &Service{
		users:        users,
		tokens:       tokens,
		accessTokens: accessTokens,
		hasher:       hasher,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Register creates a new user account, issues an access token, and queues the
// verification email. The notification is fire-and-forget: by the time the
// mail is attempted, registration has already succeeded.
func (s *Service) Register(ctx context.Context, firstName, lastName, email, password string) (*user.User, string, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if len(firstName) < 3 || len(lastName) < 3 {
		return nil, "", ErrNameTooShort
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", err
	}

	if password == "" {
		return nil, "", ErrPasswordRequired
	}
	if len(password) < 8 {
		return nil, "", ErrPasswordTooShort
	}

	// Uniqueness is checked up front so a taken email never gets as far as a
	// half-created account; the database constraint still backstops races.
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, "", user.ErrDuplicateEmail
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to check email: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, firstName+" "+lastName, email, passwordHash)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, "", user.ErrDuplicateEmail
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	accessToken, err := s.accessTokens.Create(ctx, newUser)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create access token: %w", err)
	}

	s.dispatcher.Dispatch(notify.Event{Kind: notify.KindUserRegistered, UserID: newUser.ID})

	s.logger.Info("user registered", "user_id", newUser.ID, "email", newUser.Email)

	return newUser, accessToken, nil
}

// Login verifies credentials and issues a new access token. Prior sessions
// stay valid. The failure is deliberately generic so callers cannot tell a
// missing account from a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, string, error) {
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(existingUser.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	accessToken, err := s.accessTokens.Create(ctx, existingUser)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create access token: %w", err)
	}

	s.logger.Info("user logged in", "user_id", existingUser.ID)

	return existingUser, accessToken, nil
}

// Logout revokes the presented session only.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, tokenID string) error {
	if tokenID == "" {
		return ErrMissingAccessToken
	}

	if err := s.accessTokens.Delete(ctx, userID, tokenID); err != nil {
		if errors.Is(err, ErrAccessTokenNotFound) {
			return ErrMissingAccessToken
		}
		return fmt.Errorf("failed to delete access token: %w", err)
	}

	return nil
}

// RequestPasswordReset queues the reset email for a registered address. The
// raw token only ever travels inside the email, never in the response.
// Unknown emails surface user.ErrNotFound, mirroring the lookup.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return user.ErrNotFound
	}

	existingUser, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	s.dispatcher.Dispatch(notify.Event{Kind: notify.KindPasswordResetRequested, UserID: existingUser.ID})

	return nil
}

// ResetPassword consumes a reset token: the password changes and every
// outstanding reset token for the user is deleted in the same flow, so a
// captured link cannot be replayed. All live sessions are revoked as well.
func (s *Service) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	if newPassword == "" {
		return ErrPasswordRequired
	}
	if len(newPassword) < 8 {
		return ErrPasswordTooShort
	}

	owner, err := s.tokens.ResolveOwner(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to resolve token: %w", err)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, owner.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.tokens.Invalidate(ctx, owner.ID, token.PurposePasswordReset); err != nil {
		return fmt.Errorf("failed to invalidate reset tokens: %w", err)
	}

	if err := s.accessTokens.DeleteAllForUser(ctx, owner.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after password reset", "user_id", owner.ID, "error", err)
	}

	s.logger.Info("password reset", "user_id", owner.ID)

	return nil
}

// CheckPasswordResetToken reports whether a reset token is still usable,
// without consuming it. Backs the landing route the emailed link points at,
// so a client can decide whether to present the new-password form.
func (s *Service) CheckPasswordResetToken(ctx context.Context, tokenValue string) error {
	if _, err := s.tokens.ResolveOwner(ctx, tokenValue); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to resolve token: %w", err)
	}
	return nil
}

// RequestEmailVerification re-queues the verification email for an
// authenticated, still-unverified user.
func (s *Service) RequestEmailVerification(ctx context.Context, userID uuid.UUID) error {
	existingUser, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ErrNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if existingUser.EmailVerified() {
		return ErrAlreadyVerified
	}

	s.dispatcher.Dispatch(notify.Event{Kind: notify.KindUserRegistered, UserID: existingUser.ID})

	return nil
}

// VerifyEmail consumes a verification token: the timestamp is set once and
// every outstanding verification token for the user is deleted.
func (s *Service) VerifyEmail(ctx context.Context, tokenValue string) error {
	owner, err := s.tokens.ResolveOwner(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to resolve token: %w", err)
	}

	if err := s.users.MarkEmailVerified(ctx, owner.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to mark email as verified: %w", err)
	}

	if err := s.tokens.Invalidate(ctx, owner.ID, token.PurposeEmailVerify); err != nil {
		return fmt.Errorf("failed to invalidate verification tokens: %w", err)
	}

	s.logger.Info("email verified", "user_id", owner.ID)

	return nil
}

// normalizeEmail lower-cases and validates the address format.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmailRequired
	}
	if len(email) > 254 {
		return "", ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmailFormat
	}
	return email, nil
}
