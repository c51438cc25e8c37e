package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/mossline/account-api/internal/token"
	"github.com/mossline/account-api/internal/user"
)

// Kind identifies the notification being requested.
type Kind string

const (
	// KindUserRegistered triggers (re-)issuing an email-verification token and
	// sending the verification mail. Dispatched by registration and by manual
	// verification requests.
	KindUserRegistered Kind = "user_registered"

	// KindPasswordResetRequested triggers issuing a password-reset token and
	// sending the reset mail.
	KindPasswordResetRequested Kind = "password_reset_requested"
)

// Event carries only the user id; the worker loads everything else itself so
// the triggering request holds no reference to the delivery outcome.
type Event struct {
	Kind   Kind
	UserID uuid.UUID
}

// Dispatcher enqueues an event for asynchronous processing. Implementations
// must not block the caller and must not surface delivery failures to it.
type Dispatcher interface {
	Dispatch(event Event)
}

// Mailer sends the actual emails, with the raw token embedded in a deep link.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, toEmail, tokenValue string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, tokenValue string) error
}

// UserSource loads the event's subject.
type UserSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// TokenIssuer mints the purpose-scoped token the email links to.
type TokenIssuer interface {
	Issue(ctx context.Context, owner *user.User, purpose token.Purpose) (string, error)
}
