package notify

import (
	"context"

	"github.com/mossline/account-api/internal/logging"
	"github.com/mossline/account-api/internal/token"
)

// Worker consumes notification events from a buffered channel, one attempt
// per event. Failures are logged and dropped; by the time delivery runs, the
// triggering request has already returned.
type Worker struct {
	queue  chan Event
	users  UserSource
	tokens TokenIssuer
	mailer Mailer
	logger *logging.Logger
}

func NewWorker(queueSize int, users UserSource, tokens TokenIssuer, mailer Mailer, logger *logging.Logger) *Worker {
	return &Worker{
		queue:  make(chan Event, queueSize),
		users:  users,
		tokens: tokens,
		mailer: mailer,
		logger: logger,
	}
}

// Dispatch places an event on the queue and returns immediately. When the
// queue is full the event is dropped with a log line rather than blocking
// the request.
func (w *Worker) Dispatch(event Event) {
	select {
	case w.queue <- event:
	default:
		w.logger.Error("notification queue full, dropping event",
			"kind", string(event.Kind),
			"user_id", event.UserID,
		)
	}
}

// Run processes events until ctx is cancelled. Call from its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.queue:
			w.handle(ctx, event)
		}
	}
}

func (w *Worker) handle(ctx context.Context, event Event) {
	logger := w.logger.WithFields(map[string]any{
		"kind":    string(event.Kind),
		"user_id": event.UserID,
	})

	owner, err := w.users.GetByID(ctx, event.UserID)
	if err != nil {
		logger.Error("failed to load user for notification", "error", err)
		return
	}

	var purpose token.Purpose
	var send func(context.Context, string, string) error

	switch event.Kind {
	case KindUserRegistered:
		purpose = token.PurposeEmailVerify
		send = w.mailer.SendVerificationEmail
	case KindPasswordResetRequested:
		purpose = token.PurposePasswordReset
		send = w.mailer.SendPasswordResetEmail
	default:
		logger.Warn("unknown notification kind")
		return
	}

	value, err := w.tokens.Issue(ctx, owner, purpose)
	if err != nil {
		logger.Error("failed to issue token for notification", "error", err)
		return
	}

	if err := send(ctx, owner.Email, value); err != nil {
		// One attempt only; the user can request another email later
		logger.Error("failed to send notification email", "email", owner.Email, "error", err)
	}
}
