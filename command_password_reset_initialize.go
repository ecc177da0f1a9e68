package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetResponse is identical whether or not the
// email maps to an account.
type InitializePasswordResetResponse struct {
	Email string
}

// InitializePasswordResetHandler issues a password reset token and
// mails it. For unknown emails it does nothing, silently: the reset
// endpoint must not leak which addresses have accounts.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	activity ActivitySink
	logger   Logger
	tokenTTL time.Duration
}

func NewInitializePasswordResetHandler(repo RepositoryManager, cfg Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		mailer:   noopMailer{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		tokenTTL: time.Duration(cfg.GetOneTimeTokenTTL()) * time.Minute,
	}
}

func (h *InitializePasswordResetHandler) WithMailer(mailer Mailer) *InitializePasswordResetHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	user := &User{}
	var reset *VerificationToken

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email); err != nil {
			if repository.IsRecordNotFound(err) {
				user = nil
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		user.EnsureStatus()
		if user.Status == UserStatusInactive {
			user = nil
			return nil
		}

		if reset, err = h.repo.VerificationTokens().IssueTx(ctx, tx, user.ID, PurposePasswordReset, h.tokenTTL); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue password reset token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if user != nil && reset != nil {
		dispatchMail(h.mailer, h.logger, Message{
			To:       user.Email,
			Subject:  "Reset your password",
			Template: "auth.password_reset",
			Data: map[string]any{
				"first_name": user.FirstName,
				"token":      reset.Token,
			},
		}, time.Second*30)

		h.recordActivity(ctx, user)
	}

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{Email: NormalizeEmail(event.Email)})
	}

	return nil
}

func (h *InitializePasswordResetHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType: ActivityEventPasswordResetStart,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		Metadata:   map[string]any{},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset request: %v", err)
	}
}
