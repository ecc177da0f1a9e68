package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RequestVerificationMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *RequestVerificationResponse)
}

func (e RequestVerificationMessage) Type() string { return "user.verification_request" }

// RequestVerificationResponse is the same for every input. Whether
// the email maps to a pending account is not observable from the
// outside.
type RequestVerificationResponse struct {
	Email string
}

// RequestVerificationHandler re-issues the email verification token
// for a pending account. Issuing replaces any outstanding token, so
// only the most recent email is actionable.
type RequestVerificationHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	logger   Logger
	tokenTTL time.Duration
}

func NewRequestVerificationHandler(repo RepositoryManager, cfg Config) *RequestVerificationHandler {
	return &RequestVerificationHandler{
		repo:     repo,
		mailer:   noopMailer{},
		logger:   defLogger{},
		tokenTTL: time.Duration(cfg.GetOneTimeTokenTTL()) * time.Minute,
	}
}

func (h *RequestVerificationHandler) WithMailer(mailer Mailer) *RequestVerificationHandler {
	h.mailer = normalizeMailer(mailer)
	return h
}

func (h *RequestVerificationHandler) WithLogger(logger Logger) *RequestVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RequestVerificationHandler) Execute(ctx context.Context, event RequestVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestVerificationHandler) execute(ctx context.Context, event RequestVerificationMessage) error {
	user := &User{}
	var verification *VerificationToken

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email); err != nil {
			if repository.IsRecordNotFound(err) {
				user = nil
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification request")
		}

		user.EnsureStatus()
		if user.Status != UserStatusPending {
			user = nil
			return nil
		}

		if verification, err = h.repo.VerificationTokens().IssueTx(ctx, tx, user.ID, PurposeEmailVerify, h.tokenTTL); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification request transaction failed")
	}

	if user != nil && verification != nil {
		dispatchMail(h.mailer, h.logger, Message{
			To:       user.Email,
			Subject:  "Verify your email address",
			Template: "auth.verify_email",
			Data: map[string]any{
				"first_name": user.FirstName,
				"token":      verification.Token,
			},
		}, time.Second*30)
	}

	if event.OnResponse != nil {
		event.OnResponse(&RequestVerificationResponse{Email: NormalizeEmail(event.Email)})
	}

	return nil
}
