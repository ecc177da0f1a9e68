package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationTokens is the one-time token store. Tokens are consumed
// atomically: the conditional UPDATE on consumed_at is the single point
// that decides which of two racing consumers wins.
type VerificationTokens interface {
	repository.Repository[*VerificationToken]

	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, ttl time.Duration) (*VerificationToken, error)
	GetByToken(ctx context.Context, token string) (*VerificationToken, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*VerificationToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*VerificationToken, error)
}

type verificationTokens struct {
	repository.Repository[*VerificationToken]
	db *bun.DB
}

var (
	_ VerificationTokens                        = (*verificationTokens)(nil)
	_ repository.Repository[*VerificationToken] = (*verificationTokens)(nil)
)

func NewVerificationTokensRepository(db *bun.DB) VerificationTokens {
	repo := repository.NewRepository[*VerificationToken](db, repository.ModelHandlers[*VerificationToken]{
		NewRecord: func() *VerificationToken { return &VerificationToken{} },
		GetID: func(t *VerificationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *VerificationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &verificationTokens{
		Repository: repo,
		db:         db,
	}
}

// IssueTx mints a fresh token for the user and purpose inside the given
// transaction. Outstanding unconsumed tokens for the same user+purpose
// are removed first: at most one is pending at a time.
func (r *verificationTokens) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, ttl time.Duration) (*VerificationToken, error) {
	_, err := tx.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("user_id = ?", userID).
		Where("purpose = ?", purpose).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	token, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	record := &VerificationToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(ttl),
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *verificationTokens) GetByToken(ctx context.Context, token string) (*VerificationToken, error) {
	return r.GetByTokenTx(ctx, r.db, token)
}

func (r *verificationTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*VerificationToken, error) {
	record := &VerificationToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

// ConsumeTx marks the token spent and returns it. A token that is
// unknown, expired, or already consumed yields a not-found error; the
// caller translates that to its flow-specific invalid-token error.
func (r *verificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*VerificationToken, error) {
	record := &VerificationToken{}
	res, err := tx.NewUpdate().
		Model(record).
		Set("consumed_at = ?", now).
		Where("token = ?", token).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", now).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if err == sql.ErrNoRows || repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, repository.NewRecordNotFound()
	}

	return record, nil
}
