package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions persists refresh-token-bearing sessions keyed by opaque token.
// Rows are created on login, deleted on logout or rotation, and never
// mutated otherwise.
type Sessions interface {
	repository.Repository[*Session]

	Create(ctx context.Context, record *Session, criteria ...repository.InsertCriteria) (*Session, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Session, criteria ...repository.InsertCriteria) (*Session, error)

	GetByToken(ctx context.Context, token string) (*Session, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Session, error)

	DeleteByToken(ctx context.Context, userID uuid.UUID, token string) error
	DeleteByTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) error
	DeleteAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessions struct {
	repository.Repository[*Session]
	db *bun.DB
}

var (
	_ Sessions                        = (*sessions)(nil)
	_ repository.Repository[*Session] = (*sessions)(nil)
)

func NewSessionsRepository(db *bun.DB) Sessions {
	repo := repository.NewRepository[*Session](db, repository.ModelHandlers[*Session]{
		NewRecord: func() *Session { return &Session{} },
		GetID: func(s *Session) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Session, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &sessions{
		Repository: repo,
		db:         db,
	}
}

func (r *sessions) Create(ctx context.Context, record *Session, criteria ...repository.InsertCriteria) (*Session, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *sessions) CreateTx(ctx context.Context, tx bun.IDB, record *Session, criteria ...repository.InsertCriteria) (*Session, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *sessions) GetByToken(ctx context.Context, token string) (*Session, error) {
	return r.GetByTokenTx(ctx, r.db, token)
}

func (r *sessions) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Session, error) {
	record := &Session{}
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

// DeleteByToken removes a single session. Both the token and the owner
// must match so a caller can only revoke its own sessions. Deleting a
// token that is already gone is not an error.
func (r *sessions) DeleteByToken(ctx context.Context, userID uuid.UUID, token string) error {
	return r.DeleteByTokenTx(ctx, r.db, userID, token)
}

func (r *sessions) DeleteByTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string) error {
	_, err := tx.NewDelete().
		Model((*Session)(nil)).
		Where("token = ?", token).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

// DeleteAllForUser implements "logout everywhere". Idempotent.
func (r *sessions) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	return r.DeleteAllForUserTx(ctx, r.db, userID)
}

func (r *sessions) DeleteAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Session)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

// DeleteExpired garbage-collects sessions past their window. Intended for
// a host-scheduled job, not for the request path.
func (r *sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*Session)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
