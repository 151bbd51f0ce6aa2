package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the bun backed user store
type Users interface {
	repository.Repository[*User]
	UserStore

	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID, columns ...string) (*User, error)
	SaveTx(ctx context.Context, tx bun.IDB, user *User) error
	UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ UserStore                    = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// UsersOption configures the users store
type UsersOption func(*users)

// WithUsersClock overrides the clock used for bookkeeping timestamps
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

// NewUsersRepository returns a Users store on db
func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

// FindByEmailTx looks up a record by its lower-cased e-mail.
func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	normalized := NormalizeEmail(email)
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", normalized).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || IsNotFound(err) {
			return nil, withMetadata(ErrUserNotFound, err, map[string]any{
				"email": normalized,
			})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID, columns ...string) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id, columns...)
}

// FindByIDTx loads a record by id. When columns are given only those are
// selected and every other field is left at its zero value.
func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID, columns ...string) (*User, error) {
	record := &User{}
	q := tx.NewSelect().Model(record)
	if len(columns) > 0 {
		q = q.Column(columns...)
	}

	err := q.
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || IsNotFound(err) {
			return nil, withMetadata(ErrUserNotFound, err, map[string]any{
				"id": id.String(),
			})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Save(ctx context.Context, user *User) error {
	return a.SaveTx(ctx, a.db, user)
}

// SaveTx inserts user when it has no id yet, otherwise updates every column.
func (a *users) SaveTx(ctx context.Context, tx bun.IDB, user *User) error {
	if user == nil {
		return withMetadata(ErrInvalidIdentity, nil, map[string]any{
			"reason": "nil user",
		})
	}

	user.Email = NormalizeEmail(user.Email)
	now := a.now()
	user.UpdatedAt = now

	if user.ID == uuid.Nil {
		prepareUserDefaults(user, now)
		created, err := a.Repository.CreateTx(ctx, tx, user)
		if err != nil {
			return err
		}
		if created != nil && created != user {
			*user = *created
		}
		return nil
	}

	res, err := tx.NewUpdate().
		Model(user).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return withMetadata(ErrUserNotFound, repository.NewRecordNotFound(), map[string]any{
			"id": user.ID.String(),
		})
	}

	return nil
}

func (a *users) UsernameExists(ctx context.Context, username string) (bool, error) {
	return a.UsernameExistsTx(ctx, a.db, username)
}

func (a *users) UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.username = ?", username).
		Exists(ctx)
}

func prepareUserDefaults(record *User, now time.Time) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	if record.Rank == "" {
		record.Rank = RankRecruit
	}

	if record.Level == 0 {
		record.Level = DefaultLevel
	}

	record.Roles = RolesOrDefault(record.Roles)

	if record.Badges == nil {
		record.Badges = []string{}
	}
}
