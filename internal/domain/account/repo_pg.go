package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, db.TranslateError(err)
	}
	return &u, nil
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO app_user (id, email, password_hash, display_name)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName,
	).Scan(&u.CreatedAt)
	if db.IsUniqueViolation(err, "app_user_email_key") {
		return fmt.Errorf("email %s: %w", u.Email, apperr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", db.TranslateError(err))
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, created_at FROM app_user WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, created_at FROM app_user WHERE email = $1`, email))
}
