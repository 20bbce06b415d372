package access

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

const profileCols = `id, user_id, display_name, role, associated_geneticist_id, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.DisplayName, &p.Role, &p.AssociatedGeneticistID,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) get(ctx context.Context, where string, arg interface{}) (*Profile, error) {
	p, err := scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+profileCols+` FROM geneticist_profile WHERE `+where+` = $1`+db.LockClause(ctx), arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("profile")
	}
	return p, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return r.get(ctx, "id", id)
}

func (r *repoPG) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	return r.get(ctx, "user_id", userID)
}

func (r *repoPG) Ensure(ctx context.Context, p *Profile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stored, err := scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO geneticist_profile (id, user_id, display_name, role, associated_geneticist_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET display_name = CASE
			WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name
			ELSE geneticist_profile.display_name END
		RETURNING `+profileCols,
		p.ID, p.UserID, p.DisplayName, p.Role, p.AssociatedGeneticistID))
	if err != nil {
		return fmt.Errorf("ensure profile: %w", db.TranslateError(err))
	}
	*p = *stored
	return nil
}

func (r *repoPG) Update(ctx context.Context, p *Profile) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE geneticist_profile SET display_name = $2, role = $3,
			associated_geneticist_id = $4, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		p.ID, p.DisplayName, p.Role, p.AssociatedGeneticistID).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("profile")
	}
	if err != nil {
		return fmt.Errorf("update profile: %w", db.TranslateError(err))
	}
	return nil
}

func (r *repoPG) CountReaders(ctx context.Context, geneticistID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM geneticist_profile WHERE associated_geneticist_id = $1`, geneticistID).Scan(&n)
	return n, err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM geneticist_profile`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx,
		`SELECT `+profileCols+` FROM geneticist_profile ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
