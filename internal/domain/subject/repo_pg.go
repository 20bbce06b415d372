package subject

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

func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return db.TranslateError(err)
}

// -- Individuals --

type individualRepoPG struct{ pool *pgxpool.Pool }

func NewIndividualRepoPG(pool *pgxpool.Pool) IndividualRepository {
	return &individualRepoPG{pool: pool}
}

const individualCols = `id, first_names, last_names, birth_id, birth_place, birth_date,
	schooling, occupation, age, address, phone, email, blood_group, rh_factor,
	photo_ref, record_id, status, created_at, updated_at`

func scanIndividual(row pgx.Row) (*Individual, error) {
	var i Individual
	var firstNames, lastNames, birthID string
	err := row.Scan(&i.ID, &firstNames, &lastNames, &birthID, &i.BirthPlace, &i.BirthDate,
		&i.Schooling, &i.Occupation, &i.Age, &i.Address, &i.Phone, &i.Email,
		&i.BloodGroup, &i.RhFactor, &i.PhotoRef, &i.RecordID, &i.Status,
		&i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	i.FirstNames, i.LastNames, i.BirthID = &firstNames, &lastNames, &birthID
	return &i, nil
}

func (r *individualRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Individual, error) {
	i, err := scanIndividual(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+individualCols+` FROM individual WHERE id = $1`+db.LockClause(ctx), id))
	if err != nil {
		return nil, notFound(err, "individual")
	}
	return i, nil
}

func (r *individualRepoPG) GetByBirthID(ctx context.Context, birthID string) (*Individual, error) {
	i, err := scanIndividual(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+individualCols+` FROM individual WHERE birth_id = $1`+db.LockClause(ctx), birthID))
	if err != nil {
		return nil, notFound(err, "individual")
	}
	return i, nil
}

func (r *individualRepoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Individual, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+individualCols+` FROM individual WHERE record_id = $1 ORDER BY created_at, id`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Individual
	for rows.Next() {
		i, err := scanIndividual(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *individualRepoPG) Upsert(ctx context.Context, i *Individual) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO individual (id, first_names, last_names, birth_id, birth_place, birth_date,
			schooling, occupation, age, address, phone, email, blood_group, rh_factor,
			photo_ref, record_id, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (birth_id) DO UPDATE SET
			first_names = EXCLUDED.first_names, last_names = EXCLUDED.last_names,
			birth_place = EXCLUDED.birth_place, birth_date = EXCLUDED.birth_date,
			schooling = EXCLUDED.schooling, occupation = EXCLUDED.occupation, age = EXCLUDED.age,
			address = EXCLUDED.address, phone = EXCLUDED.phone, email = EXCLUDED.email,
			blood_group = EXCLUDED.blood_group, rh_factor = EXCLUDED.rh_factor,
			photo_ref = EXCLUDED.photo_ref, record_id = EXCLUDED.record_id,
			status = EXCLUDED.status, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		i.ID, i.FirstNames, i.LastNames, i.BirthID, i.BirthPlace, i.BirthDate,
		i.Schooling, i.Occupation, i.Age, i.Address, i.Phone, i.Email, i.BloodGroup, i.RhFactor,
		i.PhotoRef, i.RecordID, i.Status,
	).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert individual: %w", db.TranslateError(err))
	}
	return nil
}

func (r *individualRepoPG) DetachFromRecord(ctx context.Context, recordID uuid.UUID, keep []uuid.UUID) error {
	if keep == nil {
		keep = []uuid.UUID{}
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE individual SET record_id = NULL, updated_at = NOW()
		WHERE record_id = $1 AND NOT (id = ANY($2))`, recordID, keep)
	return db.TranslateError(err)
}

func (r *individualRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE individual SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return db.TranslateError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("individual")
	}
	return nil
}

// -- Couples --

type coupleRepoPG struct{ pool *pgxpool.Pool }

func NewCoupleRepoPG(pool *pgxpool.Pool) CoupleRepository {
	return &coupleRepoPG{pool: pool}
}

func scanCouple(row pgx.Row) (*Couple, error) {
	var c Couple
	if err := row.Scan(&c.ID, &c.Member1ID, &c.Member2ID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *coupleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Couple, error) {
	c, err := scanCouple(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, member1_id, member2_id, created_at FROM couple WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "couple")
	}
	return c, nil
}

func (r *coupleRepoPG) GetByMembers(ctx context.Context, m1, m2 uuid.UUID) (*Couple, error) {
	c, err := scanCouple(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, member1_id, member2_id, created_at FROM couple WHERE member1_id = $1 AND member2_id = $2`, m1, m2))
	if err != nil {
		return nil, notFound(err, "couple")
	}
	return c, nil
}

// Upsert relies on couple_members_key: a concurrent or repeated pairing
// resolves to the existing row and returns its id.
func (r *coupleRepoPG) Upsert(ctx context.Context, c *Couple) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO couple (id, member1_id, member2_id) VALUES ($1, $2, $3)
		ON CONFLICT (member1_id, member2_id) DO UPDATE SET member1_id = EXCLUDED.member1_id
		RETURNING id, created_at`,
		c.ID, c.Member1ID, c.Member2ID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert couple: %w", db.TranslateError(err))
	}
	return nil
}

// -- Parents --

type parentRepoPG struct{ pool *pgxpool.Pool }

func NewParentRepoPG(pool *pgxpool.Pool) ParentRepository {
	return &parentRepoPG{pool: pool}
}

const parentCols = `id, individual_id, kind, first_names, last_names, birth_id, birth_place,
	birth_date, schooling, occupation, age, blood_group, rh_factor, phone, email, address,
	created_at, updated_at`

func scanParent(row pgx.Row) (*ParentInfo, error) {
	var p ParentInfo
	var firstNames, lastNames string
	err := row.Scan(&p.ID, &p.IndividualID, &p.Kind, &firstNames, &lastNames, &p.BirthID,
		&p.BirthPlace, &p.BirthDate, &p.Schooling, &p.Occupation, &p.Age, &p.BloodGroup,
		&p.RhFactor, &p.Phone, &p.Email, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.FirstNames, p.LastNames = &firstNames, &lastNames
	return &p, nil
}

func (r *parentRepoPG) Get(ctx context.Context, individualID uuid.UUID, kind ParentKind) (*ParentInfo, error) {
	p, err := scanParent(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+parentCols+` FROM parent_info WHERE individual_id = $1 AND kind = $2`+db.LockClause(ctx),
		individualID, kind))
	if err != nil {
		return nil, notFound(err, "parent")
	}
	return p, nil
}

func (r *parentRepoPG) ListByIndividual(ctx context.Context, individualID uuid.UUID) ([]*ParentInfo, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+parentCols+` FROM parent_info WHERE individual_id = $1 ORDER BY kind`, individualID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ParentInfo
	for rows.Next() {
		p, err := scanParent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const parentInsert = `
	INSERT INTO parent_info (id, individual_id, kind, first_names, last_names, birth_id,
		birth_place, birth_date, schooling, occupation, age, blood_group, rh_factor,
		phone, email, address)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

func parentArgs(p *ParentInfo) []interface{} {
	return []interface{}{p.ID, p.IndividualID, p.Kind, p.FirstNames, p.LastNames, p.BirthID,
		p.BirthPlace, p.BirthDate, p.Schooling, p.Occupation, p.Age, p.BloodGroup, p.RhFactor,
		p.Phone, p.Email, p.Address}
}

func (r *parentRepoPG) Create(ctx context.Context, p *ParentInfo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, parentInsert+` RETURNING created_at, updated_at`,
		parentArgs(p)...).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create %s: %w", p.Kind, db.TranslateError(err))
	}
	return nil
}

func (r *parentRepoPG) Upsert(ctx context.Context, p *ParentInfo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, parentInsert+`
		ON CONFLICT (individual_id, kind) DO UPDATE SET
			first_names = EXCLUDED.first_names, last_names = EXCLUDED.last_names,
			birth_id = EXCLUDED.birth_id, birth_place = EXCLUDED.birth_place,
			birth_date = EXCLUDED.birth_date, schooling = EXCLUDED.schooling,
			occupation = EXCLUDED.occupation, age = EXCLUDED.age,
			blood_group = EXCLUDED.blood_group, rh_factor = EXCLUDED.rh_factor,
			phone = EXCLUDED.phone, email = EXCLUDED.email, address = EXCLUDED.address,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		parentArgs(p)...).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", p.Kind, db.TranslateError(err))
	}
	return nil
}
