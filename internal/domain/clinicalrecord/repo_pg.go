package clinicalrecord

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

const recordCols = `id, case_number, motive, geneticist_id, postgraduate, referring_physician,
	specialty, referral_center, created_at`

func scanRecord(row pgx.Row) (*ClinicalRecord, error) {
	var r ClinicalRecord
	err := row.Scan(&r.ID, &r.CaseNumber, &r.Motive, &r.GeneticistID, &r.Postgraduate,
		&r.ReferringPhysician, &r.Specialty, &r.ReferralCenter, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *repoPG) Create(ctx context.Context, rec *ClinicalRecord) error {
	rec.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO clinical_record (id, case_number, motive, geneticist_id, postgraduate,
			referring_physician, specialty, referral_center)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		rec.ID, rec.CaseNumber, rec.Motive, rec.GeneticistID, rec.Postgraduate,
		rec.ReferringPhysician, rec.Specialty, rec.ReferralCenter,
	).Scan(&rec.CreatedAt)
	if db.IsUniqueViolation(err, "clinical_record_case_number_key") {
		return fmt.Errorf("case %d: %w", rec.CaseNumber, apperr.ErrDuplicateCaseNumber)
	}
	if err != nil {
		return fmt.Errorf("create clinical record: %w", db.TranslateError(err))
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM clinical_record WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}

func (r *repoPG) GetByCaseNumber(ctx context.Context, caseNumber int) (*ClinicalRecord, error) {
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM clinical_record WHERE case_number = $1`, caseNumber))
	if err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}

func (r *repoPG) UpdateReferral(ctx context.Context, id uuid.UUID, ref Referral) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE clinical_record SET postgraduate = $2, referring_physician = $3,
			specialty = $4, referral_center = $5
		WHERE id = $1`,
		id, ref.Postgraduate, ref.ReferringPhysician, ref.Specialty, ref.ReferralCenter)
	if err != nil {
		return db.TranslateError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("clinical record")
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("clinical record")
	}
	return db.TranslateError(err)
}
