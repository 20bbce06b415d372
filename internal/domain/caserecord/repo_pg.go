package caserecord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/db"
)

// NewPGRepositories returns Postgres-backed stores for every record type.
func NewPGRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Family: newPGStore[FamilyHistory](pool, "family_history", true, []string{
			"father_history", "father_health", "mother_history", "mother_health",
			"union_date", "consanguinity", "consanguinity_degree",
		}, func(r *FamilyHistory) []interface{} {
			return []interface{}{&r.FatherHistory, &r.FatherHealth, &r.MotherHistory, &r.MotherHealth,
				&r.UnionDate, &r.Consanguinity, &r.ConsanguinityDegree}
		}),
		Personal: newPGStore[PersonalHistory](pool, "personal_history", true, []string{
			"lmp_date", "gestational_age_weeks", "prenatal_controls", "pregnancies", "deliveries",
			"cesareans", "abortions", "stillbirths", "malformations", "pregnancy_complications",
			"teratogen_exposure", "exposure_description", "maternal_diseases",
			"delivery_complications", "other_history", "observations",
		}, func(r *PersonalHistory) []interface{} {
			return []interface{}{&r.LMPDate, &r.GestationalAgeWeeks, &r.PrenatalControls, &r.Pregnancies,
				&r.Deliveries, &r.Cesareans, &r.Abortions, &r.Stillbirths, &r.Malformations,
				&r.PregnancyComplications, &r.TeratogenExposure, &r.ExposureDescription,
				&r.MaternalDiseases, &r.DeliveryComplications, &r.OtherHistory, &r.Observations}
		}),
		Development: newPGStore[Development](pool, "development", true, []string{
			"head_control", "sitting", "crawling", "standing", "walking", "first_words",
			"sentences", "sphincter_control", "school_performance", "social_behavior", "observations",
		}, func(r *Development) []interface{} {
			return []interface{}{&r.HeadControl, &r.Sitting, &r.Crawling, &r.Standing, &r.Walking,
				&r.FirstWords, &r.Sentences, &r.SphincterControl, &r.SchoolPerformance,
				&r.SocialBehavior, &r.Observations}
		}),
		Neonatal: newPGStore[Neonatal](pool, "neonatal_period", true, []string{
			"birth_weight_kg", "birth_length_cm", "head_circumference_cm", "cyanosis", "jaundice",
			"hemorrhage", "infections", "seizures", "respiratory_distress", "feeding_type", "notes",
		}, func(r *Neonatal) []interface{} {
			return []interface{}{&r.BirthWeightKg, &r.BirthLengthCm, &r.HeadCircumferenceCm, &r.Cyanosis,
				&r.Jaundice, &r.Hemorrhage, &r.Infections, &r.Seizures, &r.RespiratoryDistress,
				&r.FeedingType, &r.Notes}
		}),
		Exams: newPGStore[PhysicalExam](pool, "physical_exam", false, []string{
			"exam_date", "height_cm", "weight_kg", "arm_span_cm", "upper_segment_cm",
			"lower_segment_cm", "head_circumference_cm", "systolic_bp", "diastolic_bp",
			"inner_canthal_cm", "outer_canthal_cm", "interpupillary_cm", "chest_circumference_cm",
			"hand_length_cm", "foot_length_cm", "head_notes", "face_notes", "eyes_notes",
			"ears_notes", "nose_notes", "mouth_notes", "neck_notes", "chest_notes",
			"abdomen_notes", "genitals_notes", "limbs_notes", "skin_notes",
		}, func(r *PhysicalExam) []interface{} {
			return []interface{}{&r.ExamDate, &r.HeightCm, &r.WeightKg, &r.ArmSpanCm, &r.UpperSegmentCm,
				&r.LowerSegmentCm, &r.HeadCircumferenceCm, &r.SystolicBP, &r.DiastolicBP,
				&r.InnerCanthalCm, &r.OuterCanthalCm, &r.InterpupillaryCm, &r.ChestCircumferenceCm,
				&r.HandLengthCm, &r.FootLengthCm, &r.HeadNotes, &r.FaceNotes, &r.EyesNotes,
				&r.EarsNotes, &r.NoseNotes, &r.MouthNotes, &r.NeckNotes, &r.ChestNotes,
				&r.AbdomenNotes, &r.GenitalsNotes, &r.LimbsNotes, &r.SkinNotes}
		}),
		Evaluations: &evaluationStorePG{
			pgStore: newPGStore[GeneticEvaluation](pool, "genetic_evaluation", true, []string{
				"clinical_signs", "current_illness", "confirmed_diagnosis",
			}, func(r *GeneticEvaluation) []interface{} {
				return []interface{}{&r.ClinicalSigns, &r.CurrentIllness, &r.ConfirmedDiagnosis}
			}),
		},
	}
}

// pgStore maps one record type onto a table keyed by individual_id and,
// when coupled, couple_id. fields returns pointers to the record's columns
// in the order of cols; they serve both as scan targets and as arguments.
type pgStore[T any, PT record[T]] struct {
	pool    *pgxpool.Pool
	table   string
	coupled bool
	fields  func(PT) []interface{}

	selectSQL string
	insertSQL string
}

func newPGStore[T any, PT record[T]](pool *pgxpool.Pool, table string, coupled bool, cols []string, fields func(PT) []interface{}) *pgStore[T, PT] {
	keyCols := []string{"id", "individual_id"}
	if coupled {
		keyCols = append(keyCols, "couple_id")
	}
	all := append(append([]string{}, keyCols...), cols...)

	placeholders := make([]string, len(all))
	for i := range all {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	sets = append(sets, "updated_at = NOW()")

	return &pgStore[T, PT]{
		pool:      pool,
		table:     table,
		coupled:   coupled,
		fields:    fields,
		selectSQL: "SELECT " + strings.Join(all, ", ") + ", created_at, updated_at FROM " + table,
		insertSQL: "INSERT INTO " + table + " (" + strings.Join(all, ", ") + ") VALUES (" +
			strings.Join(placeholders, ", ") + ") ON CONFLICT (%s) DO UPDATE SET " +
			strings.Join(sets, ", ") + " RETURNING id, created_at, updated_at",
	}
}

func (s *pgStore[T, PT]) scan(row pgx.Row) (PT, error) {
	rec := PT(new(T))
	b := rec.base()
	var binding subject.Binding
	dest := []interface{}{&b.ID, &binding.IndividualID}
	if s.coupled {
		dest = append(dest, &binding.CoupleID)
	}
	dest = append(dest, s.fields(rec)...)
	dest = append(dest, &b.CreatedAt, &b.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	subj, err := binding.Subject()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", s.table, b.ID, err)
	}
	b.Subject = subj
	return rec, nil
}

func (s *pgStore[T, PT]) Get(ctx context.Context, subj subject.Subject) (*T, error) {
	col, err := s.column(subj)
	if err != nil {
		return nil, err
	}
	rec, err := s.scan(db.Conn(ctx, s.pool).QueryRow(ctx,
		s.selectSQL+" WHERE "+col+" = $1"+db.LockClause(ctx), subj.ID()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(strings.ReplaceAll(s.table, "_", " "))
	}
	if err != nil {
		return nil, err
	}
	return (*T)(rec), nil
}

func (s *pgStore[T, PT]) Upsert(ctx context.Context, r *T) error {
	rec := PT(r)
	b := rec.base()
	col, err := s.column(b.Subject)
	if err != nil {
		return err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	binding := b.Subject.Binding()
	args := []interface{}{b.ID, binding.IndividualID}
	if s.coupled {
		args = append(args, binding.CoupleID)
	}
	args = append(args, s.fields(rec)...)

	err = db.Conn(ctx, s.pool).QueryRow(ctx, fmt.Sprintf(s.insertSQL, col), args...).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", s.table, db.TranslateError(err))
	}
	return nil
}

func (s *pgStore[T, PT]) column(subj subject.Subject) (string, error) {
	if !s.coupled {
		if _, ok := subj.Individual(); !ok {
			return "", apperr.ErrInvalidSubjectBinding
		}
	}
	return subject.Column(subj)
}

// evaluationStorePG adds the diagnosis and plan lists to the evaluation row.
type evaluationStorePG struct {
	*pgStore[GeneticEvaluation, *GeneticEvaluation]
}

func (s *evaluationStorePG) Get(ctx context.Context, subj subject.Subject) (*GeneticEvaluation, error) {
	ev, err := s.pgStore.Get(ctx, subj)
	if err != nil {
		return nil, err
	}
	conn := db.Conn(ctx, s.pool)

	rows, err := conn.Query(ctx, `
		SELECT id, description, priority, position FROM presumptive_diagnosis
		WHERE evaluation_id = $1 ORDER BY priority, position`, ev.ID)
	if err != nil {
		return nil, err
	}
	ev.Diagnoses, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (PresumptiveDiagnosis, error) {
		var d PresumptiveDiagnosis
		err := row.Scan(&d.ID, &d.Description, &d.Priority, &d.Position)
		return d, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = conn.Query(ctx, `
		SELECT id, action, completed, target_date, position FROM study_plan_item
		WHERE evaluation_id = $1 ORDER BY position`, ev.ID)
	if err != nil {
		return nil, err
	}
	ev.Plan, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (StudyPlanItem, error) {
		var it StudyPlanItem
		err := row.Scan(&it.ID, &it.Action, &it.Completed, &it.TargetDate, &it.Position)
		return it, err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Upsert writes the evaluation row and replaces both child lists. Callers
// run it inside a transaction.
func (s *evaluationStorePG) Upsert(ctx context.Context, ev *GeneticEvaluation) error {
	if err := s.pgStore.Upsert(ctx, ev); err != nil {
		return err
	}
	conn := db.Conn(ctx, s.pool)

	if _, err := conn.Exec(ctx, `DELETE FROM presumptive_diagnosis WHERE evaluation_id = $1`, ev.ID); err != nil {
		return fmt.Errorf("clear diagnoses: %w", err)
	}
	if _, err := conn.Exec(ctx, `DELETE FROM study_plan_item WHERE evaluation_id = $1`, ev.ID); err != nil {
		return fmt.Errorf("clear study plan: %w", err)
	}
	for i := range ev.Diagnoses {
		d := &ev.Diagnoses[i]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		_, err := conn.Exec(ctx, `
			INSERT INTO presumptive_diagnosis (id, evaluation_id, description, priority, position)
			VALUES ($1, $2, $3, $4, $5)`, d.ID, ev.ID, d.Description, d.Priority, d.Position)
		if err != nil {
			return fmt.Errorf("insert diagnosis: %w", db.TranslateError(err))
		}
	}
	for i := range ev.Plan {
		it := &ev.Plan[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		_, err := conn.Exec(ctx, `
			INSERT INTO study_plan_item (id, evaluation_id, action, completed, target_date, position)
			VALUES ($1, $2, $3, $4, $5, $6)`, it.ID, ev.ID, it.Action, it.Completed, it.TargetDate, it.Position)
		if err != nil {
			return fmt.Errorf("insert study plan item: %w", db.TranslateError(err))
		}
	}
	return nil
}
