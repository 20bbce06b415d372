// Package caserecord holds the per-subject clinical records of a case:
// family (preconception) history, personal history, psychomotor
// development, neonatal period, physical exam and genetic evaluation.
//
// Every record belongs to exactly one subject and is written through an
// upsert: the stored record for the subject is loaded, the supplied fields
// are merged in, the result is validated as a whole and then stored.
package caserecord

import (
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/patch"
)

// Base carries the identity and ownership shared by every record type.
type Base struct {
	ID        uuid.UUID       `json:"id"`
	Subject   subject.Subject `json:"subject"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (b *Base) base() *Base { return b }

// -- Family (preconception) history --

const (
	ConsanguinityYes = "yes"
	ConsanguinityNo  = "no"
)

type FamilyHistoryFields struct {
	FatherHistory       *string    `json:"father_history,omitempty"`
	FatherHealth        *string    `json:"father_health,omitempty"`
	MotherHistory       *string    `json:"mother_history,omitempty"`
	MotherHealth        *string    `json:"mother_health,omitempty"`
	UnionDate           *time.Time `json:"union_date,omitempty"`
	Consanguinity       *string    `json:"consanguinity,omitempty"`
	ConsanguinityDegree *string    `json:"consanguinity_degree,omitempty"`
}

type FamilyHistory struct {
	Base
	FamilyHistoryFields
}

// -- Personal history --

var TeratogenKinds = []string{"physical", "chemical", "biological"}

type PersonalHistoryFields struct {
	LMPDate                *time.Time `json:"lmp_date,omitempty"`
	GestationalAgeWeeks    *int       `json:"gestational_age_weeks,omitempty"`
	PrenatalControls       *string    `json:"prenatal_controls,omitempty"`
	Pregnancies            *int       `json:"pregnancies,omitempty"`
	Deliveries             *int       `json:"deliveries,omitempty"`
	Cesareans              *int       `json:"cesareans,omitempty"`
	Abortions              *int       `json:"abortions,omitempty"`
	Stillbirths            *int       `json:"stillbirths,omitempty"`
	Malformations          *int       `json:"malformations,omitempty"`
	PregnancyComplications *string    `json:"pregnancy_complications,omitempty"`
	TeratogenExposure      *string    `json:"teratogen_exposure,omitempty"`
	ExposureDescription    *string    `json:"exposure_description,omitempty"`
	MaternalDiseases       *string    `json:"maternal_diseases,omitempty"`
	DeliveryComplications  *string    `json:"delivery_complications,omitempty"`
	OtherHistory           *string    `json:"other_history,omitempty"`
	Observations           *string    `json:"observations,omitempty"`
}

type PersonalHistory struct {
	Base
	PersonalHistoryFields
}

// -- Psychomotor development --

type DevelopmentFields struct {
	HeadControl       *string `json:"head_control,omitempty"`
	Sitting           *string `json:"sitting,omitempty"`
	Crawling          *string `json:"crawling,omitempty"`
	Standing          *string `json:"standing,omitempty"`
	Walking           *string `json:"walking,omitempty"`
	FirstWords        *string `json:"first_words,omitempty"`
	Sentences         *string `json:"sentences,omitempty"`
	SphincterControl  *string `json:"sphincter_control,omitempty"`
	SchoolPerformance *string `json:"school_performance,omitempty"`
	SocialBehavior    *string `json:"social_behavior,omitempty"`
	Observations      *string `json:"observations,omitempty"`
}

type Development struct {
	Base
	DevelopmentFields
}

// -- Neonatal period --

var FeedingTypes = []string{"breast", "artificial", "mixed"}

type NeonatalFields struct {
	BirthWeightKg       *float64 `json:"birth_weight_kg,omitempty"`
	BirthLengthCm       *float64 `json:"birth_length_cm,omitempty"`
	HeadCircumferenceCm *float64 `json:"head_circumference_cm,omitempty"`
	Cyanosis            *string  `json:"cyanosis,omitempty"`
	Jaundice            *string  `json:"jaundice,omitempty"`
	Hemorrhage          *string  `json:"hemorrhage,omitempty"`
	Infections          *string  `json:"infections,omitempty"`
	Seizures            *string  `json:"seizures,omitempty"`
	RespiratoryDistress *string  `json:"respiratory_distress,omitempty"`
	FeedingType         *string  `json:"feeding_type,omitempty"`
	Notes               *string  `json:"notes,omitempty"`
}

type Neonatal struct {
	Base
	NeonatalFields
}

// -- Physical exam --

type PhysicalExamFields struct {
	HeightCm             *float64 `json:"height_cm,omitempty"`
	WeightKg             *float64 `json:"weight_kg,omitempty"`
	ArmSpanCm            *float64 `json:"arm_span_cm,omitempty"`
	UpperSegmentCm       *float64 `json:"upper_segment_cm,omitempty"`
	LowerSegmentCm       *float64 `json:"lower_segment_cm,omitempty"`
	HeadCircumferenceCm  *float64 `json:"head_circumference_cm,omitempty"`
	SystolicBP           *float64 `json:"systolic_bp,omitempty"`
	DiastolicBP          *float64 `json:"diastolic_bp,omitempty"`
	InnerCanthalCm       *float64 `json:"inner_canthal_cm,omitempty"`
	OuterCanthalCm       *float64 `json:"outer_canthal_cm,omitempty"`
	InterpupillaryCm     *float64 `json:"interpupillary_cm,omitempty"`
	ChestCircumferenceCm *float64 `json:"chest_circumference_cm,omitempty"`
	HandLengthCm         *float64 `json:"hand_length_cm,omitempty"`
	FootLengthCm         *float64 `json:"foot_length_cm,omitempty"`
	HeadNotes            *string  `json:"head_notes,omitempty"`
	FaceNotes            *string  `json:"face_notes,omitempty"`
	EyesNotes            *string  `json:"eyes_notes,omitempty"`
	EarsNotes            *string  `json:"ears_notes,omitempty"`
	NoseNotes            *string  `json:"nose_notes,omitempty"`
	MouthNotes           *string  `json:"mouth_notes,omitempty"`
	NeckNotes            *string  `json:"neck_notes,omitempty"`
	ChestNotes           *string  `json:"chest_notes,omitempty"`
	AbdomenNotes         *string  `json:"abdomen_notes,omitempty"`
	GenitalsNotes        *string  `json:"genitals_notes,omitempty"`
	LimbsNotes           *string  `json:"limbs_notes,omitempty"`
	SkinNotes            *string  `json:"skin_notes,omitempty"`
}

// PhysicalExam belongs to a single individual; a couple's members are
// examined separately. Its Subject is always an individual.
type PhysicalExam struct {
	Base
	ExamDate *time.Time `json:"exam_date,omitempty"`
	PhysicalExamFields
}

// -- Genetic evaluation --

type EvaluationFields struct {
	ClinicalSigns      *string `json:"clinical_signs,omitempty"`
	CurrentIllness     *string `json:"current_illness,omitempty"`
	ConfirmedDiagnosis *string `json:"confirmed_diagnosis,omitempty"`
}

// PresumptiveDiagnosis is ordered by Priority, then by Position.
type PresumptiveDiagnosis struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"`
	Position    int       `json:"position"`
}

type StudyPlanItem struct {
	ID         uuid.UUID  `json:"id"`
	Action     string     `json:"action"`
	Completed  bool       `json:"completed"`
	TargetDate *time.Time `json:"target_date,omitempty"`
	Position   int        `json:"position"`
}

type GeneticEvaluation struct {
	Base
	EvaluationFields
	Diagnoses []PresumptiveDiagnosis `json:"diagnoses"`
	Plan      []StudyPlanItem        `json:"plan"`
}

// EvaluationInput is the write form of a genetic evaluation. Each save
// replaces both stored lists; a nil list clears them.
type EvaluationInput struct {
	EvaluationFields
	Diagnoses []DiagnosisInput `json:"diagnoses"`
	Plan      []PlanItemInput  `json:"plan"`
}

type DiagnosisInput struct {
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

type PlanItemInput struct {
	Action     string     `json:"action"`
	Completed  bool       `json:"completed"`
	TargetDate *time.Time `json:"target_date,omitempty"`
}

func cloneEvaluation(e GeneticEvaluation) GeneticEvaluation {
	out := patch.Clone(e)
	out.Diagnoses = append([]PresumptiveDiagnosis(nil), e.Diagnoses...)
	out.Plan = make([]StudyPlanItem, len(e.Plan))
	for i, it := range e.Plan {
		if it.TargetDate != nil {
			d := *it.TargetDate
			it.TargetDate = &d
		}
		out.Plan[i] = it
	}
	return out
}
