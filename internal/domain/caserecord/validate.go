package caserecord

import (
	"fmt"
	"sort"
	"time"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/validate"
)

func (f *FamilyHistory) Validate(today time.Time) error {
	v := &apperr.ValidationError{}
	validate.NotFuture(v, "union_date", f.UnionDate, today)
	validate.OneOf(v, "consanguinity", f.Consanguinity, ConsanguinityYes, ConsanguinityNo)
	validate.MaxLen(v, "consanguinity_degree", f.ConsanguinityDegree, 100)
	if f.Consanguinity != nil && *f.Consanguinity == ConsanguinityYes && f.ConsanguinityDegree == nil {
		v.Add("consanguinity_degree", "is required when consanguinity is yes")
	}
	return v.Err()
}

// normalize clears the consanguinity degree unless consanguinity is yes.
func (f *FamilyHistory) normalize() {
	if f.Consanguinity == nil || *f.Consanguinity != ConsanguinityYes {
		f.ConsanguinityDegree = nil
	}
}

func (p *PersonalHistory) Validate(today time.Time) error {
	v := &apperr.ValidationError{}
	validate.NotFuture(v, "lmp_date", p.LMPDate, today)
	validate.IntRange(v, "gestational_age_weeks", p.GestationalAgeWeeks, 18, 45)
	for field, n := range map[string]*int{
		"pregnancies":   p.Pregnancies,
		"deliveries":    p.Deliveries,
		"cesareans":     p.Cesareans,
		"abortions":     p.Abortions,
		"stillbirths":   p.Stillbirths,
		"malformations": p.Malformations,
	} {
		validate.NonNegative(v, field, n)
	}
	if p.Cesareans != nil && p.Deliveries != nil && *p.Cesareans > *p.Deliveries {
		v.Add("cesareans", "must not exceed deliveries")
	}
	if p.Deliveries != nil && p.Pregnancies != nil && *p.Deliveries > *p.Pregnancies {
		v.Add("deliveries", "must not exceed pregnancies")
	}
	validate.OneOf(v, "teratogen_exposure", p.TeratogenExposure, TeratogenKinds...)
	if p.TeratogenExposure != nil && p.ExposureDescription == nil {
		v.Add("exposure_description", "is required when a teratogen exposure is recorded")
	}
	sortErrors(v)
	return v.Err()
}

func (d *Development) Validate(time.Time) error {
	v := &apperr.ValidationError{}
	for field, s := range map[string]*string{
		"head_control":       d.HeadControl,
		"sitting":            d.Sitting,
		"crawling":           d.Crawling,
		"standing":           d.Standing,
		"walking":            d.Walking,
		"first_words":        d.FirstWords,
		"sentences":          d.Sentences,
		"sphincter_control":  d.SphincterControl,
		"school_performance": d.SchoolPerformance,
		"social_behavior":    d.SocialBehavior,
	} {
		validate.MaxLen(v, field, s, 200)
	}
	sortErrors(v)
	return v.Err()
}

func (n *Neonatal) Validate(time.Time) error {
	v := &apperr.ValidationError{}
	validate.Between(v, "birth_weight_kg", n.BirthWeightKg, 0.1, 10)
	validate.Between(v, "birth_length_cm", n.BirthLengthCm, 20, 70)
	validate.Between(v, "head_circumference_cm", n.HeadCircumferenceCm, 15, 50)
	for field, s := range map[string]*string{
		"cyanosis":             n.Cyanosis,
		"jaundice":             n.Jaundice,
		"hemorrhage":           n.Hemorrhage,
		"infections":           n.Infections,
		"seizures":             n.Seizures,
		"respiratory_distress": n.RespiratoryDistress,
	} {
		validate.MaxLen(v, field, s, 200)
	}
	validate.OneOf(v, "feeding_type", n.FeedingType, FeedingTypes...)
	sortErrors(v)
	return v.Err()
}

type bound struct {
	field    string
	value    *float64
	min, max float64
}

func (e *PhysicalExam) Validate(today time.Time) error {
	v := &apperr.ValidationError{}
	if _, ok := e.Subject.Individual(); !ok {
		return apperr.ErrInvalidSubjectBinding
	}
	validate.NotFuture(v, "exam_date", e.ExamDate, today)
	for _, b := range []bound{
		{"height_cm", e.HeightCm, 0, 300},
		{"weight_kg", e.WeightKg, 0.1, 500},
		{"arm_span_cm", e.ArmSpanCm, 0, 300},
		{"upper_segment_cm", e.UpperSegmentCm, 0, 200},
		{"lower_segment_cm", e.LowerSegmentCm, 0, 200},
		{"head_circumference_cm", e.HeadCircumferenceCm, 0, 100},
		{"systolic_bp", e.SystolicBP, 10, 300},
		{"diastolic_bp", e.DiastolicBP, 10, 200},
	} {
		validate.Between(v, b.field, b.value, b.min, b.max)
	}
	for field, f := range map[string]*float64{
		"inner_canthal_cm":       e.InnerCanthalCm,
		"outer_canthal_cm":       e.OuterCanthalCm,
		"interpupillary_cm":      e.InterpupillaryCm,
		"chest_circumference_cm": e.ChestCircumferenceCm,
		"hand_length_cm":         e.HandLengthCm,
		"foot_length_cm":         e.FootLengthCm,
	} {
		if f != nil && *f < 0 {
			v.Add(field, "must not be negative")
		}
	}
	sortErrors(v)
	return v.Err()
}

func (g *GeneticEvaluation) Validate(time.Time) error {
	v := &apperr.ValidationError{}
	for i, d := range g.Diagnoses {
		if d.Priority < 0 {
			v.Add(fmt.Sprintf("diagnoses[%d].priority", i), "must not be negative")
		}
	}
	return v.Err()
}

// checkPlanDates rejects pending items in plan whose target date is before
// today. An item that stored already holds, pending with the same action and
// date, passes: the rule applies when a date is written, not as it ages.
func checkPlanDates(plan, stored []StudyPlanItem, today time.Time) error {
	v := &apperr.ValidationError{}
	for i, it := range plan {
		if it.Completed || it.TargetDate == nil || !validate.DateOnly(*it.TargetDate).Before(today) {
			continue
		}
		if planHolds(stored, it) {
			continue
		}
		v.Add(fmt.Sprintf("plan[%d].target_date", i), "must not be in the past for a pending item")
	}
	return v.Err()
}

func planHolds(stored []StudyPlanItem, it StudyPlanItem) bool {
	for _, s := range stored {
		if s.Completed || s.Action != it.Action || s.TargetDate == nil {
			continue
		}
		if validate.DateOnly(*s.TargetDate).Equal(validate.DateOnly(*it.TargetDate)) {
			return true
		}
	}
	return false
}

// Map iteration order is random; keep responses stable.
func sortErrors(v *apperr.ValidationError) {
	sort.SliceStable(v.Errors, func(i, j int) bool { return v.Errors[i].Field < v.Errors[j].Field })
}
