package clinicalrecord

import (
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/domain/subject"
)

// Motive is the declared reason for consultation. It is fixed when the
// record is opened and decides whether the case studies an individual or a
// couple.
type Motive string

const (
	MotiveIndividualDiagnostic Motive = "individual_diagnostic"
	MotiveCoupleBetrothal      Motive = "couple_betrothal"
	MotiveCouplePreconception  Motive = "couple_preconception"
	MotiveCouplePrenatal       Motive = "couple_prenatal"
)

var Motives = []Motive{
	MotiveIndividualDiagnostic,
	MotiveCoupleBetrothal,
	MotiveCouplePreconception,
	MotiveCouplePrenatal,
}

func (m Motive) Valid() bool {
	for _, v := range Motives {
		if m == v {
			return true
		}
	}
	return false
}

// SubjectKind returns the kind of subject a case with this motive studies.
func (m Motive) SubjectKind() subject.Kind {
	if m == MotiveIndividualDiagnostic {
		return subject.KindIndividual
	}
	return subject.KindCouple
}

// Referral describes who sent the case.
type Referral struct {
	Postgraduate       *string `json:"postgraduate,omitempty"`
	ReferringPhysician *string `json:"referring_physician,omitempty"`
	Specialty          *string `json:"specialty,omitempty"`
	ReferralCenter     *string `json:"referral_center,omitempty"`
}

// ClinicalRecord is the root aggregate of a case.
type ClinicalRecord struct {
	ID           uuid.UUID  `json:"id"`
	CaseNumber   int        `json:"case_number"`
	Motive       Motive     `json:"motive"`
	GeneticistID *uuid.UUID `json:"geneticist_id,omitempty"`
	Referral
	CreatedAt time.Time `json:"created_at"`
}

// OwnedBy reports whether profileID owns the record.
func (r *ClinicalRecord) OwnedBy(profileID uuid.UUID) bool {
	return r.GeneticistID != nil && *r.GeneticistID == profileID
}
