package clinicalrecord

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/memstore"
)

func str(s string) *string { return &s }

func TestOpen_DuplicateCaseNumber(t *testing.T) {
	repo := NewMemRepo(memstore.New())
	svc := NewService(repo)
	ctx := context.Background()

	first, err := svc.Open(ctx, 1001, MotiveIndividualDiagnostic, nil, Referral{Specialty: str("pediatrics")})
	require.NoError(t, err)

	_, err = svc.Open(ctx, 1001, MotiveCouplePrenatal, nil, Referral{})
	assert.ErrorIs(t, err, apperr.ErrDuplicateCaseNumber)

	got, err := svc.GetByCaseNumber(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, MotiveIndividualDiagnostic, got.Motive)
	assert.Len(t, repo.All(), 1)
}

func TestOpen_Validation(t *testing.T) {
	svc := NewService(NewMemRepo(memstore.New()))

	_, err := svc.Open(context.Background(), 0, Motive("consult"), nil, Referral{
		ReferralCenter: str(strings.Repeat("x", 101)),
	})

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("case_number"))
	assert.True(t, verr.Has("motive"))
	assert.True(t, verr.Has("referral_center"))
}

func TestMotive_SubjectKind(t *testing.T) {
	assert.Equal(t, subject.KindIndividual, MotiveIndividualDiagnostic.SubjectKind())
	for _, m := range []Motive{MotiveCoupleBetrothal, MotiveCouplePreconception, MotiveCouplePrenatal} {
		assert.Equal(t, subject.KindCouple, m.SubjectKind(), m)
	}
}

func TestUpdateReferral_MergesFields(t *testing.T) {
	svc := NewService(NewMemRepo(memstore.New()))
	ctx := context.Background()
	owner := uuid.New()

	rec, err := svc.Open(ctx, 7, MotiveCoupleBetrothal, &owner, Referral{
		ReferringPhysician: str("Dr. Perez"), Specialty: str("obstetrics"),
	})
	require.NoError(t, err)
	assert.True(t, rec.OwnedBy(owner))

	got, err := svc.UpdateReferral(ctx, rec.ID, Referral{Specialty: str(""), ReferralCenter: str("Hospital Central")})
	require.NoError(t, err)
	assert.Nil(t, got.Specialty)
	assert.Equal(t, "Dr. Perez", *got.ReferringPhysician)
	assert.Equal(t, "Hospital Central", *got.ReferralCenter)
	assert.Equal(t, 7, got.CaseNumber)

	_, err = svc.UpdateReferral(ctx, uuid.New(), Referral{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
