package subject

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/memstore"
)

func str(s string) *string { return &s }

func newTestService() (*Service, *memstore.Store) {
	st := memstore.New()
	svc := NewService(NewMemIndividuals(st), NewMemCouples(st), NewMemParents(st))
	svc.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	return svc, st
}

func person(birthID, first string) IndividualFields {
	return IndividualFields{FirstNames: str(first), LastNames: str("Rojas"), BirthID: str(birthID)}
}

func TestUpsertIndividual_IsIdempotentOnBirthID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.UpsertIndividual(ctx, person("V-123", "Ana"), nil)
	require.NoError(t, err)
	second, err := svc.UpsertIndividual(ctx, person("V-123", "Ana"), nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, StatusActive, second.Status)
}

func TestUpsertIndividual_NilLeavesEmptyClears(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	f := person("V-1", "Ana")
	f.Occupation = str("teacher")
	f.Phone = str("04141234567")
	_, err := svc.UpsertIndividual(ctx, f, nil)
	require.NoError(t, err)

	got, err := svc.UpsertIndividual(ctx, IndividualFields{BirthID: str("V-1"), Occupation: str("")}, nil)
	require.NoError(t, err)

	assert.Nil(t, got.Occupation)
	require.NotNil(t, got.Phone)
	assert.Equal(t, "04141234567", *got.Phone)
	assert.Equal(t, "Ana", *got.FirstNames)
}

func TestUpsertIndividual_RejectsInvalidFieldsWithoutWriting(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	f := person("V-9", "Ana")
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f.BirthDate = &future
	age := 130
	f.Age = &age
	f.BloodGroup = str("C")

	_, err := svc.UpsertIndividual(ctx, f, nil)

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("birth_date"))
	assert.True(t, verr.Has("age"))
	assert.True(t, verr.Has("blood_group"))

	_, err = svc.individuals.GetByBirthID(ctx, "V-9")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpsertIndividual_RequiresNamesOnCreate(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.UpsertIndividual(context.Background(), IndividualFields{BirthID: str("V-2")}, nil)

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("first_names"))
	assert.True(t, verr.Has("last_names"))
}

func TestPairCouple_CanonicalAndIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.UpsertIndividual(ctx, person("V-100", "Ana"), nil)
	require.NoError(t, err)
	b, err := svc.UpsertIndividual(ctx, person("V-200", "Luis"), nil)
	require.NoError(t, err)

	ab, err := svc.PairCouple(ctx, a.ID, b.ID)
	require.NoError(t, err)
	ba, err := svc.PairCouple(ctx, b.ID, a.ID)
	require.NoError(t, err)

	assert.Equal(t, ab.ID, ba.ID)
	assert.Len(t, svc.couples.(*MemCouples).All(), 1)

	found, err := svc.CoupleOf(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, ab.ID, found.ID)
}

func TestPairCouple_SelfPairingFails(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.UpsertIndividual(ctx, person("V-100", "Ana"), nil)
	require.NoError(t, err)

	_, err = svc.PairCouple(ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, apperr.ErrSelfPairing)
}

func TestPairCouple_UnknownMember(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.UpsertIndividual(ctx, person("V-100", "Ana"), nil)
	require.NoError(t, err)

	_, err = svc.PairCouple(ctx, a.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMembers_ResolvesBothKinds(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, _ := svc.UpsertIndividual(ctx, person("V-100", "Ana"), nil)
	b, _ := svc.UpsertIndividual(ctx, person("V-200", "Luis"), nil)
	c, err := svc.PairCouple(ctx, a.ID, b.ID)
	require.NoError(t, err)

	one, err := svc.Members(ctx, OfIndividual(a.ID))
	require.NoError(t, err)
	assert.Len(t, one, 1)

	two, err := svc.Members(ctx, OfCouple(c.ID))
	require.NoError(t, err)
	assert.Len(t, two, 2)

	_, err = svc.Members(ctx, Subject{})
	assert.ErrorIs(t, err, apperr.ErrInvalidSubjectBinding)
}

func TestAddParent_DuplicateKindFails(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ind, err := svc.UpsertIndividual(ctx, person("V-1", "Ana"), nil)
	require.NoError(t, err)

	fields := ParentFields{FirstNames: str("Pedro"), LastNames: str("Rojas")}
	_, err = svc.AddParent(ctx, ind.ID, Father, fields)
	require.NoError(t, err)

	_, err = svc.AddParent(ctx, ind.ID, Father, fields)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.AddParent(ctx, ind.ID, Mother, ParentFields{FirstNames: str("Rosa"), LastNames: str("Paz")})
	assert.NoError(t, err)
}

func TestUpsertParents_SameIdentificationRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ind, err := svc.UpsertIndividual(ctx, person("V-1", "Ana"), nil)
	require.NoError(t, err)

	_, _, err = svc.UpsertParents(ctx, ind.ID,
		ParentFields{FirstNames: str("Pedro"), LastNames: str("Rojas"), BirthID: str("V-50")},
		ParentFields{FirstNames: str("Rosa"), LastNames: str("Paz"), BirthID: str("v-50")},
	)

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("mother.birth_id"))

	parents, err := svc.Parents(ctx, ind.ID)
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func TestUpsertParents_UpdatesInPlace(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ind, _ := svc.UpsertIndividual(ctx, person("V-1", "Ana"), nil)
	f1, m1, err := svc.UpsertParents(ctx, ind.ID,
		ParentFields{FirstNames: str("Pedro"), LastNames: str("Rojas")},
		ParentFields{FirstNames: str("Rosa"), LastNames: str("Paz")},
	)
	require.NoError(t, err)

	f2, m2, err := svc.UpsertParents(ctx, ind.ID,
		ParentFields{Occupation: str("farmer")},
		ParentFields{},
	)
	require.NoError(t, err)

	assert.Equal(t, f1.ID, f2.ID)
	assert.Equal(t, m1.ID, m2.ID)
	assert.Equal(t, "farmer", *f2.Occupation)

	parents, err := svc.Parents(ctx, ind.ID)
	require.NoError(t, err)
	require.Len(t, parents, 2)
	assert.Equal(t, Father, parents[0].Kind)
}

func TestSetStatus(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ind, _ := svc.UpsertIndividual(ctx, person("V-1", "Ana"), nil)

	got, err := svc.SetStatus(ctx, ind.ID, StatusInFollowUp)
	require.NoError(t, err)
	assert.Equal(t, StatusInFollowUp, got.Status)

	_, err = svc.SetStatus(ctx, ind.ID, Status("archived"))
	var verr *apperr.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = svc.SetStatus(ctx, uuid.New(), StatusInactive)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDetachOthers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	rec := uuid.New()

	a, _ := svc.UpsertIndividual(ctx, person("V-1", "Ana"), &rec)
	_, _ = svc.UpsertIndividual(ctx, person("V-2", "Eva"), &rec)

	require.NoError(t, svc.DetachOthers(ctx, rec, a.ID))

	linked, err := svc.IndividualsOfRecord(ctx, rec)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, a.ID, linked[0].ID)
}
