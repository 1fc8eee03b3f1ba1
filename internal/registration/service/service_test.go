package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civreg/internal/audit"
	auditmemory "civreg/internal/audit/store/memory"
	"civreg/internal/authz"
	"civreg/internal/matcher"
	"civreg/internal/registration/models"
	"civreg/internal/registration/store/citizen"
	"civreg/internal/registry"
	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
	"civreg/pkg/requestcontext"
)

const testNationalID = "19990101-00001-00001-23"

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func officerActor() authz.Actor {
	return authz.NewActor(testActorID(), authz.ActorOfficer,
		authz.CapAdvanceRegistration,
		authz.CapFinalizeRegistration,
	)
}

func testActorID() id.ActorID {
	actorID, err := id.ParseActorID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if err != nil {
		panic(err)
	}
	return actorID
}

type fixture struct {
	svc      *Service
	citizens *citizen.InMemory
	trail    *auditmemory.Store
	registry *registry.MockClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	citizens := citizen.NewInMemory()
	trail := auditmemory.New()
	recorder := audit.NewRecorder(trail, testLogger())

	mock := &registry.MockClient{Records: map[string]registry.Record{
		testNationalID: {
			NationalID:  testNationalID,
			FirstName:   "Amina",
			LastName:    "Hassan",
			DateOfBirth: "1999-01-01",
		},
	}}

	svc := NewService(citizens, mock, recorder, matcher.DefaultConfig(), testLogger())
	return &fixture{svc: svc, citizens: citizens, trail: trail, registry: mock}
}

func validSubmission() models.Submission {
	return models.Submission{
		NationalID:       testNationalID,
		FirstName:        "Amina",
		LastName:         "Hassan",
		DateOfBirth:      "1999-01-01",
		Gender:           "female",
		EmploymentStatus: "employed",
		Address:          "12 Uhuru St, Dodoma",
	}
}

func TestSubmit_FullMatchAdvancesToNIDAVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)

	assert.Equal(t, models.StatusNIDAVerification, c.Status)
	assert.True(t, c.IdentityVerified)
	require.NotNil(t, c.Verification)
	assert.Equal(t, 100, c.Verification.Score)
	assert.True(t, c.Verification.IsValid)
}

func TestSubmit_ValidationNeverTouchesState(t *testing.T) {
	f := newFixture(t)
	sub := validSubmission()
	sub.Gender = ""

	_, err := f.svc.Submit(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeValidation))
	// Validation failures are not decisions: nothing is stored or audited.
	assert.Empty(t, f.trail.All())
}

func TestSubmit_DuplicateNationalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, validSubmission())
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeValidation))
}

func TestSubmit_UnknownNationalIDRecordsNegativeMatch(t *testing.T) {
	f := newFixture(t)
	sub := validSubmission()
	sub.NationalID = "20000101-00001-00009-99"

	c, err := f.svc.Submit(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, models.StatusNIDAVerification, c.Status)
	assert.False(t, c.IdentityVerified)
	require.NotNil(t, c.Verification)
	assert.Equal(t, 0, c.Verification.Score)
	assert.Equal(t, "not found", c.Verification.Details["reason"])
}

func TestSubmit_RegistryOutageIsRetryableNotTerminal(t *testing.T) {
	f := newFixture(t)
	f.registry.Down = true

	c, err := f.svc.Submit(context.Background(), validSubmission())
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeUnavailable))

	// The registration stands; no match outcome was invented.
	require.NotNil(t, c)
	assert.Equal(t, models.StatusNIDAVerification, c.Status)
	assert.Nil(t, c.Verification)

	// Caller-driven retry succeeds once the registry is back.
	f.registry.Down = false
	c, err = f.svc.VerifyIdentity(context.Background(), c.ID, officerActor())
	require.NoError(t, err)
	assert.True(t, c.IdentityVerified)
	assert.Equal(t, 100, c.Verification.Score)
}

func TestAdvance_LegalPathOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	officer := officerActor()

	c, err := f.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)

	t.Run("skipping a stage fails and leaves state unchanged", func(t *testing.T) {
		_, err := f.svc.Advance(ctx, c.ID, models.StatusDocumentVerification, officer)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidTransition))

		current, err := f.svc.GetCitizen(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusNIDAVerification, current.Status)
	})

	t.Run("moving backward fails", func(t *testing.T) {
		_, err := f.svc.Advance(ctx, c.ID, models.StatusPending, officer)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidTransition))
	})

	t.Run("adjacent forward edges succeed", func(t *testing.T) {
		c2, err := f.svc.Advance(ctx, c.ID, models.StatusBiometricVerification, officer)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBiometricVerification, c2.Status)

		c3, err := f.svc.Advance(ctx, c.ID, models.StatusDocumentVerification, officer)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDocumentVerification, c3.Status)
	})

	t.Run("unknown citizen reports not found", func(t *testing.T) {
		_, err := f.svc.Advance(ctx, id.NewCitizenID(), models.StatusBiometricVerification, officer)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
	})
}

func TestAdvance_RequiresCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)

	nobody := authz.NewActor(testActorID(), authz.ActorCitizen)
	_, err = f.svc.Advance(ctx, c.ID, models.StatusBiometricVerification, nobody)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeUnauthorized))
}

func approvedCitizen(t *testing.T, f *fixture) *models.Citizen {
	t.Helper()
	ctx := context.Background()
	officer := officerActor()

	c, err := f.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, c.ID, models.StatusBiometricVerification, officer)
	require.NoError(t, err)
	_, err = f.svc.Advance(ctx, c.ID, models.StatusDocumentVerification, officer)
	require.NoError(t, err)
	c, err = f.svc.Approve(ctx, c.ID, officer)
	require.NoError(t, err)
	return c
}

func TestApprove_TerminalAndIdempotenceGuarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	officer := officerActor()

	c := approvedCitizen(t, f)
	assert.Equal(t, models.StatusApproved, c.Status)

	_, err := f.svc.Approve(ctx, c.ID, officer)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeAlreadyFinalized))

	stored, err := f.svc.GetCitizen(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestReject_RequiresReasonAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	officer := officerActor()

	c, err := f.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, c.ID, "   ", officer)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeValidation))

	rejected, err := f.svc.Reject(ctx, c.ID, "registry mismatch confirmed in person", officer)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "registry mismatch confirmed in person", rejected.RejectionReason)

	_, err = f.svc.Reject(ctx, c.ID, "again", officer)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeAlreadyFinalized))
}

func TestAuditCompleteness(t *testing.T) {
	f := newFixture(t)
	c := approvedCitizen(t, f)

	entries, err := f.trail.ListByEntity(context.Background(), audit.EntityCitizen, c.ID.String())
	require.NoError(t, err)

	var actions []audit.ActionKind
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.ActionKind{
		audit.ActionRegistrationSubmitted,
		audit.ActionRegistrationAdvanced, // PENDING -> NIDA_VERIFICATION
		audit.ActionIdentityVerified,
		audit.ActionRegistrationAdvanced, // -> BIOMETRIC_VERIFICATION
		audit.ActionRegistrationAdvanced, // -> DOCUMENT_VERIFICATION
		audit.ActionRegistrationApproved,
	}, actions)

	// Before/after snapshots chain: each transition entry's before matches
	// the previous after.
	assert.Equal(t, map[string]any{"status": "PENDING"}, entries[1].Before)
	assert.Equal(t, map[string]any{"status": "NIDA_VERIFICATION"}, entries[1].After)
	assert.Equal(t, map[string]any{"status": "DOCUMENT_VERIFICATION"}, entries[5].Before)
	assert.Equal(t, map[string]any{"status": "APPROVED"}, entries[5].After)
}

// failingAuditStore rejects every append to exercise the audit-gap path.
type failingAuditStore struct{ fail bool }

func (s *failingAuditStore) Append(context.Context, audit.Entry) error {
	if s.fail {
		return errors.New("audit storage down")
	}
	return nil
}
func (s *failingAuditStore) ListByEntity(context.Context, audit.EntityType, string) ([]audit.Entry, error) {
	return nil, nil
}
func (s *failingAuditStore) ListByActor(context.Context, id.ActorID) ([]audit.Entry, error) {
	return nil, nil
}

func TestAuditFailureDoesNotRollBackTransition(t *testing.T) {
	citizens := citizen.NewInMemory()
	store := &failingAuditStore{}
	recorder := audit.NewRecorder(store, testLogger())
	mock := &registry.MockClient{Records: map[string]registry.Record{}}
	svc := NewService(citizens, mock, recorder, matcher.DefaultConfig(), testLogger())
	ctx := context.Background()

	c, err := svc.Submit(ctx, validSubmission())
	require.NoError(t, err)

	store.fail = true
	updated, err := svc.Advance(ctx, c.ID, models.StatusBiometricVerification, officerActor())
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeAuditGap))

	// The business transition stands.
	require.NotNil(t, updated)
	assert.Equal(t, models.StatusBiometricVerification, updated.Status)
	stored, err := svc.GetCitizen(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBiometricVerification, stored.Status)
}

func TestSubmit_UsesRequestScopedTime(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)

	c, err := f.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	assert.Equal(t, fixed, c.CreatedAt)
	assert.Equal(t, fixed, c.Verification.VerifiedAt)
}
