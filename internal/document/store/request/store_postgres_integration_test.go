//go:build integration

package request_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dmodels "civreg/internal/document/models"
	"civreg/internal/document/store/request"
	rmodels "civreg/internal/registration/models"
	"civreg/internal/registration/store/citizen"
	id "civreg/pkg/domain"
	derrors "civreg/pkg/domain-errors"
	"civreg/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *request.Postgres
	citizens *citizen.Postgres
	citizen  *rmodels.Citizen
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = request.NewPostgres(s.postgres.DB)
	s.citizens = citizen.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "document_requests", "citizens")
	s.Require().NoError(err)

	// document_requests references citizens, so seed one approved citizen.
	c, err := rmodels.NewCitizen(id.NewCitizenID(), rmodels.Submission{
		NationalID:       "19990101-00001-00001-23",
		FirstName:        "Amina",
		LastName:         "Hassan",
		DateOfBirth:      "1999-01-01",
		Gender:           "female",
		EmploymentStatus: "employed",
		Address:          "12 Uhuru St, Dodoma",
	}, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	c.Status = rmodels.StatusApproved
	c.IdentityVerified = true
	s.Require().NoError(s.citizens.Create(ctx, c))
	s.citizen = c
}

func (s *PostgresStoreSuite) newRequest(docType dmodels.DocumentType) *dmodels.Request {
	req, err := dmodels.NewRequest(id.NewDocumentRequestID(), s.citizen.ID, docType,
		"bank account opening", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return req
}

func (s *PostgresStoreSuite) TestCreateFindAndList() {
	ctx := context.Background()
	first := s.newRequest(dmodels.TypeIntroductionLetter)
	second := s.newRequest(dmodels.TypeResidenceCertificate)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.UpdatedAt = second.CreatedAt

	s.Require().NoError(s.store.Create(ctx, first))
	s.Require().NoError(s.store.Create(ctx, second))

	stored, err := s.store.FindByID(ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(dmodels.DocumentPending, stored.Status)
	s.Nil(stored.DecidedAt)

	list, err := s.store.ListByCitizen(ctx, s.citizen.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.ID, list[0].ID)
	s.Equal(second.ID, list[1].ID)
}

func (s *PostgresStoreSuite) TestApprovalRoundTripsRefs() {
	ctx := context.Background()
	req := s.newRequest(dmodels.TypeSponsorshipLetter)
	s.Require().NoError(s.store.Create(ctx, req))

	actorID, err := id.ParseActorID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	s.Require().NoError(err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err = s.store.Execute(ctx, req.ID,
		func(r *dmodels.Request) error { return r.CanApprove() },
		func(r *dmodels.Request) {
			r.ApplyApproval("signature/abc", "stamp/def", "document/ghi", actorID, now)
		},
	)
	s.Require().NoError(err)

	stored, err := s.store.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(dmodels.DocumentApproved, stored.Status)
	s.Equal("signature/abc", stored.SignatureRef)
	s.Equal("stamp/def", stored.StampRef)
	s.Equal("document/ghi", stored.ArtifactRef)
	s.Equal(actorID, stored.DecidedBy)
	s.Require().NotNil(stored.DecidedAt)
	s.WithinDuration(now, *stored.DecidedAt, time.Millisecond)
}

// TestConcurrentDecisions verifies the row lock: one decision wins, the rest
// fail with already_finalized.
func (s *PostgresStoreSuite) TestConcurrentDecisions() {
	ctx := context.Background()
	req := s.newRequest(dmodels.TypeGoodConductReferral)
	s.Require().NoError(s.store.Create(ctx, req))

	actorID, err := id.ParseActorID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	s.Require().NoError(err)

	const goroutines = 20
	var wg sync.WaitGroup
	var wins, finalized atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now().UTC()
			_, err := s.store.Execute(ctx, req.ID,
				func(r *dmodels.Request) error { return r.CanReject() },
				func(r *dmodels.Request) { r.ApplyRejection("purpose unclear", actorID, now) },
			)
			switch {
			case err == nil:
				wins.Add(1)
			case derrors.HasCode(err, derrors.CodeAlreadyFinalized):
				finalized.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), finalized.Load())
}
