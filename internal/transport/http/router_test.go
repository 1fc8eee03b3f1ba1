package httptransport

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civreg/internal/audit"
	audithandler "civreg/internal/audit/handler"
	auditmemory "civreg/internal/audit/store/memory"
	"civreg/internal/document/artifact"
	dochandler "civreg/internal/document/handler"
	docservice "civreg/internal/document/service"
	"civreg/internal/document/store/request"
	"civreg/internal/document/templates"
	"civreg/internal/matcher"
	reghandler "civreg/internal/registration/handler"
	regservice "civreg/internal/registration/service"
	"civreg/internal/registration/store/citizen"
	"civreg/internal/registry"
	registrystore "civreg/internal/registry/store"
	"civreg/pkg/testutil"
)

const (
	testSigningKey = "integration-test-signing-key"
	testNationalID = "19990101-00001-00001-23"
	testOfficerID  = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
)

// newTestRouter wires the full stack on in-memory stores with one seeded
// registry record.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	extract := registrystore.NewInMemory()
	extract.Seed(registry.Record{
		NationalID:  testNationalID,
		FirstName:   "Amina",
		LastName:    "Hassan",
		DateOfBirth: "1999-01-01",
	})

	recorder := audit.NewRecorder(auditmemory.New(), log)
	regSvc := regservice.NewService(citizen.NewInMemory(), registry.NewStoreClient(extract),
		recorder, matcher.DefaultConfig(), log)

	artifacts := artifact.NewInMemory()
	docSvc := docservice.NewService(request.NewInMemory(), regSvc, artifacts,
		artifact.NewComposer(templates.NewStatic(), artifacts), recorder, log)

	return NewRouter(Deps{
		Registration:  reghandler.New(regSvc, log),
		Documents:     dochandler.New(docSvc, log),
		Audit:         audithandler.New(recorder, log),
		JWTSigningKey: []byte(testSigningKey),
		Logger:        log,
	})
}

func officerToken(t *testing.T, capabilities ...string) string {
	t.Helper()
	return testutil.SignStaffToken(t, []byte(testSigningKey), testOfficerID, "officer", capabilities...)
}

func submitBody() map[string]any {
	return map[string]any{
		"national_id":       testNationalID,
		"first_name":        "Amina",
		"last_name":         "Hassan",
		"date_of_birth":     "1999-01-01",
		"gender":            "female",
		"employment_status": "employed",
		"address":           "12 Uhuru St, Dodoma",
	}
}

type citizenEnvelope struct {
	Citizen struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		IdentityVerified bool   `json:"identity_verified"`
		Verification     *struct {
			Score   int  `json:"score"`
			IsValid bool `json:"is_valid"`
		} `json:"verification"`
	} `json:"citizen"`
	Warning string `json:"warning"`
}

type requestEnvelope struct {
	Request struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		ArtifactRef string `json:"artifact_ref"`
	} `json:"request"`
	Warning string `json:"warning"`
}

// TestFullWorkflow drives the happy path end to end: submission with a clean
// registry match, stage advancement, registration approval, a document
// request, and its signed-and-stamped approval.
func TestFullWorkflow(t *testing.T) {
	router := newTestRouter(t)
	token := officerToken(t, "advance_registration", "finalize_registration", "approve_document", "view_audit")

	var citizenID string
	testutil.Given(t, "a citizen submits a registration matching the registry", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/registrations", submitBody()))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		resp := testutil.UnmarshalResponse[citizenEnvelope](t, rr)
		assert.Equal(t, "NIDA_VERIFICATION", resp.Citizen.Status)
		assert.True(t, resp.Citizen.IdentityVerified)
		require.NotNil(t, resp.Citizen.Verification)
		assert.Equal(t, 100, resp.Citizen.Verification.Score)
		citizenID = resp.Citizen.ID
	})

	testutil.When(t, "an officer advances the registration through both checks", func(t *testing.T) {
		for _, target := range []string{"BIOMETRIC_VERIFICATION", "DOCUMENT_VERIFICATION"} {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/registrations/"+citizenID+"/advance",
				map[string]string{"target": target})
			req.Header.Set("Authorization", "Bearer "+token)
			rr := testutil.DoRequest(router, req)
			testutil.AssertStatusOK(t, rr)
		}
	})

	testutil.When(t, "the officer approves the registration", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/registrations/"+citizenID+"/approve", map[string]string{})
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)

		resp := testutil.UnmarshalResponse[citizenEnvelope](t, rr)
		assert.Equal(t, "APPROVED", resp.Citizen.Status)
	})

	var requestID string
	testutil.When(t, "the citizen requests an introduction letter", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/documents", map[string]string{
			"citizen_id": citizenID,
			"type":       "INTRODUCTION_LETTER",
			"purpose":    "bank account opening",
		}))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		requestID = testutil.UnmarshalResponse[requestEnvelope](t, rr).Request.ID
	})

	testutil.Then(t, "approving with signature and stamp composes the artifact", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/documents/"+requestID+"/approve", map[string]any{
			"signature": []byte("sig-png"),
			"stamp":     []byte("stamp-png"),
		})
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)

		resp := testutil.UnmarshalResponse[requestEnvelope](t, rr)
		assert.Equal(t, "APPROVED", resp.Request.Status)
		assert.NotEmpty(t, resp.Request.ArtifactRef)

		artifactRR := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/documents/"+requestID+"/artifact"))
		testutil.AssertStatusOK(t, artifactRR)
		body := string(testutil.ReadBody(t, artifactRR))
		assert.Contains(t, body, "Amina Hassan")
		assert.Contains(t, body, "bank account opening")
	})

	testutil.Then(t, "a second approval fails with already_finalized", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/documents/"+requestID+"/approve", map[string]any{
			"signature": []byte("sig-png"),
			"stamp":     []byte("stamp-png"),
		})
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "already_finalized")
	})

	testutil.Then(t, "the audit trail records the whole registration history", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/audit/entities/citizen/"+citizenID)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)

		trail := testutil.UnmarshalResponse[struct {
			Entries []struct {
				Action string `json:"action"`
			} `json:"entries"`
		}](t, rr)
		actions := make([]string, 0, len(trail.Entries))
		for _, e := range trail.Entries {
			actions = append(actions, e.Action)
		}
		assert.Equal(t, []string{
			"registration_submitted",
			"registration_advanced",
			"identity_verified",
			"registration_advanced",
			"registration_advanced",
			"registration_approved",
		}, actions)
	})
}

func TestStaffEndpointsRejectMissingToken(t *testing.T) {
	router := newTestRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost,
		"/registrations/6ba7b810-9dad-11d1-80b4-00c04fd430c8/approve", map[string]string{}))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestStaffEndpointsRejectForgedToken(t *testing.T) {
	router := newTestRouter(t)
	forged := testutil.SignStaffToken(t, []byte("wrong-key"), testOfficerID, "officer", "finalize_registration")

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/registrations/6ba7b810-9dad-11d1-80b4-00c04fd430c8/approve", map[string]string{})
	req.Header.Set("Authorization", "Bearer "+forged)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestCapabilityEnforcedPerEndpoint(t *testing.T) {
	router := newTestRouter(t)

	// Valid token, but no view_audit capability.
	token := officerToken(t, "advance_registration")
	req := testutil.NewRequest(t, http.MethodGet, "/audit/actors/"+testOfficerID)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "unauthorized")
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "status", "ok")
}
