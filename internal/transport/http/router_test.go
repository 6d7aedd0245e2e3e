package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idecide/internal/adoption"
	"idecide/internal/audit"
	"idecide/internal/consumer"
	"idecide/internal/decision"
	"idecide/internal/decisiontype"
	"idecide/internal/notification"
	"idecide/internal/patient"
	"idecide/internal/platform/metrics"
	"idecide/internal/platform/middleware"
	"idecide/internal/security"
	transport "idecide/internal/transport/http"
	"idecide/internal/verification"
	id "idecide/pkg/domain"
)

const (
	citizenToken = "citizen-token"
	adminToken   = "admin-token"
)

// staticValidator maps fixed bearer tokens to claims.
type staticValidator struct {
	claims map[string]*middleware.Claims
}

func (v *staticValidator) ValidateToken(token string) (*middleware.Claims, error) {
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown token")
}

type env struct {
	router    http.Handler
	patients  *patient.InMemoryStore
	sender    *notification.MemorySender
	consumers *consumer.Service
	typeID    id.DecisionTypeID
	patientID id.PatientID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	sec := security.NewContextProvider()

	patients := patient.NewInMemoryStore()
	decisions := decision.NewInMemoryStore()
	types := decisiontype.NewInMemoryStore()
	consumers := consumer.NewInMemoryStore()
	adoptions := adoption.NewInMemoryStore()
	audits := audit.NewInMemoryStore()
	auditor := audit.NewPublisher(audits, nil, logger)
	sender := notification.NewMemorySender()

	verifier := verification.NewService(
		patients, sender,
		verification.NewLimiter(verification.NewInMemoryLimiterStore(), 100, time.Hour),
		auditor, m, logger,
		verification.Config{CodeTTL: 15 * time.Minute, CodeLength: 5, MaxRetries: 3},
		verification.WithCodeGenerator(func(int) (string, error) { return "A7K2M", nil }),
	)
	patientSvc := patient.NewService(patients, sec, logger)
	typeSvc := decisiontype.NewService(types, sec, logger)
	consumerSvc := consumer.NewService(consumers, sec, logger)
	decisionSvc := decision.NewService(
		decisions, types, patients, verifier, nil,
		sec, security.StaticVerifier{Allow: true},
		auditor, m, logger,
		decision.Config{RecencyWindow: 90 * time.Second},
	)
	adoptionSvc := adoption.NewService(
		adoptions, decisions, patients, types, nil,
		sender, nil, auditor, m, logger,
	)

	p := &patient.Patient{
		ID:                     id.NewPatientID(),
		NHSNumber:              "9449304424",
		GivenName:              "Test",
		Surname:                "Person",
		Email:                  "test.person@example.com",
		Phone:                  "07700900123",
		NotificationPreference: patient.PreferenceEmail,
	}
	require.NoError(t, patients.Insert(context.Background(), p))
	typeID := id.NewDecisionTypeID()
	require.NoError(t, types.Insert(context.Background(), &decisiontype.DecisionType{ID: typeID, Name: "data sharing"}))

	validator := &staticValidator{claims: map[string]*middleware.Claims{
		citizenToken: {UserID: id.NewUserID(), Roles: []string{"citizen"}},
		adminToken:   {UserID: id.NewUserID(), Roles: []string{"admin"}},
	}}

	router := transport.NewRouter(transport.RouterConfig{
		Logger:         logger,
		Metrics:        m,
		TokenValidator: validator,
		ConsumerAuth:   consumerSvc,
		Patients:       transport.NewPatientsHandler(patientSvc, audits, logger),
		Codes:          transport.NewCodesHandler(verifier, logger),
		Decisions:      transport.NewDecisionsHandler(decisionSvc, logger),
		Adoptions:      transport.NewAdoptionsHandler(adoptionSvc, logger),
		Admin:          transport.NewAdminHandler(consumerSvc, typeSvc, logger),
		Health: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
	return &env{
		router: router, patients: patients, sender: sender,
		consumers: consumerSvc, typeID: typeID, patientID: p.ID,
	}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCitizenJourney(t *testing.T) {
	e := newEnv(t)

	t.Run("search returns a redacted record", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/patients/search", citizenToken,
			map[string]any{"nhsNumber": "9449304424"})
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[map[string]any](t, rec)
		assert.Equal(t, "T*** P*****", body["name"])
		assert.Equal(t, "t**********@example.com", body["email"])
	})

	t.Run("issue then submit through to a decision", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/codes", citizenToken,
			map[string]any{"nhsNumber": "9449304424"})
		require.Equal(t, http.StatusCreated, rec.Code)
		issued := decodeBody[map[string]any](t, rec)
		assert.NotContains(t, rec.Body.String(), "A7K2M", "the code travels only over the notification channel")
		assert.NotNil(t, issued["expiresOn"])

		rec = e.do(t, http.MethodPost, "/api/v1/codes/submissions", citizenToken,
			map[string]any{"nhsNumber": "9449304424", "code": "WRONG"})
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = e.do(t, http.MethodPost, "/api/v1/decisions", citizenToken, map[string]any{
			"nhsNumber":        "9449304424",
			"verificationCode": "A7K2M",
			"decisionTypeId":   e.typeID.String(),
			"decisionChoice":   "optin",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		body := decodeBody[map[string]any](t, rec)
		assert.Equal(t, "optin", body["decisionChoice"])
	})

	t.Run("replayed code cannot record again", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/decisions", citizenToken, map[string]any{
			"nhsNumber":        "9449304424",
			"verificationCode": "A7K2M",
			"decisionTypeId":   e.typeID.String(),
			"decisionChoice":   "maybe",
		})
		require.Equal(t, http.StatusConflict, rec.Code, "the matched code is already spent")
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/codes", "",
			map[string]any{"nhsNumber": "9449304424"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown nhs number is not found", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/patients/search", citizenToken,
			map[string]any{"nhsNumber": "0000000000"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAdminSurface(t *testing.T) {
	e := newEnv(t)

	t.Run("citizen role cannot reach admin routes", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/admin/consumers", citizenToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("register consumer returns the secret once", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/admin/consumers", adminToken,
			map[string]any{"name": "care-portal"})
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decodeBody[map[string]any](t, rec)
		secret, _ := created["secret"].(string)
		require.NotEmpty(t, secret)

		rec = e.do(t, http.MethodGet, "/api/v1/admin/consumers", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), secret, "listing never repeats the secret")
	})

	t.Run("decision type crud", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/admin/decision-types", adminToken,
			map[string]any{"name": "research"})
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decodeBody[map[string]any](t, rec)

		rec = e.do(t, http.MethodGet, "/api/v1/decision-types", citizenToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "research")

		rec = e.do(t, http.MethodDelete, "/api/v1/admin/decision-types/"+created["id"].(string), adminToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("audit trail lists the patient journey", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/api/v1/codes", citizenToken,
			map[string]any{"nhsNumber": "9449304424", "forceNew": true})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = e.do(t, http.MethodGet, "/api/v1/admin/patients/"+e.patientID.String()+"/audit", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "code_issued")
	})
}

func TestConsumerSurface(t *testing.T) {
	e := newEnv(t)

	// Register a consumer and record one decision to adopt.
	rec := e.do(t, http.MethodPost, "/api/v1/admin/consumers", adminToken,
		map[string]any{"name": "care-portal"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[map[string]any](t, rec)
	consumerID := created["id"].(string)
	consumerSecret := created["secret"].(string)

	rec = e.do(t, http.MethodPost, "/api/v1/codes", citizenToken,
		map[string]any{"nhsNumber": "9449304424"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/v1/decisions", citizenToken, map[string]any{
		"nhsNumber":        "9449304424",
		"verificationCode": "A7K2M",
		"decisionTypeId":   e.typeID.String(),
		"decisionChoice":   "optout",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	recorded := decodeBody[map[string]any](t, rec)
	decisionID := recorded["id"].(string)

	doConsumer := func(t *testing.T, method, path, user, secret string, body any) *httptest.ResponseRecorder {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(user, secret)
		out := httptest.NewRecorder()
		e.router.ServeHTTP(out, req)
		return out
	}

	t.Run("pending feed shows unadopted decisions", func(t *testing.T) {
		rec := doConsumer(t, http.MethodGet, "/api/v1/adoption/decisions", consumerID, consumerSecret, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), decisionID)
	})

	t.Run("adopting clears the feed and notifies the patient", func(t *testing.T) {
		rec := doConsumer(t, http.MethodPost, "/api/v1/adoption/decisions", consumerID, consumerSecret,
			map[string]any{"decisions": []string{decisionID}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		_, usage := e.sender.Counts()
		assert.Equal(t, 1, usage)

		rec = doConsumer(t, http.MethodGet, "/api/v1/adoption/decisions", consumerID, consumerSecret, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), decisionID)
	})

	t.Run("second adoption of the same decision conflicts", func(t *testing.T) {
		rec := doConsumer(t, http.MethodPost, "/api/v1/adoption/decisions", consumerID, consumerSecret,
			map[string]any{"decisions": []string{decisionID}})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("empty batch is a validation error", func(t *testing.T) {
		rec := doConsumer(t, http.MethodPost, "/api/v1/adoption/decisions", consumerID, consumerSecret,
			map[string]any{"decisions": []string{}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad secret is rejected", func(t *testing.T) {
		rec := doConsumer(t, http.MethodGet, "/api/v1/adoption/decisions", consumerID, "wrong", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
