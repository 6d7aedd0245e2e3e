package decision_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idecide/internal/audit"
	"idecide/internal/decision"
	"idecide/internal/decisiontype"
	"idecide/internal/notification"
	"idecide/internal/patient"
	"idecide/internal/platform/metrics"
	"idecide/internal/security"
	"idecide/internal/verification"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
)

type fixture struct {
	svc       *decision.Service
	verifier  *verification.Service
	patients  *patient.InMemoryStore
	decisions *decision.InMemoryStore
	audits    *audit.InMemoryStore
	captcha   *security.StaticVerifier
	p         *patient.Patient
	typeID    id.DecisionTypeID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())

	patients := patient.NewInMemoryStore()
	decisions := decision.NewInMemoryStore()
	types := decisiontype.NewInMemoryStore()
	audits := audit.NewInMemoryStore()
	auditor := audit.NewPublisher(audits, nil, logger)

	verifier := verification.NewService(
		patients,
		notification.NewMemorySender(),
		verification.NewLimiter(verification.NewInMemoryLimiterStore(), 100, time.Hour),
		auditor, m, logger,
		verification.Config{CodeTTL: 15 * time.Minute, CodeLength: 5, MaxRetries: 3},
		verification.WithCodeGenerator(func(int) (string, error) { return "A7K2M", nil }),
	)

	p := &patient.Patient{
		ID:                     id.NewPatientID(),
		NHSNumber:              "9449304424",
		GivenName:              "Test",
		Surname:                "Person",
		Email:                  "test.person@example.com",
		NotificationPreference: patient.PreferenceEmail,
	}
	require.NoError(t, patients.Insert(context.Background(), p))

	typeID := id.NewDecisionTypeID()
	require.NoError(t, types.Insert(context.Background(), &decisiontype.DecisionType{
		ID:   typeID,
		Name: "data sharing",
	}))

	captcha := &security.StaticVerifier{Allow: true}
	svc := decision.NewService(
		decisions, types, patients, verifier, nil,
		security.NewContextProvider(), captcha,
		auditor, m, logger,
		decision.Config{RecencyWindow: 90 * time.Second},
	)
	return &fixture{
		svc: svc, verifier: verifier,
		patients: patients, decisions: decisions, audits: audits,
		captcha: captcha, p: p, typeID: typeID,
	}
}

func authedContext(now time.Time) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), id.NewUserID())
	return requestcontext.WithTime(ctx, now)
}

func TestRecordDecision(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("code journey ends in a recorded decision", func(t *testing.T) {
		f := newFixture(t)
		ctx := authedContext(now)

		issued, err := f.verifier.IssueCode(ctx, "9449304424", false)
		require.NoError(t, err)
		assert.Len(t, issued.ValidationCode, 5)
		assert.Equal(t, now.Add(15*time.Minute), *issued.ValidationCodeExpiresOn)

		for i := 1; i <= 2; i++ {
			_, err := f.verifier.SubmitCode(ctx, "9449304424", "WRONG")
			require.Error(t, err)
			stored, findErr := f.patients.FindByNHSNumber(ctx, "9449304424")
			require.NoError(t, findErr)
			assert.Equal(t, i, stored.RetryCount)
		}

		d, err := f.svc.RecordDecision(ctx, decision.RecordInput{
			NHSNumber:        "9449304424",
			VerificationCode: "A7K2M",
			DecisionTypeID:   f.typeID,
			Choice:           decision.ChoiceOptIn,
		})
		require.NoError(t, err)
		assert.Equal(t, decision.ChoiceOptIn, d.Choice)
		assert.Equal(t, f.p.ID, d.PatientID)
		assert.True(t, d.CreatedDate.Equal(d.UpdatedDate))

		stored, err := f.patients.FindByNHSNumber(ctx, "9449304424")
		require.NoError(t, err)
		require.NotNil(t, stored.ValidationCodeMatchedOn)

		recorded, err := f.decisions.ListByPatient(ctx, f.p.ID)
		require.NoError(t, err)
		require.Len(t, recorded, 1)
	})

	t.Run("unauthenticated caller fails before any lookup", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.RecordDecision(requestcontext.WithTime(context.Background(), now), decision.RecordInput{
			NHSNumber:        "9449304424",
			VerificationCode: "A7K2M",
			DecisionTypeID:   f.typeID,
			Choice:           decision.ChoiceOptIn,
		})
		assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))

		events, listErr := f.audits.ListByPatient(context.Background(), f.p.ID)
		require.NoError(t, listErr)
		assert.Empty(t, events, "no side effects before the auth gate")
	})

	t.Run("failed captcha blocks identity proof", func(t *testing.T) {
		f := newFixture(t)
		f.captcha.Allow = false
		ctx := authedContext(now)
		_, err := f.verifier.IssueCode(ctx, "9449304424", false)
		require.NoError(t, err)

		_, err = f.svc.RecordDecision(ctx, decision.RecordInput{
			NHSNumber:        "9449304424",
			VerificationCode: "A7K2M",
			CaptchaToken:     "token",
			DecisionTypeID:   f.typeID,
			Choice:           decision.ChoiceOptIn,
		})
		assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))

		stored, findErr := f.patients.FindByNHSNumber(ctx, "9449304424")
		require.NoError(t, findErr)
		assert.Nil(t, stored.ValidationCodeMatchedOn, "code not consumed behind a failed captcha")
	})

	t.Run("wrong code leaves no decision behind", func(t *testing.T) {
		f := newFixture(t)
		ctx := authedContext(now)
		_, err := f.verifier.IssueCode(ctx, "9449304424", false)
		require.NoError(t, err)

		_, err = f.svc.RecordDecision(ctx, decision.RecordInput{
			NHSNumber:        "9449304424",
			VerificationCode: "WRONG",
			DecisionTypeID:   f.typeID,
			Choice:           decision.ChoiceOptIn,
		})
		assert.True(t, dErrors.Is(err, dErrors.CodeValidation))

		recorded, listErr := f.decisions.ListByPatient(ctx, f.p.ID)
		require.NoError(t, listErr)
		assert.Empty(t, recorded)
	})

	t.Run("matched code cannot record a second decision", func(t *testing.T) {
		f := newFixture(t)
		ctx := authedContext(now)
		_, err := f.verifier.IssueCode(ctx, "9449304424", false)
		require.NoError(t, err)

		in := decision.RecordInput{
			NHSNumber:        "9449304424",
			VerificationCode: "A7K2M",
			DecisionTypeID:   f.typeID,
			Choice:           decision.ChoiceOptIn,
		}
		_, err = f.svc.RecordDecision(ctx, in)
		require.NoError(t, err)

		_, err = f.svc.RecordDecision(ctx, in)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

		recorded, listErr := f.decisions.ListByPatient(ctx, f.p.ID)
		require.NoError(t, listErr)
		assert.Len(t, recorded, 1, "replayed code must not duplicate the decision")
	})

	t.Run("unknown decision type fails validation", func(t *testing.T) {
		f := newFixture(t)
		ctx := authedContext(now)
		_, err := f.verifier.IssueCode(ctx, "9449304424", false)
		require.NoError(t, err)

		_, err = f.svc.RecordDecision(ctx, decision.RecordInput{
			NHSNumber:        "9449304424",
			VerificationCode: "A7K2M",
			DecisionTypeID:   id.NewDecisionTypeID(),
			Choice:           decision.ChoiceOptIn,
		})
		require.True(t, dErrors.Is(err, dErrors.CodeValidation))
		require.Len(t, dErrors.FieldsOf(err), 1)
		assert.Equal(t, "decisionTypeId", dErrors.FieldsOf(err)[0].Field)
	})

	t.Run("missing identity proof fails validation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.RecordDecision(authedContext(now), decision.RecordInput{
			NHSNumber:      "9449304424",
			DecisionTypeID: f.typeID,
			Choice:         decision.ChoiceOptIn,
		})
		assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
	})
}

type staticIdentity struct {
	info *security.NHSLoginUserInfo
}

func (s staticIdentity) Enabled() bool { return true }
func (s staticIdentity) UserInfo(context.Context, string) (*security.NHSLoginUserInfo, error) {
	return s.info, nil
}

func TestRecordDecisionWithNHSLogin(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("matching nhs login identity records without a code", func(t *testing.T) {
		f := newFixture(t)
		svc := decision.NewService(
			f.decisions, typesOf(t, f), f.patients, f.verifier,
			staticIdentity{info: &security.NHSLoginUserInfo{NHSNumber: "9449304424"}},
			security.NewContextProvider(), f.captcha,
			audit.NewPublisher(f.audits, nil, slog.New(slog.NewTextHandler(io.Discard, nil))),
			metrics.NewWith(prometheus.NewRegistry()),
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			decision.Config{RecencyWindow: 90 * time.Second},
		)

		d, err := svc.RecordDecision(authedContext(now), decision.RecordInput{
			NHSNumber:      "9449304424",
			NHSLoginToken:  "access-token",
			DecisionTypeID: f.typeID,
			Choice:         decision.ChoiceOptOut,
		})
		require.NoError(t, err)
		assert.Equal(t, decision.ChoiceOptOut, d.Choice)
	})

	t.Run("mismatched identity is forbidden", func(t *testing.T) {
		f := newFixture(t)
		svc := decision.NewService(
			f.decisions, typesOf(t, f), f.patients, f.verifier,
			staticIdentity{info: &security.NHSLoginUserInfo{NHSNumber: "1111111111"}},
			security.NewContextProvider(), f.captcha,
			audit.NewPublisher(f.audits, nil, slog.New(slog.NewTextHandler(io.Discard, nil))),
			metrics.NewWith(prometheus.NewRegistry()),
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			decision.Config{RecencyWindow: 90 * time.Second},
		)

		_, err := svc.RecordDecision(authedContext(now), decision.RecordInput{
			NHSNumber:      "9449304424",
			NHSLoginToken:  "access-token",
			DecisionTypeID: f.typeID,
			Choice:         decision.ChoiceOptOut,
		})
		assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))
	})
}

// typesOf rebuilds a type store containing the fixture's decision type.
func typesOf(t *testing.T, f *fixture) *decisiontype.InMemoryStore {
	t.Helper()
	types := decisiontype.NewInMemoryStore()
	require.NoError(t, types.Insert(context.Background(), &decisiontype.DecisionType{ID: f.typeID, Name: "data sharing"}))
	return types
}

func TestModifyDecision(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	record := func(t *testing.T, f *fixture, ctx context.Context) *decision.Decision {
		t.Helper()
		_, err := f.verifier.IssueCode(ctx, "9449304424", false)
		require.NoError(t, err)
		d, err := f.svc.RecordDecision(ctx, decision.RecordInput{
			NHSNumber:        "9449304424",
			VerificationCode: "A7K2M",
			DecisionTypeID:   f.typeID,
			Choice:           decision.ChoiceOptIn,
		})
		require.NoError(t, err)
		return d
	}

	t.Run("choice can be reversed", func(t *testing.T) {
		f := newFixture(t)
		ctx := authedContext(now)
		d := record(t, f, ctx)

		later := authedContext(now.Add(time.Minute))
		got, err := f.svc.ModifyDecision(later, d.ID, decision.ModifyInput{Choice: decision.ChoiceOptOut})
		require.NoError(t, err)
		assert.Equal(t, decision.ChoiceOptOut, got.Choice)
		assert.True(t, got.UpdatedDate.After(got.CreatedDate))
		assert.True(t, got.CreatedDate.Equal(d.CreatedDate))
	})

	t.Run("unknown decision", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ModifyDecision(authedContext(now), id.NewDecisionID(), decision.ModifyInput{Choice: decision.ChoiceOptOut})
		assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
	})

	t.Run("stale version loses to the concurrent writer", func(t *testing.T) {
		f := newFixture(t)
		ctx := authedContext(now)
		d := record(t, f, ctx)

		// Another writer bumps the row version underneath us.
		stale := *d
		d.UpdatedDate = now.Add(time.Second)
		require.NoError(t, f.decisions.Update(ctx, d))

		stale.UpdatedDate = now.Add(2 * time.Second)
		err := f.decisions.Update(ctx, &stale)
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrLocked)
	})
}
