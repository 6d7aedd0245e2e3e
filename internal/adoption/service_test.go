package adoption_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idecide/internal/adoption"
	"idecide/internal/audit"
	"idecide/internal/decision"
	"idecide/internal/decisiontype"
	"idecide/internal/notification"
	"idecide/internal/patient"
	"idecide/internal/platform/metrics"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
)

// countingStore wraps the in-memory store to count storage calls.
type countingStore struct {
	*adoption.InMemoryStore
	upserts int
}

func (c *countingStore) BulkUpsert(ctx context.Context, rows []adoption.ConsumerAdoption) ([]adoption.ConsumerAdoption, error) {
	c.upserts++
	return c.InMemoryStore.BulkUpsert(ctx, rows)
}

type staticNamer struct{ name string }

func (s staticNamer) Name(context.Context, id.ConsumerID) (string, error) { return s.name, nil }

type fixture struct {
	svc        *adoption.Service
	adoptions  *countingStore
	decisions  *decision.InMemoryStore
	sender     *notification.MemorySender
	consumerID id.ConsumerID
	patientID  id.PatientID
	typeID     id.DecisionTypeID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	patients := patient.NewInMemoryStore()
	decisions := decision.NewInMemoryStore()
	types := decisiontype.NewInMemoryStore()
	adoptions := &countingStore{InMemoryStore: adoption.NewInMemoryStore()}
	sender := notification.NewMemorySender()

	p := &patient.Patient{ID: id.NewPatientID(), NHSNumber: "9449304424", Email: "p@example.com"}
	require.NoError(t, patients.Insert(context.Background(), p))
	typeID := id.NewDecisionTypeID()
	require.NoError(t, types.Insert(context.Background(), &decisiontype.DecisionType{ID: typeID, Name: "data sharing"}))

	svc := adoption.NewService(
		adoptions, decisions, patients, types,
		staticNamer{name: "care-portal"},
		sender, nil,
		audit.NewPublisher(audit.NewInMemoryStore(), nil, logger),
		metrics.NewWith(prometheus.NewRegistry()),
		logger,
	)
	return &fixture{
		svc: svc, adoptions: adoptions, decisions: decisions, sender: sender,
		consumerID: id.NewConsumerID(), patientID: p.ID, typeID: typeID,
	}
}

func (f *fixture) consumerContext(now time.Time) context.Context {
	ctx := requestcontext.WithConsumerID(context.Background(), f.consumerID)
	return requestcontext.WithTime(ctx, now)
}

func (f *fixture) addDecision(t *testing.T, created time.Time) id.DecisionID {
	t.Helper()
	user := id.NewUserID()
	d := &decision.Decision{
		ID:             id.NewDecisionID(),
		PatientID:      f.patientID,
		DecisionTypeID: f.typeID,
		Choice:         decision.ChoiceOptIn,
		CreatedBy:      user,
		CreatedDate:    created,
		UpdatedBy:      user,
		UpdatedDate:    created,
	}
	require.NoError(t, f.decisions.Insert(context.Background(), d))
	return d.ID
}

func TestAdoptPatientDecisions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty batch rejected before any storage call", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.AdoptPatientDecisions(f.consumerContext(now), nil)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
		assert.Zero(t, f.adoptions.upserts, "storage must not be touched")
		_, usage := f.sender.Counts()
		assert.Zero(t, usage, "no notifications for a rejected batch")
	})

	t.Run("unauthenticated consumer rejected", func(t *testing.T) {
		f := newFixture(t)
		d := f.addDecision(t, now)
		_, err := f.svc.AdoptPatientDecisions(requestcontext.WithTime(context.Background(), now), []id.DecisionID{d})
		assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	t.Run("adopts each decision once and notifies per decision", func(t *testing.T) {
		f := newFixture(t)
		first := f.addDecision(t, now)
		second := f.addDecision(t, now)

		rows, err := f.svc.AdoptPatientDecisions(f.consumerContext(now), []id.DecisionID{first, second})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		for _, row := range rows {
			assert.Equal(t, f.consumerID, row.ConsumerID)
			assert.Equal(t, now, row.AdoptionDate)
		}

		_, usage := f.sender.Counts()
		assert.Equal(t, 2, usage)
		require.NotEmpty(t, f.sender.UsageSends)
		assert.Equal(t, "care-portal", f.sender.UsageSends[0].ConsumerName)
		assert.Equal(t, "data sharing", f.sender.UsageSends[0].DecisionType)
	})

	t.Run("duplicate pair conflicts without corrupting the first row", func(t *testing.T) {
		f := newFixture(t)
		d := f.addDecision(t, now)
		ctx := f.consumerContext(now)

		first, err := f.svc.AdoptPatientDecisions(ctx, []id.DecisionID{d})
		require.NoError(t, err)
		require.Len(t, first, 1)

		again, err := f.svc.AdoptPatientDecisions(f.consumerContext(now.Add(time.Minute)), []id.DecisionID{d})
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
		assert.Empty(t, again)

		stored, listErr := f.adoptions.ListByConsumer(ctx, f.consumerID)
		require.NoError(t, listErr)
		require.Len(t, stored, 1)
		assert.Equal(t, now, stored[0].AdoptionDate, "original receipt untouched")
	})

	t.Run("partial duplicate still adopts the new decision", func(t *testing.T) {
		f := newFixture(t)
		old := f.addDecision(t, now)
		_, err := f.svc.AdoptPatientDecisions(f.consumerContext(now), []id.DecisionID{old})
		require.NoError(t, err)

		fresh := f.addDecision(t, now)
		rows, err := f.svc.AdoptPatientDecisions(f.consumerContext(now.Add(time.Minute)), []id.DecisionID{old, fresh})
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
		require.Len(t, rows, 1)
		assert.Equal(t, fresh, rows[0].DecisionID)
	})

	t.Run("unknown decision rejected before storage", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.AdoptPatientDecisions(f.consumerContext(now), []id.DecisionID{id.NewDecisionID()})
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
		assert.Zero(t, f.adoptions.upserts)
	})

	t.Run("notification failure does not roll back the adoption", func(t *testing.T) {
		f := newFixture(t)
		d := f.addDecision(t, now)
		f.sender.FailWith = errors.New("provider down")

		rows, err := f.svc.AdoptPatientDecisions(f.consumerContext(now), []id.DecisionID{d})
		require.NoError(t, err, "best-effort notification never fails the batch")
		require.Len(t, rows, 1)

		stored, listErr := f.adoptions.ListByConsumer(context.Background(), f.consumerID)
		require.NoError(t, listErr)
		assert.Len(t, stored, 1)
	})
}

func TestPendingDecisions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("adopted decisions drop out of the feed", func(t *testing.T) {
		f := newFixture(t)
		adopted := f.addDecision(t, now)
		pendingID := f.addDecision(t, now.Add(time.Minute))

		_, err := f.svc.AdoptPatientDecisions(f.consumerContext(now.Add(2*time.Minute)), []id.DecisionID{adopted})
		require.NoError(t, err)

		pending, err := f.svc.PendingDecisions(f.consumerContext(now.Add(3*time.Minute)), nil, nil)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, pendingID, pending[0].ID)
	})

	t.Run("from filter bounds the feed", func(t *testing.T) {
		f := newFixture(t)
		f.addDecision(t, now)
		recent := f.addDecision(t, now.Add(time.Hour))

		from := now.Add(30 * time.Minute)
		pending, err := f.svc.PendingDecisions(f.consumerContext(now.Add(2*time.Hour)), &from, nil)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, recent, pending[0].ID)
	})

	t.Run("unauthenticated consumer rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.PendingDecisions(context.Background(), nil, nil)
		assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
	})
}

func TestBulkUpsertStore(t *testing.T) {
	store := adoption.NewInMemoryStore()
	consumerID := id.NewConsumerID()
	decisionID := id.NewDecisionID()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	row := adoption.ConsumerAdoption{ID: id.NewAdoptionID(), ConsumerID: consumerID, DecisionID: decisionID, AdoptionDate: now}
	inserted, err := store.BulkUpsert(context.Background(), []adoption.ConsumerAdoption{row})
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	dup := adoption.ConsumerAdoption{ID: id.NewAdoptionID(), ConsumerID: consumerID, DecisionID: decisionID, AdoptionDate: now.Add(time.Hour)}
	inserted, err = store.BulkUpsert(context.Background(), []adoption.ConsumerAdoption{dup})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.Empty(t, inserted)
}
