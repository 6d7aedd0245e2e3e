package patient

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "idecide/pkg/domain"
	"idecide/pkg/platform/sentinel"
)

const testMaxRetries = 3

func activePatient(t *testing.T, now time.Time) *Patient {
	t.Helper()
	p := &Patient{
		ID:        id.NewPatientID(),
		NHSNumber: "9449304424",
		GivenName: "Test",
		Surname:   "Person",
	}
	p.BeginCode("A7K2M", now, 15*time.Minute)
	return p
}

func TestBeginCodeResetsLifecycleFields(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := activePatient(t, now)
	p.RetryCount = 2
	matched := now.Add(-time.Hour)
	p.ValidationCodeMatchedOn = &matched

	p.BeginCode("B8Q4N", now, 15*time.Minute)

	assert.Equal(t, 0, p.RetryCount)
	assert.Nil(t, p.ValidationCodeMatchedOn)
	require.NotNil(t, p.ValidationCodeExpiresOn)
	assert.True(t, p.ValidationCodeExpiresOn.After(now))
	assert.Equal(t, StateCodeActive, p.State(now, testMaxRetries))
}

func TestSubmitCode(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no code issued", func(t *testing.T) {
		p := &Patient{ID: id.NewPatientID()}
		err := p.SubmitCode("A7K2M", now, testMaxRetries)
		assert.True(t, errors.Is(err, sentinel.ErrInvalidState))
	})

	t.Run("exact match sets matched-on once", func(t *testing.T) {
		p := activePatient(t, now)
		require.NoError(t, p.SubmitCode("A7K2M", now.Add(time.Minute), testMaxRetries))
		require.NotNil(t, p.ValidationCodeMatchedOn)
		assert.Equal(t, now.Add(time.Minute), *p.ValidationCodeMatchedOn)
		assert.Equal(t, StateCodeMatched, p.State(now.Add(time.Minute), testMaxRetries))

		// A matched code is consumed; the correct code no longer matches.
		err := p.SubmitCode("A7K2M", now.Add(2*time.Minute), testMaxRetries)
		assert.True(t, errors.Is(err, sentinel.ErrAlreadyUsed))
	})

	t.Run("matching is case-sensitive", func(t *testing.T) {
		p := activePatient(t, now)
		err := p.SubmitCode("a7k2m", now, testMaxRetries)
		assert.True(t, errors.Is(err, sentinel.ErrCodeMismatch))
		assert.Equal(t, 1, p.RetryCount)
	})

	t.Run("expired code rejected regardless of correctness", func(t *testing.T) {
		p := activePatient(t, now)
		err := p.SubmitCode("A7K2M", now.Add(16*time.Minute), testMaxRetries)
		assert.True(t, errors.Is(err, sentinel.ErrExpired))
		assert.Nil(t, p.ValidationCodeMatchedOn)
	})

	t.Run("max wrong attempts then correct code still fails", func(t *testing.T) {
		p := activePatient(t, now)
		for i := 0; i < testMaxRetries; i++ {
			err := p.SubmitCode("WRONG", now, testMaxRetries)
			assert.True(t, errors.Is(err, sentinel.ErrCodeMismatch))
		}
		assert.Equal(t, testMaxRetries, p.RetryCount)

		err := p.SubmitCode("A7K2M", now, testMaxRetries)
		assert.True(t, errors.Is(err, sentinel.ErrRetriesExhausted))
		assert.Equal(t, testMaxRetries, p.RetryCount, "exhausted attempts stop counting")
	})
}

func TestStateDerivation(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p := &Patient{ID: id.NewPatientID()}
	assert.Equal(t, StateNoCode, p.State(now, testMaxRetries))

	p.BeginCode("A7K2M", now, 15*time.Minute)
	assert.Equal(t, StateCodeActive, p.State(now, testMaxRetries))
	assert.True(t, p.HasActiveCode(now, testMaxRetries))

	assert.Equal(t, StateCodeExpired, p.State(now.Add(15*time.Minute), testMaxRetries),
		"expiry boundary is exclusive")

	p.RetryCount = testMaxRetries
	assert.Equal(t, StateRetriesExhausted, p.State(now, testMaxRetries))
}

func TestRedact(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := Patient{
		ID:          id.NewPatientID(),
		NHSNumber:   "9449304424",
		GivenName:   "Test",
		Surname:     "Person",
		Email:       "test.person@example.com",
		Phone:       "07700900123",
		Address:     "1 High Street",
		PostCode:    "LS1 4AP",
		RetryCount:  2,
		CreatedDate: now,
		UpdatedDate: now,
	}
	p.BeginCode("A7K2M", now, 15*time.Minute)
	p.RetryCount = 2

	r := p.Redact()

	assert.Equal(t, "T***", r.GivenName)
	assert.Equal(t, "P*****", r.Surname)
	assert.Equal(t, "1 H*** S*****", r.Address)
	assert.Equal(t, "t**********@example.com", r.Email)
	assert.Equal(t, "********123", r.Phone)
	assert.Empty(t, r.ValidationCode, "code never leaves the service")

	// Non-PII fields must round-trip untouched.
	assert.Equal(t, p.ID, r.ID)
	assert.Equal(t, p.NHSNumber, r.NHSNumber)
	assert.Equal(t, p.RetryCount, r.RetryCount)
	assert.Equal(t, p.CreatedDate, r.CreatedDate)
	assert.Equal(t, p.UpdatedDate, r.UpdatedDate)
	assert.Equal(t, p.ValidationCodeExpiresOn, r.ValidationCodeExpiresOn)
}

func TestMaskWordsMultiWord(t *testing.T) {
	assert.Equal(t, "T*** P*****", maskWords("Test Person"))
	assert.Equal(t, "", maskWords(""))
	assert.Equal(t, "A", maskWords("A"))
}
