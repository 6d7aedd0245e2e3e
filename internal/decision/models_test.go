package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
)

const recency = 90 * time.Second

func validDecision(user id.UserID, now time.Time) *Decision {
	return &Decision{
		ID:             id.NewDecisionID(),
		PatientID:      id.NewPatientID(),
		DecisionTypeID: id.NewDecisionTypeID(),
		Choice:         ChoiceOptIn,
		CreatedBy:      user,
		CreatedDate:    now,
		UpdatedBy:      user,
		UpdatedDate:    now,
	}
}

func failedFields(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	require.True(t, dErrors.Is(err, dErrors.CodeValidation))
	var fields []string
	for _, f := range dErrors.FieldsOf(err) {
		fields = append(fields, f.Field)
	}
	return fields
}

func TestValidateOnAdd(t *testing.T) {
	user := id.NewUserID()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid decision passes", func(t *testing.T) {
		assert.NoError(t, validDecision(user, now).ValidateOnAdd(user, now, recency))
	})

	t.Run("collects every failing field in order", func(t *testing.T) {
		d := validDecision(user, now)
		d.PatientID = id.PatientID{}
		d.Choice = "maybe"
		d.CreatedBy = id.NewUserID()
		assert.Equal(t, []string{"patientId", "decisionChoice", "createdBy"}, failedFields(t, d.ValidateOnAdd(user, now, recency)))
	})

	t.Run("creator must be the current user", func(t *testing.T) {
		d := validDecision(id.NewUserID(), now)
		assert.Contains(t, failedFields(t, d.ValidateOnAdd(user, now, recency)), "createdBy")
	})

	t.Run("updatedDate must equal createdDate", func(t *testing.T) {
		d := validDecision(user, now)
		d.UpdatedDate = now.Add(time.Second)
		assert.Contains(t, failedFields(t, d.ValidateOnAdd(user, now, recency)), "updatedDate")
	})

	t.Run("stale stamp outside the recency window", func(t *testing.T) {
		d := validDecision(user, now.Add(-2*time.Minute))
		assert.Contains(t, failedFields(t, d.ValidateOnAdd(user, now, recency)), "createdDate")
	})

	t.Run("future stamp rejected", func(t *testing.T) {
		d := validDecision(user, now.Add(time.Minute))
		assert.Contains(t, failedFields(t, d.ValidateOnAdd(user, now, recency)), "createdDate")
	})

	t.Run("responsible person fields are all or none", func(t *testing.T) {
		d := validDecision(user, now)
		d.ResponsiblePersonGivenName = "Jo"
		fields := failedFields(t, d.ValidateOnAdd(user, now, recency))
		assert.Equal(t, []string{"responsiblePersonSurname", "responsiblePersonRelationship"}, fields)

		d.ResponsiblePersonSurname = "Bloggs"
		d.ResponsiblePersonRelationship = "power of attorney"
		assert.NoError(t, d.ValidateOnAdd(user, now, recency))
	})
}

func TestValidateOnModify(t *testing.T) {
	user := id.NewUserID()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)

	prev := validDecision(user, created)

	modified := func() *Decision {
		d := *prev
		d.Choice = ChoiceOptOut
		d.UpdatedBy = user
		d.UpdatedDate = now
		return &d
	}

	t.Run("valid modification passes", func(t *testing.T) {
		assert.NoError(t, modified().ValidateOnModify(prev, user, now, recency))
	})

	t.Run("creation stamps are immutable", func(t *testing.T) {
		d := modified()
		d.CreatedBy = id.NewUserID()
		d.CreatedDate = created.Add(time.Second)
		fields := failedFields(t, d.ValidateOnModify(prev, user, now, recency))
		assert.Contains(t, fields, "createdBy")
		assert.Contains(t, fields, "createdDate")
	})

	t.Run("patient reference is immutable", func(t *testing.T) {
		d := modified()
		d.PatientID = id.NewPatientID()
		assert.Contains(t, failedFields(t, d.ValidateOnModify(prev, user, now, recency)), "patientId")
	})

	t.Run("updatedDate must move forward", func(t *testing.T) {
		d := modified()
		d.UpdatedDate = prev.UpdatedDate
		assert.Contains(t, failedFields(t, d.ValidateOnModify(prev, user, now, recency)), "updatedDate")
	})
}
