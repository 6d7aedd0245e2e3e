// Package decision records and maintains patient consent decisions. A
// decision is only ever created through the recording workflow, after the
// patient has proven their identity with a verification code or an NHS login.
package decision

import (
	"time"

	id "idecide/pkg/domain"
	"idecide/pkg/validate"
)

// Choice is the consent outcome a patient records.
type Choice string

const (
	ChoiceOptIn  Choice = "optin"
	ChoiceOptOut Choice = "optout"
)

func (c Choice) Valid() bool {
	return c == ChoiceOptIn || c == ChoiceOptOut
}

// Decision is a patient's recorded consent choice. The responsible-person
// fields are populated only when someone with power of attorney submits on
// the patient's behalf, and then all three must be present.
type Decision struct {
	ID             id.DecisionID
	PatientID      id.PatientID
	DecisionTypeID id.DecisionTypeID
	Choice         Choice

	ResponsiblePersonGivenName    string
	ResponsiblePersonSurname      string
	ResponsiblePersonRelationship string

	CreatedBy   id.UserID
	CreatedDate time.Time
	UpdatedBy   id.UserID
	UpdatedDate time.Time
	Version     int
}

// ByProxy reports whether the decision was submitted on the patient's behalf.
func (d *Decision) ByProxy() bool {
	return d.ResponsiblePersonGivenName != "" ||
		d.ResponsiblePersonSurname != "" ||
		d.ResponsiblePersonRelationship != ""
}

// fieldRules are the checks shared by add and modify.
func (d *Decision) fieldRules() []validate.Rule {
	rules := []validate.Rule{
		validate.Fail("patientId", d.PatientID.IsNil(), "patientId is required"),
		validate.Fail("decisionTypeId", d.DecisionTypeID.IsNil(), "decisionTypeId is required"),
		validate.Fail("decisionChoice", !d.Choice.Valid(), "decisionChoice must be optin or optout"),
	}
	if d.ByProxy() {
		rules = append(rules,
			validate.NotEmpty("responsiblePersonGivenName", d.ResponsiblePersonGivenName),
			validate.NotEmpty("responsiblePersonSurname", d.ResponsiblePersonSurname),
			validate.NotEmpty("responsiblePersonRelationship", d.ResponsiblePersonRelationship),
		)
	}
	return rules
}

// ValidateOnAdd checks a freshly constructed decision. The audit stamps must
// name the current user and sit inside the recency window, a guard against
// replayed or clock-skewed submissions.
func (d *Decision) ValidateOnAdd(currentUser id.UserID, now time.Time, recency time.Duration) error {
	rules := append(d.fieldRules(),
		validate.Fail("createdBy", d.CreatedBy != currentUser, "createdBy must be the current user"),
		validate.Fail("updatedBy", d.UpdatedBy != currentUser, "updatedBy must be the current user"),
		validate.Fail("updatedDate", !d.UpdatedDate.Equal(d.CreatedDate), "updatedDate must equal createdDate on creation"),
		recencyRule("createdDate", d.CreatedDate, now, recency),
	)
	return validate.Evaluate("decision is invalid", rules...)
}

// ValidateOnModify checks an update against the stored decision. Creation
// stamps are immutable and updatedDate must move strictly forward.
func (d *Decision) ValidateOnModify(prev *Decision, currentUser id.UserID, now time.Time, recency time.Duration) error {
	rules := append(d.fieldRules(),
		validate.Fail("patientId", d.PatientID != prev.PatientID, "patientId is immutable"),
		validate.Fail("createdBy", d.CreatedBy != prev.CreatedBy, "createdBy is immutable"),
		validate.Fail("createdDate", !d.CreatedDate.Equal(prev.CreatedDate), "createdDate is immutable"),
		validate.Fail("updatedBy", d.UpdatedBy != currentUser, "updatedBy must be the current user"),
		validate.Fail("updatedDate", !d.UpdatedDate.After(prev.UpdatedDate), "updatedDate must be later than the previous updatedDate"),
		recencyRule("updatedDate", d.UpdatedDate, now, recency),
	)
	return validate.Evaluate("decision is invalid", rules...)
}

// recencyRule rejects stamps older than the window or in the future.
func recencyRule(field string, stamp, now time.Time, recency time.Duration) validate.Rule {
	stale := now.Sub(stamp) > recency || stamp.After(now)
	return validate.Fail(field, stale, field+" must be within the recency window")
}
