package audit

import (
	"time"

	id "idecide/pkg/domain"
)

// Actions recorded on the consent trail.
const (
	ActionCodeIssued       = "code_issued"
	ActionCodeMatched      = "code_matched"
	ActionCodeRejected     = "code_rejected"
	ActionRetriesExhausted = "code_retries_exhausted"
	ActionDecisionRecorded = "decision_recorded"
	ActionDecisionModified = "decision_modified"
	ActionDecisionsAdopted = "decisions_adopted"
	ActionAdminAccess      = "admin_access"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Action    string       `json:"action"`
	PatientID id.PatientID `json:"patientId,omitempty"`
	ActorID   string       `json:"actorId,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	RequestID string       `json:"requestId,omitempty"`
	ClientIP  string       `json:"clientIp,omitempty"`
	UserAgent string       `json:"userAgent,omitempty"`
}
