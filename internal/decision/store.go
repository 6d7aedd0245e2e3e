package decision

import (
	"context"
	"time"

	id "idecide/pkg/domain"
)

// Filter narrows a decision listing.
type Filter struct {
	From           *time.Time
	DecisionTypeID *id.DecisionTypeID
}

// Store persists decisions.
//
// Implementations return sentinel.ErrNotFound for missing rows,
// sentinel.ErrConflict for duplicate ids, sentinel.ErrInvalidReference when
// the patient or decision type does not exist, and sentinel.ErrLocked for
// version mismatches on update.
type Store interface {
	Insert(ctx context.Context, d *Decision) error
	FindByID(ctx context.Context, decisionID id.DecisionID) (*Decision, error)
	Update(ctx context.Context, d *Decision) error
	ListByPatient(ctx context.Context, patientID id.PatientID) ([]Decision, error)
	List(ctx context.Context, f Filter) ([]Decision, error)
}
