package patient

import (
	"context"

	id "idecide/pkg/domain"
)

// Store abstracts patient persistence.
//
// Error contract, shared by all implementations:
//   - FindByID / FindByNHSNumber return sentinel.ErrNotFound (wrapped) when
//     nothing matches
//   - Insert returns sentinel.ErrConflict on a duplicate ID or NHS number
//   - Update performs an optimistic-concurrency check on Version and returns
//     sentinel.ErrLocked when the stored version moved; on success the stored
//     Version is incremented
//   - infrastructure failures are wrapped errors carrying context
type Store interface {
	Insert(ctx context.Context, p *Patient) error
	FindByID(ctx context.Context, patientID id.PatientID) (*Patient, error)
	FindByNHSNumber(ctx context.Context, nhsNumber string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, patientID id.PatientID) error
	List(ctx context.Context) ([]*Patient, error)
}
