package decisiontype

import (
	"context"

	id "idecide/pkg/domain"
)

// Store persists decision types.
//
// Implementations return sentinel.ErrNotFound for missing rows,
// sentinel.ErrConflict for duplicate names and sentinel.ErrLocked for
// version mismatches on update.
type Store interface {
	Insert(ctx context.Context, d *DecisionType) error
	FindByID(ctx context.Context, typeID id.DecisionTypeID) (*DecisionType, error)
	Update(ctx context.Context, d *DecisionType) error
	Delete(ctx context.Context, typeID id.DecisionTypeID) error
	List(ctx context.Context) ([]DecisionType, error)
}
