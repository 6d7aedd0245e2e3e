package consumer

import (
	"context"

	id "idecide/pkg/domain"
)

// Store persists consumers. Implementations return sentinel.ErrNotFound for
// missing rows, sentinel.ErrConflict for duplicate names and
// sentinel.ErrLocked for version mismatches on update.
type Store interface {
	Insert(ctx context.Context, c *Consumer) error
	FindByID(ctx context.Context, consumerID id.ConsumerID) (*Consumer, error)
	Update(ctx context.Context, c *Consumer) error
	List(ctx context.Context) ([]Consumer, error)
}
