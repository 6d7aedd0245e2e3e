package adoption

import (
	"context"

	id "idecide/pkg/domain"
)

// Store persists consumer adoptions.
//
// BulkUpsert inserts every row that is not already present and skips
// duplicates of the (consumer, decision) pair, returning the rows actually
// inserted. When at least one duplicate was skipped the returned error wraps
// sentinel.ErrConflict; the inserted rows stay persisted regardless, so one
// bad row never aborts the batch.
type Store interface {
	BulkUpsert(ctx context.Context, rows []ConsumerAdoption) ([]ConsumerAdoption, error)
	ListByConsumer(ctx context.Context, consumerID id.ConsumerID) ([]ConsumerAdoption, error)
}
