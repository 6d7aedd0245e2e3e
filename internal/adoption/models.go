// Package adoption distributes recorded decisions to subscribing consumer
// systems. Each consumer acknowledges a decision exactly once; the adoption
// row is the receipt.
package adoption

import (
	"time"

	id "idecide/pkg/domain"
)

// ConsumerAdoption records that a consumer has ingested one decision. At
// most one row per (consumer, decision) pair is meaningful; the stores
// enforce that as a uniqueness constraint.
type ConsumerAdoption struct {
	ID           id.AdoptionID
	ConsumerID   id.ConsumerID
	DecisionID   id.DecisionID
	AdoptionDate time.Time
}
