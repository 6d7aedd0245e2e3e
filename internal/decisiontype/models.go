// Package decisiontype manages the catalogue of decision classifications
// (for example "data sharing") that recorded decisions reference by id.
package decisiontype

import (
	"time"

	id "idecide/pkg/domain"
	"idecide/pkg/validate"
)

// DecisionType classifies decisions. Rows are reference data managed by
// administrative staff.
type DecisionType struct {
	ID          id.DecisionTypeID
	Name        string
	Description string

	CreatedBy   id.UserID
	CreatedDate time.Time
	UpdatedBy   id.UserID
	UpdatedDate time.Time
	Version     int
}

const maxNameLen = 120

// Validate checks the fields staff control.
func (d *DecisionType) Validate() error {
	return validate.Evaluate("decision type is invalid",
		validate.NotEmpty("name", d.Name),
		validate.MaxLen("name", d.Name, maxNameLen),
		validate.MaxLen("description", d.Description, 500),
	)
}
