// Package consumer manages downstream systems that subscribe to recorded
// decisions. Each consumer authenticates with an API secret issued once at
// registration and stored only as a bcrypt hash.
package consumer

import (
	"time"

	id "idecide/pkg/domain"
	"idecide/pkg/validate"
)

// Consumer is a downstream subscriber system.
type Consumer struct {
	ID         id.ConsumerID
	Name       string
	ContactURL string
	SecretHash []byte
	Active     bool

	CreatedBy   id.UserID
	CreatedDate time.Time
	UpdatedBy   id.UserID
	UpdatedDate time.Time
	Version     int
}

// Validate checks the staff-supplied fields.
func (c *Consumer) Validate() error {
	return validate.Evaluate("consumer is invalid",
		validate.NotEmpty("name", c.Name),
		validate.MaxLen("name", c.Name, 120),
		validate.MaxLen("contactUrl", c.ContactURL, 500),
	)
}
