// Package notification defines the contract to the external mail/SMS/letter
// provider. The core only ever calls "send" and gets back a correlation id or
// an error; template selection and channel routing belong to the provider.
package notification

import (
	"context"

	"idecide/internal/patient"
)

// Info is the ephemeral composition passed to the provider. It is never
// persisted; the patient copy inside is already redacted where needed by the
// caller.
type Info struct {
	Patient        patient.Patient
	Code           string
	DecisionID     string
	DecisionType   string
	DecisionChoice string
	ConsumerName   string
}

// Sender dispatches notifications.
//
// SendCodeNotification delivers a verification code over the patient's
// preferred channel. SendSubscriberUsageNotification tells a patient that a
// consumer system ingested their decision. Both return the provider's
// correlation id.
type Sender interface {
	SendCodeNotification(ctx context.Context, info Info) (string, error)
	SendSubscriberUsageNotification(ctx context.Context, info Info) (string, error)
}
