// Package domain provides typed identifiers shared across features.
//
// Every entity reference in the system is a distinct UUID-backed type so that
// a DecisionID can never be passed where a PatientID is expected. Parsing
// happens once at trust boundaries (handlers, stores); everything inside the
// services works with the typed values.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// PatientID identifies a patient record.
type PatientID struct{ uuid.UUID }

// DecisionID identifies a recorded consent decision.
type DecisionID struct{ uuid.UUID }

// DecisionTypeID identifies a decision classification.
type DecisionTypeID struct{ uuid.UUID }

// ConsumerID identifies a downstream consumer system.
type ConsumerID struct{ uuid.UUID }

// UserID identifies an authenticated caller (citizen or staff).
type UserID struct{ uuid.UUID }

// AdoptionID identifies one consumer's adoption of one decision.
type AdoptionID struct{ uuid.UUID }

// NewPatientID returns a fresh random PatientID.
func NewPatientID() PatientID { return PatientID{uuid.New()} }

// NewDecisionID returns a fresh random DecisionID.
func NewDecisionID() DecisionID { return DecisionID{uuid.New()} }

// NewDecisionTypeID returns a fresh random DecisionTypeID.
func NewDecisionTypeID() DecisionTypeID { return DecisionTypeID{uuid.New()} }

// NewConsumerID returns a fresh random ConsumerID.
func NewConsumerID() ConsumerID { return ConsumerID{uuid.New()} }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID{uuid.New()} }

// NewAdoptionID returns a fresh random AdoptionID.
func NewAdoptionID() AdoptionID { return AdoptionID{uuid.New()} }

// IsNil reports whether the ID is the zero UUID.
func (id PatientID) IsNil() bool      { return id.UUID == uuid.Nil }
func (id DecisionID) IsNil() bool     { return id.UUID == uuid.Nil }
func (id DecisionTypeID) IsNil() bool { return id.UUID == uuid.Nil }
func (id ConsumerID) IsNil() bool     { return id.UUID == uuid.Nil }
func (id UserID) IsNil() bool         { return id.UUID == uuid.Nil }
func (id AdoptionID) IsNil() bool     { return id.UUID == uuid.Nil }

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%s must not be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", kind, err)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must not be the nil UUID", kind)
	}
	return u, nil
}

// ParsePatientID validates and returns a PatientID.
func ParsePatientID(s string) (PatientID, error) {
	u, err := parseUUID("patient id", s)
	return PatientID{u}, err
}

// ParseDecisionID validates and returns a DecisionID.
func ParseDecisionID(s string) (DecisionID, error) {
	u, err := parseUUID("decision id", s)
	return DecisionID{u}, err
}

// ParseDecisionTypeID validates and returns a DecisionTypeID.
func ParseDecisionTypeID(s string) (DecisionTypeID, error) {
	u, err := parseUUID("decision type id", s)
	return DecisionTypeID{u}, err
}

// ParseConsumerID validates and returns a ConsumerID.
func ParseConsumerID(s string) (ConsumerID, error) {
	u, err := parseUUID("consumer id", s)
	return ConsumerID{u}, err
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID{u}, err
}

// ParseAdoptionID validates and returns an AdoptionID.
func ParseAdoptionID(s string) (AdoptionID, error) {
	u, err := parseUUID("adoption id", s)
	return AdoptionID{u}, err
}
