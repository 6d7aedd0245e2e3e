package sentinel

import "errors"

// Sentinel errors for infrastructure and state facts. Stores and entity
// methods return these (optionally wrapped) so services can translate them
// into domain errors exactly once at the service boundary.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: insert collided with an existing row (duplicate key)
// - ErrLocked: optimistic-concurrency check failed, retry with fresh state
// - ErrInvalidReference: a referenced entity does not exist
// - ErrExpired: verification code past its expiry
// - ErrAlreadyUsed: verification code already matched/consumed
// - ErrCodeMismatch: submitted code does not equal the stored code
// - ErrRetriesExhausted: failed-attempt budget for the active code spent
// - ErrActiveCodeExists: an unexpired, unmatched code is already issued
// - ErrRateLimited: issuance requested too frequently
// - ErrInvalidState: entity in wrong state for the requested operation
// - ErrUnavailable: dependency temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrLocked           = errors.New("locked")
	ErrInvalidReference = errors.New("invalid reference")
	ErrExpired          = errors.New("expired")
	ErrAlreadyUsed      = errors.New("already used")
	ErrCodeMismatch     = errors.New("code mismatch")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrActiveCodeExists = errors.New("active code exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnavailable      = errors.New("unavailable")
)
