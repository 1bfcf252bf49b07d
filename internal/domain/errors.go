package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Unknown and inactive affiliation codes also surface as ErrNotFound so the public form cannot probe accounts.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the email or the password failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals a temporary lockout after repeated failed logins.
	ErrAccountLocked   = errors.New("account locked")
	ErrAccountInactive = errors.New("account inactive")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrTokenRevoked    = errors.New("token revoked")
	ErrInvalidInput    = errors.New("invalid input")
	ErrDuplicate       = errors.New("duplicate resource")
	ErrRateLimited     = errors.New("rate limited")
	// ErrInvalidTransition is the parent of every "already finalized" lifecycle error.
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
)

// Lifecycle errors wrap ErrInvalidTransition so callers can match either the
// specific case or the whole family.
var (
	ErrAlreadyConfirmed = &transitionError{msg: "prospect already confirmed"}
	ErrAlreadyRejected  = &transitionError{msg: "prospect already rejected"}
	ErrAlreadyPaid      = &transitionError{msg: "remise already paid"}
)

type transitionError struct {
	msg string
}

func (e *transitionError) Error() string { return e.msg }

func (e *transitionError) Unwrap() error { return ErrInvalidTransition }
