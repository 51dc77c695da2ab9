package workflow

import "errors"

// Common errors
var (
	// ErrSessionNotFound reports an unknown session identifier.
	ErrSessionNotFound = errors.New("signing session not found")

	// ErrFieldNotFound reports a field index outside the session's
	// field array.
	ErrFieldNotFound = errors.New("field not found in session")

	// ErrAlreadySigned reports an attempt to fill a field that has
	// already been burned into the document.
	ErrAlreadySigned = errors.New("field is already signed")

	// ErrStaticField reports an attempt to fill a static label.
	ErrStaticField = errors.New("static fields cannot be filled")

	// ErrNotYourTurn reports a fill for a step other than the one the
	// session is currently waiting on.
	ErrNotYourTurn = errors.New("step is not currently active")

	// ErrWrongStep reports a fill addressed to a field outside the
	// step the caller's link was issued for.
	ErrWrongStep = errors.New("field does not belong to this step")

	// ErrFinalized reports any mutation attempted after finalization.
	ErrFinalized = errors.New("session is finalized")
)
