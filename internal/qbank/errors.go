package qbank

import "errors"

// Error taxonomy. Handlers map these to stable user-facing responses; anything
// else is a storage failure surfaced generically and logged server-side.
var (
	// ErrNotFound: the referenced question or resource does not exist or is
	// not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrExpired: the session is absent, foreign, or past its TTL. Callers
	// should restart session discovery rather than treat this as corruption.
	ErrExpired = errors.New("session expired")

	// ErrInvalidInput: index out of range or malformed filter; rejected
	// before any mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoMatch: the filter produced zero candidate questions. A normal
	// outcome, not a fault; the user should broaden their criteria.
	ErrNoMatch = errors.New("no questions match criteria")

	// ErrAlreadyAnswered: a second submission for a question already answered
	// in the same session. Rejected so ledger rows and selection counters are
	// never double-counted.
	ErrAlreadyAnswered = errors.New("question already answered in this session")

	// ErrConflict: the session row changed between read and write. The caller
	// must re-read and reapply; the engine retries this internally.
	ErrConflict = errors.New("session modified concurrently")
)
