// Package fault defines the error taxonomy shared by every Haru core
// operation. Each sentinel maps to exactly one failure kind so callers can
// branch with errors.Is without parsing message text, and the transport
// layer can map each kind to a distinct status.
package fault

import "errors"

// ErrNotFound is returned when a session or diary entry id is unknown.
var ErrNotFound = errors.New("haru: not found")

// ErrForbidden is returned when the calling user does not own the session
// or entry the operation targets.
var ErrForbidden = errors.New("haru: forbidden")

// ErrInvalidInput is returned for malformed input: a future diary date, an
// empty edited summary, an out-of-range image index, an unknown style.
var ErrInvalidInput = errors.New("haru: invalid input")

// ErrQuotaExceeded is returned when an entry already holds the maximum
// number of generated images or audio tracks. The check happens before any
// generation collaborator is invoked.
var ErrQuotaExceeded = errors.New("haru: quota exceeded")

// ErrGenerationUnavailable is returned when a collaborator (language model,
// image generator, audio generator) fails or reports it cannot serve the
// request. Core state committed before the failed call is preserved.
var ErrGenerationUnavailable = errors.New("haru: generation unavailable")

// ErrGenerationTimeout is returned when a collaborator call exceeds its
// configured deadline.
var ErrGenerationTimeout = errors.New("haru: generation timeout")

// ErrConflict is returned when a diary date already holds the maximum of
// two saved entries for the user.
var ErrConflict = errors.New("haru: conflict")
