package pitch

import "errors"

// Error taxonomy shared by the engine, the generator adapters, the stores and
// the transport layers. Callers match with errors.Is.
var (
	// ErrInvalidInput is returned for empty or malformed user input. Nothing is mutated.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionTerminal is returned when a turn is submitted to a won or lost session.
	ErrSessionTerminal = errors.New("session has already ended")
	// ErrPersonaNotFound is returned when a persona reference does not resolve.
	ErrPersonaNotFound = errors.New("persona not found")
	// ErrNotFound is returned when a session id does not resolve.
	ErrNotFound = errors.New("session not found")
	// ErrGeneratorUnavailable covers network, auth and timeout failures of a
	// response generator backend. Retryable; the session is left unmodified.
	ErrGeneratorUnavailable = errors.New("response generator unavailable")
	// ErrGeneratorMalformedOutput names the degraded path. It is recorded on
	// parse results and logged, never returned to engine callers.
	ErrGeneratorMalformedOutput = errors.New("response generator returned malformed output")
	// ErrConflict is returned when a session changed between read and write.
	// The caller must refetch and retry.
	ErrConflict = errors.New("session was modified concurrently")
	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("persistence failure")
)
