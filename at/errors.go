package at

import "errors"

var (
	// ErrTimeout is returned when no complete response arrives within
	// the caller's deadline.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrOverflow is returned when the modem keeps talking without ever
	// producing a final response, exhausting the line or byte budget of
	// the read buffer.
	ErrOverflow = errors.New("no complete response within buffer limits")

	// ErrShortWrite is returned when a command could not be transmitted
	// in full.
	ErrShortWrite = errors.New("short write to modem")
)
