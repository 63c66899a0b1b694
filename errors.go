package mondo

import (
	"errors"
	"fmt"
)

// Standard errors that can be checked with errors.Is.
var (
	// ErrNoDocuments is returned when no documents match the query.
	ErrNoDocuments = errors.New("mondo: no documents in result")

	// ErrClientDisconnected is returned when operations are attempted on a disconnected client.
	ErrClientDisconnected = errors.New("mondo: client is disconnected")

	// ErrNilDocument is returned when a nil document is passed to an operation.
	ErrNilDocument = errors.New("mondo: document is nil")

	// ErrInvalidCursor is returned when cursor operations fail.
	ErrInvalidCursor = errors.New("mondo: invalid cursor")

	// ErrCursorClosed is returned when operations are attempted on a closed cursor.
	ErrCursorClosed = errors.New("mondo: cursor is closed")

	// ErrInvalidURI is returned when the connection URI is invalid.
	ErrInvalidURI = errors.New("mondo: invalid connection URI")
)

// CommandError is an error reported by the server for a command.
type CommandError struct {
	Code    int
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("mondo command error (code %d): %s", e.Code, e.Message)
}

// WriteError is an error from a write operation.
type WriteError struct {
	Index   int
	Code    int
	Message string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("mondo write error at index %d (code %d): %s", e.Index, e.Code, e.Message)
}

// ConnectionError wraps a transport-level failure.
type ConnectionError struct {
	Address string
	Wrapped error
}

func (e *ConnectionError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("mondo connection error to %s: %v", e.Address, e.Wrapped)
	}
	return fmt.Sprintf("mondo connection error to %s", e.Address)
}

func (e *ConnectionError) Unwrap() error { return e.Wrapped }

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
