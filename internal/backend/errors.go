package backend

import (
	"errors"
	"fmt"

	"github.com/mondo-io/mondo/internal/cursor"
	"github.com/mondo-io/mondo/internal/schema"
	"github.com/mondo-io/mondo/internal/store"
)

// Error code values follow the MongoDB server error numbers clients already
// know how to interpret.
const (
	CodeBadValue           = 2
	CodeNamespaceNotFound  = 26
	CodeIndexNotFound      = 27
	CodeCursorNotFound     = 43
	CodeNamespaceExists    = 48
	CodeCommandNotFound    = 59
	CodeDocumentValidation = 121
	CodeInternal           = 8
)

// Error is a dispatch failure carried to the wire as a JSON-RPC error
// object.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("(%d) %s", e.Code, e.Message)
}

// NewError builds a coded dispatch error.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError maps any error to its wire representation, classifying the
// store/schema/cursor sentinels onto their MongoDB error codes.
func AsError(err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	code := CodeInternal
	switch {
	case errors.Is(err, store.ErrNamespaceExists):
		code = CodeNamespaceExists
	case errors.Is(err, store.ErrNamespaceNotFound):
		code = CodeNamespaceNotFound
	case errors.Is(err, store.ErrIndexNotFound):
		code = CodeIndexNotFound
	case errors.Is(err, cursor.ErrCursorNotFound):
		code = CodeCursorNotFound
	case errors.Is(err, schema.ErrDocumentValidation):
		code = CodeDocumentValidation
	case errors.Is(err, schema.ErrInvalidSchema):
		code = CodeBadValue
	}
	return &Error{Code: code, Message: err.Error()}
}
