package mondo

import (
	"context"
	"fmt"

	"github.com/mondo-io/mondo/internal/backend"
	"github.com/mondo-io/mondo/internal/engine/value"
)

// MockTransport runs calls against an in-process backend. It shares the
// dispatch table with the HTTP server, so tests and embedded users see the
// same semantics the wire exposes, without a network.
type MockTransport struct {
	backend *backend.Backend
}

// NewMockTransport creates an in-process transport over a fresh store.
func NewMockTransport() (*MockTransport, error) {
	be, err := backend.New(backend.Options{})
	if err != nil {
		return nil, fmt.Errorf("mondo: create mock backend: %w", err)
	}
	return &MockTransport{backend: be}, nil
}

// NewMockTransportWithBackend wraps an existing backend, for servers that
// embed the store and want SDK-level access to it.
func NewMockTransportWithBackend(be *backend.Backend) *MockTransport {
	return &MockTransport{backend: be}
}

// Call dispatches the method in-process.
func (t *MockTransport) Call(ctx context.Context, method string, args ...any) (any, error) {
	params := make([]value.Value, len(args))
	for i, a := range args {
		v, err := value.FromNative(a)
		if err != nil {
			return nil, &CommandError{Code: backend.CodeBadValue, Message: err.Error()}
		}
		params[i] = v
	}
	result, err := t.backend.Invoke(ctx, method, params)
	if err != nil {
		be := backend.AsError(err)
		return nil, &CommandError{Code: be.Code, Message: be.Message}
	}
	return result.ToNative(), nil
}

// Close is a no-op for the in-process transport.
func (t *MockTransport) Close() error { return nil }
