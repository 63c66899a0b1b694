package mondo

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Client is a handle to a mondo deployment.
type Client struct {
	mu        sync.RWMutex
	transport Transport
	uri       string
	connected bool
	databases map[string]*Database
}

// ClientOptions configures a client.
type ClientOptions struct {
	APIKey  string
	Timeout time.Duration
}

// SetAPIKey sets the bearer token sent with every request.
func (o *ClientOptions) SetAPIKey(key string) *ClientOptions {
	o.APIKey = key
	return o
}

// SetTimeout sets the per-request timeout.
func (o *ClientOptions) SetTimeout(d time.Duration) *ClientOptions {
	o.Timeout = d
	return o
}

// Connect creates a client against the server at uri. http and https URIs
// are used as-is; mondo:// maps onto http://.
func Connect(ctx context.Context, uri string, opts ...*ClientOptions) (*Client, error) {
	if uri == "" {
		return nil, ErrInvalidURI
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	switch parsed.Scheme {
	case "http", "https":
	case "mondo":
		parsed.Scheme = "http"
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %s", ErrInvalidURI, parsed.Scheme)
	}

	var options ClientOptions
	for _, opt := range opts {
		if opt != nil {
			if opt.APIKey != "" {
				options.APIKey = opt.APIKey
			}
			if opt.Timeout > 0 {
				options.Timeout = opt.Timeout
			}
		}
	}

	transport := NewHTTPTransport(parsed.String(), HTTPTransportOptions{
		APIKey:  options.APIKey,
		Timeout: options.Timeout,
	})
	c := NewClientWithTransport(transport)
	c.uri = uri

	if err := c.Ping(ctx); err != nil {
		_ = transport.Close()
		return nil, err
	}
	return c, nil
}

// NewClientWithTransport creates a client over a custom transport, e.g. a
// MockTransport.
func NewClientWithTransport(t Transport) *Client {
	return &Client{
		transport: t,
		connected: true,
		databases: make(map[string]*Database),
	}
}

// call guards the connected state around a transport call.
func (c *Client) call(ctx context.Context, method string, args ...any) (any, error) {
	c.mu.RLock()
	connected := c.connected
	transport := c.transport
	c.mu.RUnlock()
	if !connected {
		return nil, ErrClientDisconnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return transport.Call(ctx, method, args...)
}

// Call sends a raw RPC method call through the client's transport. Most
// callers want the Database/Collection handles instead; this is the escape
// hatch for tooling such as mondosh.
func (c *Client) Call(ctx context.Context, method string, args ...any) (any, error) {
	return c.call(ctx, method, args...)
}

// Disconnect closes the underlying transport.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.transport.Close()
}

// Database returns a handle for the named database.
func (c *Client) Database(name string) *Database {
	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.databases[name]; ok {
		return db
	}
	db := &Database{client: c, name: name, collections: make(map[string]*Collection)}
	c.databases[name] = db
	return db
}

// ListDatabaseNames returns the names of all databases.
func (c *Client) ListDatabaseNames(ctx context.Context) ([]string, error) {
	result, err := c.call(ctx, "mongo.listDatabases")
	if err != nil {
		return nil, err
	}
	return stringSlice(result)
}

// Ping verifies the connection to the server.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "mongo.ping")
	return err
}

func stringSlice(result any) ([]string, error) {
	items, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("mondo: unexpected result type %T", result)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
