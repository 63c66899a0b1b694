package mondo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Cursor iterates a result set. When the server parked the remainder of
// the result behind a cursor ID, Next fetches further batches through
// getMore transparently.
type Cursor struct {
	mu      sync.Mutex
	client  *Client
	batch   []any
	index   int
	id      int64
	closed  bool
	err     error
	current []byte
}

// cursorFromResult builds a cursor from a find/aggregate result, which is
// either a bare document array or a cursor envelope
// {firstBatch, cursorId, ns}.
func cursorFromResult(client *Client, result any) (*Cursor, error) {
	switch r := result.(type) {
	case []any:
		return &Cursor{client: client, batch: r, index: -1}, nil
	case map[string]any:
		batch, ok := r["firstBatch"].([]any)
		if !ok {
			return nil, fmt.Errorf("mondo: malformed cursor envelope")
		}
		id := int64(0)
		if v, ok := r["cursorId"].(float64); ok {
			id = int64(v)
		}
		return &Cursor{client: client, batch: batch, index: -1, id: id}, nil
	case nil:
		return &Cursor{client: client, index: -1}, nil
	default:
		return nil, fmt.Errorf("mondo: unexpected result type %T", result)
	}
}

// Next advances to the next document, fetching the next server batch when
// the current one is exhausted. Returns false at the end of the result set
// or on error; check Err afterwards.
func (c *Cursor) Next(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.closed {
		c.err = ErrCursorClosed
		return false
	}
	if c.err != nil {
		return false
	}

	c.index++
	for c.index >= len(c.batch) {
		if c.id == 0 {
			return false
		}
		if !c.fetchMore(ctx) {
			return false
		}
	}

	data, err := json.Marshal(c.batch[c.index])
	if err != nil {
		c.err = err
		return false
	}
	c.current = data
	return true
}

// fetchMore replaces the batch via getMore. Caller holds the lock.
func (c *Cursor) fetchMore(ctx context.Context) bool {
	result, err := c.client.call(ctx, "mongo.getMore", c.id)
	if err != nil {
		c.err = err
		return false
	}
	env, ok := result.(map[string]any)
	if !ok {
		c.err = fmt.Errorf("mondo: malformed getMore result %T", result)
		return false
	}
	batch, _ := env["nextBatch"].([]any)
	c.batch = batch
	c.index = 0
	c.id = 0
	if v, ok := env["cursorId"].(float64); ok {
		c.id = int64(v)
	}
	return len(batch) > 0
}

// TryNext attempts to advance without blocking.
func (c *Cursor) TryNext(ctx context.Context) bool {
	return c.Next(ctx)
}

// Decode decodes the current document into val.
func (c *Cursor) Decode(val any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCursorClosed
	}
	if c.err != nil {
		return c.err
	}
	if c.current == nil {
		return ErrInvalidCursor
	}
	return json.Unmarshal(c.current, val)
}

// Current returns the current document as raw JSON bytes.
func (c *Cursor) Current() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// All decodes every remaining document into the provided slice pointer and
// exhausts the cursor, draining server batches when present.
func (c *Cursor) All(ctx context.Context, results any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return ErrCursorClosed
	}
	if c.err != nil {
		return c.err
	}

	remaining := c.batch
	if c.index >= 0 {
		remaining = c.batch[min(c.index+1, len(c.batch)):]
	}
	remaining = append([]any(nil), remaining...)
	for c.id != 0 {
		if !c.fetchMore(ctx) {
			if c.err != nil {
				return c.err
			}
			break
		}
		remaining = append(remaining, c.batch...)
	}

	data, err := json.Marshal(remaining)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, results); err != nil {
		return err
	}
	c.batch = nil
	c.index = 0
	return nil
}

// ID returns the server-side cursor ID, 0 when the result fit one batch.
func (c *Cursor) ID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// RemainingBatchLength returns the number of documents left in the current
// batch.
func (c *Cursor) RemainingBatchLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return len(c.batch)
	}
	if c.index >= len(c.batch) {
		return 0
	}
	return len(c.batch) - c.index - 1
}

// Err returns any error seen during iteration.
func (c *Cursor) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close releases the cursor, killing the server-side remainder if any.
func (c *Cursor) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.id != 0 {
		_, _ = c.client.call(ctx, "mongo.killCursors", []any{c.id})
		c.id = 0
	}
	c.batch = nil
	c.current = nil
	return nil
}

// SingleResult holds the outcome of a single-document operation.
type SingleResult struct {
	err  error
	data []byte
}

func newSingleResult(doc any) *SingleResult {
	if doc == nil {
		return &SingleResult{err: ErrNoDocuments}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return &SingleResult{err: err}
	}
	return &SingleResult{data: data}
}

func newSingleResultError(err error) *SingleResult {
	return &SingleResult{err: err}
}

// Decode decodes the document into val.
func (sr *SingleResult) Decode(val any) error {
	if sr.err != nil {
		return sr.err
	}
	if sr.data == nil {
		return ErrNoDocuments
	}
	return json.Unmarshal(sr.data, val)
}

// Raw returns the raw document bytes.
func (sr *SingleResult) Raw() ([]byte, error) {
	if sr.err != nil {
		return nil, sr.err
	}
	return sr.data, nil
}

// Err returns any error from the operation.
func (sr *SingleResult) Err() error {
	return sr.err
}
