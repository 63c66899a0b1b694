// Package cursor parks oversized result sets server-side and pages them out
// through getMore. Cursors live in a bounded LRU; eviction or expiry reads
// as CursorNotFound, which is exactly how clients are told to treat stale
// cursor IDs.
package cursor

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mondo-io/mondo/internal/engine/value"
)

// DefaultBatchSize applies when neither the call nor the registry names a
// batch size.
const DefaultBatchSize = 101

// ErrCursorNotFound is returned by GetMore for an unknown, killed, or
// evicted cursor ID.
var ErrCursorNotFound = errors.New("cursor not found")

type cursor struct {
	mu        sync.Mutex
	namespace string
	remaining []*value.Document
}

// Registry holds open cursors, bounded by capacity.
type Registry struct {
	cursors   *lru.Cache[int64, *cursor]
	batchSize int
}

// NewRegistry builds a registry holding at most capacity open cursors.
// batchSize sets the batch size for calls that do not name one; zero or
// negative falls back to DefaultBatchSize.
func NewRegistry(capacity, batchSize int) (*Registry, error) {
	c, err := lru.New[int64, *cursor](capacity)
	if err != nil {
		return nil, fmt.Errorf("create cursor registry: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Registry{cursors: c, batchSize: batchSize}, nil
}

// Open hands out the first batch of docs. When everything fits in one batch
// the cursor ID is 0 and nothing is registered; otherwise the remainder is
// parked under a fresh ID.
func (r *Registry) Open(namespace string, docs []*value.Document, batchSize int) ([]*value.Document, int64) {
	if batchSize <= 0 {
		batchSize = r.batchSize
	}
	if len(docs) <= batchSize {
		return docs, 0
	}
	id := newCursorID()
	r.cursors.Add(id, &cursor{
		namespace: namespace,
		remaining: docs[batchSize:],
	})
	return docs[:batchSize], id
}

// GetMore returns the next batch. The returned ID is the same cursor ID
// while more batches remain, and 0 once the cursor is drained and removed.
func (r *Registry) GetMore(id int64, batchSize int) ([]*value.Document, int64, error) {
	if batchSize <= 0 {
		batchSize = r.batchSize
	}
	cur, ok := r.cursors.Get(id)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %d", ErrCursorNotFound, id)
	}
	cur.mu.Lock()
	defer cur.mu.Unlock()
	batch := cur.remaining
	if len(batch) > batchSize {
		batch = batch[:batchSize]
		cur.remaining = cur.remaining[batchSize:]
		return batch, id, nil
	}
	cur.remaining = nil
	r.cursors.Remove(id)
	return batch, 0, nil
}

// Namespace reports the namespace a live cursor was opened against.
func (r *Registry) Namespace(id int64) (string, bool) {
	cur, ok := r.cursors.Peek(id)
	if !ok {
		return "", false
	}
	return cur.namespace, true
}

// Kill removes the given cursors, returning the IDs that were actually
// open. Unknown IDs are ignored.
func (r *Registry) Kill(ids []int64) []int64 {
	var killed []int64
	for _, id := range ids {
		if r.cursors.Remove(id) {
			killed = append(killed, id)
		}
	}
	return killed
}

// Len reports how many cursors are currently open.
func (r *Registry) Len() int {
	return r.cursors.Len()
}

// newCursorID draws a random positive ID. IDs stay within 53 bits so they
// survive a round trip through JSON numbers; collisions across the
// lifetime of a registry are not a practical concern at this keyspace.
func newCursorID() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("cursor id entropy: %v", err))
	}
	id := int64(binary.BigEndian.Uint64(b[:]) >> 11)
	if id == 0 {
		id = 1
	}
	return id
}
