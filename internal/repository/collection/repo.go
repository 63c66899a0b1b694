// Package collection persists collection snapshots to the KV store. The
// in-memory store stays the source of truth while the process runs; the
// repository write-throughs snapshots after mutations and hydrates them
// back on startup.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mondo-io/mondo/internal/engine/value"
)

// store is the consumer interface for snapshot persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo implements backend.Persister over a KV store.
type Repo struct {
	store  store
	prefix string
}

// New creates a snapshot repository. prefix namespaces the keys, e.g.
// "mondo:ns:".
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = "mondo:ns:"
	}
	return &Repo{store: s, prefix: prefix}
}

func (r *Repo) key(namespace string) string {
	return r.prefix + namespace
}

// Save stores the collection snapshot as a JSON array of documents.
func (r *Repo) Save(ctx context.Context, namespace string, docs []*value.Document) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", namespace, err)
	}
	if err := r.store.Set(ctx, r.key(namespace), data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", namespace, err)
	}
	return nil
}

// Load retrieves one collection snapshot. A missing key returns
// db.ErrKeyNotFound.
func (r *Repo) Load(ctx context.Context, namespace string) ([]*value.Document, error) {
	data, err := r.store.Get(ctx, r.key(namespace))
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", namespace, err)
	}
	var docs []*value.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", namespace, err)
	}
	return docs, nil
}

// Delete removes a collection snapshot.
func (r *Repo) Delete(ctx context.Context, namespace string) error {
	if err := r.store.Del(ctx, r.key(namespace)); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", namespace, err)
	}
	return nil
}

// List returns the namespaces with stored snapshots.
func (r *Repo) List(ctx context.Context) ([]string, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	namespaces := make([]string, 0, len(keys))
	for _, key := range keys {
		namespaces = append(namespaces, strings.TrimPrefix(key, r.prefix))
	}
	return namespaces, nil
}
