// Package store implements the in-memory document store the RPC backend
// and the mock transport run against. Collections hold ordered document
// slices; each collection is guarded by its own mutex, so single-call
// multi-document operations (updateMany, deleteMany) are atomic with
// respect to concurrent calls.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mondo-io/mondo/internal/engine/value"
)

var (
	// ErrNamespaceExists is returned by CreateCollection for a name that
	// already exists in the database.
	ErrNamespaceExists = errors.New("namespace already exists")
	// ErrNamespaceNotFound is returned when an explicit collection operation
	// targets a collection that was never created or written.
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrIndexNotFound is returned by DropIndex for an unknown index name.
	ErrIndexNotFound = errors.New("index not found")
)

// Validator checks a document before it is inserted or replaced.
// Implemented by the schema package; kept as an interface so the store has
// no opinion on how validation rules are expressed.
type Validator interface {
	Validate(doc *value.Document) error
}

// Store is the catalog of databases and collections.
type Store struct {
	mu    sync.RWMutex
	colls map[string]*Collection // keyed by "db.collection"
}

// New returns an empty store.
func New() *Store {
	return &Store{colls: make(map[string]*Collection)}
}

func nsKey(db, coll string) string {
	return db + "." + coll
}

// Collection returns the named collection, creating it implicitly on first
// use. Implicit creation mirrors the write-path behavior: inserting into an
// unknown namespace brings it into existence.
func (s *Store) Collection(db, coll string) *Collection {
	key := nsKey(db, coll)

	s.mu.RLock()
	c, ok := s.colls[key]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.colls[key]; ok {
		return c
	}
	c = newCollection()
	s.colls[key] = c
	return c
}

// Lookup returns the named collection without creating it.
func (s *Store) Lookup(db, coll string) (*Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.colls[nsKey(db, coll)]
	return c, ok
}

// CreateCollection creates a collection explicitly, optionally attaching a
// document validator.
func (s *Store) CreateCollection(db, coll string, v Validator) error {
	key := nsKey(db, coll)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.colls[key]; ok {
		return fmt.Errorf("%w: %s", ErrNamespaceExists, key)
	}
	c := newCollection()
	c.validator = v
	s.colls[key] = c
	return nil
}

// DropCollection removes a collection and its contents. Dropping an unknown
// collection is a no-op, matching the drop semantics of the wire protocol.
func (s *Store) DropCollection(db, coll string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.colls, nsKey(db, coll))
}

// DropDatabase removes every collection in the database.
func (s *Store) DropDatabase(db string) {
	prefix := db + "."
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.colls {
		if strings.HasPrefix(key, prefix) {
			delete(s.colls, key)
		}
	}
}

// ListDatabases returns database names in sorted order.
func (s *Store) ListDatabases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for key := range s.colls {
		db, _, _ := strings.Cut(key, ".")
		seen[db] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for db := range seen {
		names = append(names, db)
	}
	sort.Strings(names)
	return names
}

// ListCollections returns the database's collection names in sorted order.
func (s *Store) ListCollections(db string) []string {
	prefix := db + "."
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for key := range s.colls {
		if strings.HasPrefix(key, prefix) {
			names = append(names, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(names)
	return names
}

// Namespaces returns every "db.collection" key in sorted order. Used by the
// persistence layer to enumerate snapshots.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.colls))
	for key := range s.colls {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
