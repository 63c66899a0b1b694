package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mondo-io/mondo/internal/engine/value"
)

// Index is registered metadata only. Nothing in the store consults indexes
// when matching; they exist so createIndex/listIndexes round-trip the way
// clients expect.
type Index struct {
	Name   string
	Keys   *value.Document
	Unique bool
}

// CreateIndex registers an index over the given key specification and
// returns its name. A spec without a name gets the conventional
// "field_direction" compound name. Re-creating an existing name replaces
// its definition.
func (c *Collection) CreateIndex(keys *value.Document, name string, unique bool) string {
	if name == "" {
		name = indexName(keys)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.indexes {
		if c.indexes[i].Name == name {
			c.indexes[i] = Index{Name: name, Keys: keys.Clone(), Unique: unique}
			return name
		}
	}
	c.indexes = append(c.indexes, Index{Name: name, Keys: keys.Clone(), Unique: unique})
	return name
}

// DropIndex removes the named index.
func (c *Collection) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.indexes {
		if c.indexes[i].Name == name {
			c.indexes = append(c.indexes[:i], c.indexes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
}

// ListIndexes returns the registered indexes, always including the implicit
// _id index first.
func (c *Collection) ListIndexes() []Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	idKeys := value.NewDocument()
	idKeys.Set("_id", value.Int(1))
	out := []Index{{Name: "_id_", Keys: idKeys, Unique: true}}
	for _, idx := range c.indexes {
		out = append(out, Index{Name: idx.Name, Keys: idx.Keys.Clone(), Unique: idx.Unique})
	}
	return out
}

func indexName(keys *value.Document) string {
	parts := make([]string, 0, keys.Len())
	for _, field := range keys.Keys() {
		dir, _ := keys.Get(field)
		n := int64(1)
		if dir.Kind() == value.KindNumber {
			n = int64(dir.NumberVal())
		}
		parts = append(parts, field+"_"+strconv.FormatInt(n, 10))
	}
	return strings.Join(parts, "_")
}
