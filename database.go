package mondo

import (
	"context"
	"sync"
)

// Database is a handle to a database.
type Database struct {
	client      *Client
	name        string
	mu          sync.Mutex
	collections map[string]*Collection
}

// Name returns the database name.
func (d *Database) Name() string { return d.name }

// Client returns the owning client.
func (d *Database) Client() *Client { return d.client }

// Collection returns a handle for the named collection.
func (d *Database) Collection(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.collections[name]; ok {
		return c
	}
	c := &Collection{database: d, name: name}
	d.collections[name] = c
	return c
}

// ListCollectionNames returns the database's collection names.
func (d *Database) ListCollectionNames(ctx context.Context) ([]string, error) {
	result, err := d.client.call(ctx, "mongo.listCollections", d.name)
	if err != nil {
		return nil, err
	}
	return stringSlice(result)
}

// CreateCollectionOptions configures CreateCollection.
type CreateCollectionOptions struct {
	// Validator is a {"$jsonSchema": ...} document enforced on writes.
	Validator M
}

// SetValidator sets the collection validator.
func (o *CreateCollectionOptions) SetValidator(v M) *CreateCollectionOptions {
	o.Validator = v
	return o
}

// CreateCollection creates a collection explicitly, optionally with a
// validator.
func (d *Database) CreateCollection(ctx context.Context, name string, opts ...*CreateCollectionOptions) error {
	options := M{}
	for _, opt := range opts {
		if opt != nil && opt.Validator != nil {
			options["validator"] = opt.Validator
		}
	}
	_, err := d.client.call(ctx, "mongo.createCollection", d.name, name, options)
	return err
}

// Drop drops the database and all its collections.
func (d *Database) Drop(ctx context.Context) error {
	_, err := d.client.call(ctx, "mongo.dropDatabase", d.name)
	return err
}

// RunCommand runs a database command document.
func (d *Database) RunCommand(ctx context.Context, command any) *SingleResult {
	if command == nil {
		return newSingleResultError(ErrNilDocument)
	}
	result, err := d.client.call(ctx, "mongo.runCommand", d.name, command)
	if err != nil {
		return newSingleResultError(err)
	}
	return newSingleResult(result)
}

// Aggregate runs a database-level aggregation pipeline.
func (d *Database) Aggregate(ctx context.Context, pipeline any) (*Cursor, error) {
	result, err := d.client.call(ctx, "mongo.aggregate", d.name, "", pipeline)
	if err != nil {
		return nil, err
	}
	return cursorFromResult(d.client, result)
}
