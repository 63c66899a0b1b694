// Package backend dispatches RPC methods onto the document store. The same
// dispatch table serves the HTTP RPC server and the SDK's in-process mock
// transport, so wire clients and embedded tests observe identical
// semantics.
package backend

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mondo-io/mondo/internal/cursor"
	"github.com/mondo-io/mondo/internal/engine/value"
	"github.com/mondo-io/mondo/internal/store"
	"github.com/mondo-io/mondo/internal/version"
)

// Persister write-throughs collection snapshots after mutations.
// Implemented by the repository layer; nil disables persistence.
type Persister interface {
	Save(ctx context.Context, namespace string, docs []*value.Document) error
	Delete(ctx context.Context, namespace string) error
}

type handler func(ctx context.Context, args []value.Value) (value.Value, error)

// Backend owns the store, the cursor registry, and the method table.
type Backend struct {
	store    *store.Store
	cursors  *cursor.Registry
	persist  Persister
	log      *zap.Logger
	handlers map[string]handler
	started  time.Time
}

// Options configures a Backend.
type Options struct {
	Store     *store.Store
	Cursors   *cursor.Registry
	Persister Persister
	Logger    *zap.Logger
}

// New builds a Backend over the given store. A nil cursor registry gets a
// default-capacity one.
func New(opts Options) (*Backend, error) {
	if opts.Store == nil {
		opts.Store = store.New()
	}
	if opts.Cursors == nil {
		reg, err := cursor.NewRegistry(1024, 0)
		if err != nil {
			return nil, err
		}
		opts.Cursors = reg
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	b := &Backend{
		store:   opts.Store,
		cursors: opts.Cursors,
		persist: opts.Persister,
		log:     opts.Logger,
		started: time.Now(),
	}
	b.handlers = map[string]handler{
		"mongo.insertOne":              b.insertOne,
		"mongo.insertMany":             b.insertMany,
		"mongo.find":                   b.find,
		"mongo.findOne":                b.findOne,
		"mongo.updateOne":              b.updateOne,
		"mongo.updateMany":             b.updateMany,
		"mongo.replaceOne":             b.replaceOne,
		"mongo.deleteOne":              b.deleteOne,
		"mongo.deleteMany":             b.deleteMany,
		"mongo.findOneAndUpdate":       b.findOneAndUpdate,
		"mongo.findOneAndDelete":       b.findOneAndDelete,
		"mongo.findOneAndReplace":      b.findOneAndReplace,
		"mongo.countDocuments":         b.countDocuments,
		"mongo.estimatedDocumentCount": b.estimatedDocumentCount,
		"mongo.distinct":               b.distinct,
		"mongo.aggregate":              b.aggregate,
		"mongo.bulkWrite":              b.bulkWrite,
		"mongo.getMore":                b.getMore,
		"mongo.killCursors":            b.killCursors,
		"mongo.createCollection":       b.createCollection,
		"mongo.dropCollection":         b.dropCollection,
		"mongo.dropDatabase":           b.dropDatabase,
		"mongo.listCollections":        b.listCollections,
		"mongo.listDatabases":          b.listDatabases,
		"mongo.createIndex":            b.createIndex,
		"mongo.dropIndex":              b.dropIndex,
		"mongo.listIndexes":            b.listIndexes,
		"mongo.runCommand":             b.runCommand,
		"mongo.ping":                   b.ping,
		"mongo.serverStatus":           b.serverStatus,
	}
	return b, nil
}

// Store exposes the underlying store, used by startup hydration.
func (b *Backend) Store() *store.Store {
	return b.store
}

// Invoke dispatches one RPC method. Unknown methods fail with
// CommandNotFound.
func (b *Backend) Invoke(ctx context.Context, method string, args []value.Value) (value.Value, error) {
	h, ok := b.handlers[method]
	if !ok {
		return value.Value{}, NewError(CodeCommandNotFound, "no such command: %s", method)
	}
	res, err := h(ctx, args)
	if err != nil {
		b.log.Debug("rpc method failed",
			zap.String("method", method),
			zap.Error(err))
		return value.Value{}, err
	}
	return res, nil
}

// Methods returns the sorted dispatchable method names, for serverStatus
// and the shell's help output.
func (b *Backend) Methods() []string {
	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// persistNS write-throughs one collection snapshot after a mutation.
// Persistence failures are logged, not surfaced: the in-memory state is the
// source of truth and the snapshot retries on the next mutation.
func (b *Backend) persistNS(ctx context.Context, db, coll string) {
	if b.persist == nil {
		return
	}
	c, ok := b.store.Lookup(db, coll)
	ns := db + "." + coll
	var err error
	if !ok {
		err = b.persist.Delete(ctx, ns)
	} else {
		err = b.persist.Save(ctx, ns, c.Snapshot())
	}
	if err != nil {
		b.log.Warn("snapshot write-through failed",
			zap.String("namespace", ns),
			zap.Error(err))
	}
}

func (b *Backend) uptime() time.Duration {
	return time.Since(b.started)
}

func serverVersion() string {
	v := version.Version
	if strings.HasPrefix(v, "v") {
		v = v[1:]
	}
	if v == "" {
		v = "0.0.0-dev"
	}
	return v
}
