package backend

import (
	"context"
	"strconv"

	"github.com/mondo-io/mondo/internal/engine/value"
	"github.com/mondo-io/mondo/internal/schema"
	"github.com/mondo-io/mondo/internal/store"
)

// Argument helpers. The wire carries positional params; missing or
// mistyped positions fail with BadValue.

func argString(args []value.Value, i int, name string) (string, error) {
	if i >= len(args) || args[i].Kind() != value.KindString {
		return "", NewError(CodeBadValue, "argument %d (%s) must be a string", i, name)
	}
	return args[i].StringVal(), nil
}

func argDoc(args []value.Value, i int, name string) (*value.Document, error) {
	if i >= len(args) || args[i].Kind() != value.KindDocument {
		return nil, NewError(CodeBadValue, "argument %d (%s) must be a document", i, name)
	}
	return args[i].DocVal(), nil
}

// argFilter tolerates an omitted or null filter, treating it as match-all.
func argFilter(args []value.Value, i int) *value.Document {
	if i < len(args) && args[i].Kind() == value.KindDocument {
		return args[i].DocVal()
	}
	return value.NewDocument()
}

// argOptions returns the optional trailing options document.
func argOptions(args []value.Value, i int) *value.Document {
	if i < len(args) && args[i].Kind() == value.KindDocument {
		return args[i].DocVal()
	}
	return value.NewDocument()
}

func argDocs(args []value.Value, i int, name string) ([]*value.Document, error) {
	if i >= len(args) || args[i].Kind() != value.KindArray {
		return nil, NewError(CodeBadValue, "argument %d (%s) must be an array", i, name)
	}
	elems := args[i].ArrayVal()
	docs := make([]*value.Document, 0, len(elems))
	for _, e := range elems {
		if e.Kind() != value.KindDocument {
			return nil, NewError(CodeBadValue, "argument %d (%s) must contain only documents", i, name)
		}
		docs = append(docs, e.DocVal())
	}
	return docs, nil
}

func namespace(args []value.Value) (db, coll string, err error) {
	if db, err = argString(args, 0, "database"); err != nil {
		return "", "", err
	}
	if coll, err = argString(args, 1, "collection"); err != nil {
		return "", "", err
	}
	return db, coll, nil
}

func optBool(opts *value.Document, key string) bool {
	v, ok := opts.Get(key)
	return ok && v.Kind() == value.KindBool && v.BoolVal()
}

func optInt(opts *value.Document, key string) int64 {
	if v, ok := opts.Get(key); ok && v.Kind() == value.KindNumber {
		return int64(v.NumberVal())
	}
	return 0
}

func optDoc(opts *value.Document, key string) *value.Document {
	if v, ok := opts.Get(key); ok && v.Kind() == value.KindDocument {
		return v.DocVal()
	}
	return nil
}

func updateResultDoc(res *store.UpdateResult) value.Value {
	out := value.NewDocument()
	out.Set("matchedCount", value.Int(res.MatchedCount))
	out.Set("modifiedCount", value.Int(res.ModifiedCount))
	if res.Upserted {
		out.Set("upsertedCount", value.Int(1))
		out.Set("upsertedId", res.UpsertedID)
	} else {
		out.Set("upsertedCount", value.Int(0))
		out.Set("upsertedId", value.Null())
	}
	return value.Doc(out)
}

func docsArray(docs []*value.Document) value.Value {
	elems := make([]value.Value, len(docs))
	for i, d := range docs {
		elems[i] = value.Doc(d)
	}
	return value.Array(elems...)
}

func nullableDoc(d *value.Document) value.Value {
	if d == nil {
		return value.Null()
	}
	return value.Doc(d)
}

// cursorResult returns a bare array when the result fits one batch,
// otherwise a cursor envelope holding the first batch and the cursor ID for
// getMore.
func (b *Backend) cursorResult(ns string, docs []*value.Document, batchSize int64) value.Value {
	first, id := b.cursors.Open(ns, docs, int(batchSize))
	if id == 0 {
		return docsArray(first)
	}
	env := value.NewDocument()
	env.Set("firstBatch", docsArray(first))
	env.Set("cursorId", value.Int(id))
	env.Set("ns", value.String(ns))
	return value.Doc(env)
}

// Write path

func (b *Backend) insertOne(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	doc, err := argDoc(args, 2, "document")
	if err != nil {
		return value.Value{}, err
	}
	res, err := b.store.Collection(db, coll).InsertOne(doc)
	if err != nil {
		return value.Value{}, err
	}
	b.persistNS(ctx, db, coll)
	out := value.NewDocument()
	out.Set("insertedId", res.InsertedID)
	out.Set("acknowledged", value.Bool(true))
	return value.Doc(out), nil
}

func (b *Backend) insertMany(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	docs, err := argDocs(args, 2, "documents")
	if err != nil {
		return value.Value{}, err
	}
	res, err := b.store.Collection(db, coll).InsertMany(docs)
	if err != nil {
		return value.Value{}, err
	}
	b.persistNS(ctx, db, coll)
	out := value.NewDocument()
	out.Set("insertedIds", value.Array(res.InsertedIDs...))
	out.Set("acknowledged", value.Bool(true))
	return value.Doc(out), nil
}

func (b *Backend) updateOne(ctx context.Context, args []value.Value) (value.Value, error) {
	return b.update(ctx, args, false)
}

func (b *Backend) updateMany(ctx context.Context, args []value.Value) (value.Value, error) {
	return b.update(ctx, args, true)
}

func (b *Backend) update(ctx context.Context, args []value.Value, many bool) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	spec, err := argDoc(args, 3, "update")
	if err != nil {
		return value.Value{}, err
	}
	filter := argFilter(args, 2)
	opts := argOptions(args, 4)
	c := b.store.Collection(db, coll)

	var res *store.UpdateResult
	if many {
		res, err = c.UpdateMany(filter, spec, optBool(opts, "upsert"))
	} else {
		res, err = c.UpdateOne(filter, spec, optBool(opts, "upsert"))
	}
	if err != nil {
		return value.Value{}, err
	}
	b.persistNS(ctx, db, coll)
	return updateResultDoc(res), nil
}

func (b *Backend) replaceOne(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	replacement, err := argDoc(args, 3, "replacement")
	if err != nil {
		return value.Value{}, err
	}
	filter := argFilter(args, 2)
	opts := argOptions(args, 4)
	res, err := b.store.Collection(db, coll).ReplaceOne(filter, replacement, optBool(opts, "upsert"))
	if err != nil {
		return value.Value{}, err
	}
	b.persistNS(ctx, db, coll)
	return updateResultDoc(res), nil
}

func (b *Backend) deleteOne(ctx context.Context, args []value.Value) (value.Value, error) {
	return b.delete(ctx, args, false)
}

func (b *Backend) deleteMany(ctx context.Context, args []value.Value) (value.Value, error) {
	return b.delete(ctx, args, true)
}

func (b *Backend) delete(ctx context.Context, args []value.Value, many bool) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	filter := argFilter(args, 2)
	c := b.store.Collection(db, coll)
	var res *store.DeleteResult
	if many {
		res = c.DeleteMany(filter)
	} else {
		res = c.DeleteOne(filter)
	}
	b.persistNS(ctx, db, coll)
	out := value.NewDocument()
	out.Set("deletedCount", value.Int(res.DeletedCount))
	out.Set("acknowledged", value.Bool(true))
	return value.Doc(out), nil
}

// Read path

func (b *Backend) find(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	filter := argFilter(args, 2)
	opts := argOptions(args, 3)
	docs, err := b.store.Collection(db, coll).Find(filter, store.FindOptions{
		Sort:       optDoc(opts, "sort"),
		Projection: optDoc(opts, "projection"),
		Skip:       optInt(opts, "skip"),
		Limit:      optInt(opts, "limit"),
	})
	if err != nil {
		return value.Value{}, AsError(err)
	}
	return b.cursorResult(db+"."+coll, docs, optInt(opts, "batchSize")), nil
}

func (b *Backend) findOne(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	filter := argFilter(args, 2)
	opts := argOptions(args, 3)
	doc, err := b.store.Collection(db, coll).FindOne(filter, store.FindOptions{
		Sort:       optDoc(opts, "sort"),
		Projection: optDoc(opts, "projection"),
	})
	if err != nil {
		return value.Value{}, AsError(err)
	}
	return nullableDoc(doc), nil
}

func (b *Backend) countDocuments(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	return value.Int(b.store.Collection(db, coll).Count(argFilter(args, 2))), nil
}

func (b *Backend) estimatedDocumentCount(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	return value.Int(b.store.Collection(db, coll).EstimatedCount()), nil
}

func (b *Backend) distinct(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	field, err := argString(args, 2, "field")
	if err != nil {
		return value.Value{}, err
	}
	values := b.store.Collection(db, coll).Distinct(field, argFilter(args, 3))
	return value.Array(values...), nil
}

func (b *Backend) aggregate(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	stages, err := argDocs(args, 2, "pipeline")
	if err != nil {
		return value.Value{}, err
	}
	docs, err := b.store.Collection(db, coll).Aggregate(stages)
	if err != nil {
		return value.Value{}, NewError(CodeBadValue, "aggregate: %v", err)
	}
	opts := argOptions(args, 3)
	return b.cursorResult(db+"."+coll, docs, optInt(opts, "batchSize")), nil
}

// findOneAnd* family

func findOneAndOptions(opts *value.Document) store.FindOneAndOptions {
	returnAfter := false
	if v, ok := opts.Get("returnDocument"); ok && v.Kind() == value.KindString {
		returnAfter = v.StringVal() == "after"
	}
	return store.FindOneAndOptions{
		Sort:        optDoc(opts, "sort"),
		Projection:  optDoc(opts, "projection"),
		ReturnAfter: returnAfter,
		Upsert:      optBool(opts, "upsert"),
	}
}

func (b *Backend) findOneAndUpdate(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	spec, err := argDoc(args, 3, "update")
	if err != nil {
		return value.Value{}, err
	}
	doc, err := b.store.Collection(db, coll).FindOneAndUpdate(argFilter(args, 2), spec, findOneAndOptions(argOptions(args, 4)))
	if err != nil {
		return value.Value{}, AsError(err)
	}
	b.persistNS(ctx, db, coll)
	return nullableDoc(doc), nil
}

func (b *Backend) findOneAndDelete(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	doc, err := b.store.Collection(db, coll).FindOneAndDelete(argFilter(args, 2), findOneAndOptions(argOptions(args, 3)))
	if err != nil {
		return value.Value{}, AsError(err)
	}
	b.persistNS(ctx, db, coll)
	return nullableDoc(doc), nil
}

func (b *Backend) findOneAndReplace(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	replacement, err := argDoc(args, 3, "replacement")
	if err != nil {
		return value.Value{}, err
	}
	doc, err := b.store.Collection(db, coll).FindOneAndReplace(argFilter(args, 2), replacement, findOneAndOptions(argOptions(args, 4)))
	if err != nil {
		return value.Value{}, AsError(err)
	}
	b.persistNS(ctx, db, coll)
	return nullableDoc(doc), nil
}

// bulkWrite executes the operations sequentially against the collection;
// any operation error aborts the batch and reports what completed.
func (b *Backend) bulkWrite(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	ops, err := argDocs(args, 2, "operations")
	if err != nil {
		return value.Value{}, err
	}
	c := b.store.Collection(db, coll)

	inserted, matched, modified, deleted := int64(0), int64(0), int64(0), int64(0)
	upsertedIDs := value.NewDocument()
	for i, op := range ops {
		if op.Len() != 1 {
			return value.Value{}, NewError(CodeBadValue, "bulkWrite operation %d must have exactly one key", i)
		}
		kind := op.Keys()[0]
		bodyVal, _ := op.Get(kind)
		if bodyVal.Kind() != value.KindDocument {
			return value.Value{}, NewError(CodeBadValue, "bulkWrite operation %d body must be a document", i)
		}
		body := bodyVal.DocVal()

		var ur *store.UpdateResult
		switch kind {
		case "insertOne":
			doc := optDoc(body, "document")
			if doc == nil {
				return value.Value{}, NewError(CodeBadValue, "bulkWrite insertOne %d missing document", i)
			}
			if _, err := c.InsertOne(doc); err != nil {
				return value.Value{}, err
			}
			inserted++
		case "updateOne", "updateMany":
			spec := optDoc(body, "update")
			if spec == nil {
				return value.Value{}, NewError(CodeBadValue, "bulkWrite %s %d missing update", kind, i)
			}
			if kind == "updateOne" {
				ur, err = c.UpdateOne(bulkFilter(body), spec, optBool(body, "upsert"))
			} else {
				ur, err = c.UpdateMany(bulkFilter(body), spec, optBool(body, "upsert"))
			}
		case "replaceOne":
			replacement := optDoc(body, "replacement")
			if replacement == nil {
				return value.Value{}, NewError(CodeBadValue, "bulkWrite replaceOne %d missing replacement", i)
			}
			ur, err = c.ReplaceOne(bulkFilter(body), replacement, optBool(body, "upsert"))
		case "deleteOne":
			deleted += c.DeleteOne(bulkFilter(body)).DeletedCount
		case "deleteMany":
			deleted += c.DeleteMany(bulkFilter(body)).DeletedCount
		default:
			return value.Value{}, NewError(CodeBadValue, "bulkWrite operation %d: unknown type %s", i, kind)
		}
		if err != nil {
			return value.Value{}, err
		}
		if ur != nil {
			matched += ur.MatchedCount
			modified += ur.ModifiedCount
			if ur.Upserted {
				upsertedIDs.Set(strconv.Itoa(i), ur.UpsertedID)
			}
		}
	}
	b.persistNS(ctx, db, coll)

	out := value.NewDocument()
	out.Set("insertedCount", value.Int(inserted))
	out.Set("matchedCount", value.Int(matched))
	out.Set("modifiedCount", value.Int(modified))
	out.Set("deletedCount", value.Int(deleted))
	out.Set("upsertedCount", value.Int(int64(upsertedIDs.Len())))
	out.Set("upsertedIds", value.Doc(upsertedIDs))
	return value.Doc(out), nil
}

func bulkFilter(body *value.Document) *value.Document {
	if f := optDoc(body, "filter"); f != nil {
		return f
	}
	return value.NewDocument()
}

// Cursors

func (b *Backend) getMore(ctx context.Context, args []value.Value) (value.Value, error) {
	if len(args) < 1 || args[0].Kind() != value.KindNumber {
		return value.Value{}, NewError(CodeBadValue, "getMore requires a numeric cursor id")
	}
	batchSize := int64(0)
	if len(args) > 1 && args[1].Kind() == value.KindNumber {
		batchSize = int64(args[1].NumberVal())
	}
	batch, id, err := b.cursors.GetMore(int64(args[0].NumberVal()), int(batchSize))
	if err != nil {
		return value.Value{}, AsError(err)
	}
	out := value.NewDocument()
	out.Set("nextBatch", docsArray(batch))
	out.Set("cursorId", value.Int(id))
	return value.Doc(out), nil
}

func (b *Backend) killCursors(ctx context.Context, args []value.Value) (value.Value, error) {
	if len(args) < 1 || args[0].Kind() != value.KindArray {
		return value.Value{}, NewError(CodeBadValue, "killCursors requires an array of cursor ids")
	}
	var ids []int64
	for _, v := range args[0].ArrayVal() {
		if v.Kind() == value.KindNumber {
			ids = append(ids, int64(v.NumberVal()))
		}
	}
	killed := b.cursors.Kill(ids)
	elems := make([]value.Value, len(killed))
	for i, id := range killed {
		elems[i] = value.Int(id)
	}
	out := value.NewDocument()
	out.Set("cursorsKilled", value.Array(elems...))
	return value.Doc(out), nil
}

// Catalog

func (b *Backend) createCollection(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	opts := argOptions(args, 2)
	var v store.Validator
	if validatorDoc := optDoc(opts, "validator"); validatorDoc != nil {
		compiled, err := schema.Compile(validatorDoc)
		if err != nil {
			return value.Value{}, AsError(err)
		}
		if compiled != nil {
			v = compiled
		}
	}
	if err := b.store.CreateCollection(db, coll, v); err != nil {
		return value.Value{}, AsError(err)
	}
	b.persistNS(ctx, db, coll)
	return okDoc(), nil
}

func (b *Backend) dropCollection(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	b.store.DropCollection(db, coll)
	b.persistNS(ctx, db, coll)
	return okDoc(), nil
}

func (b *Backend) dropDatabase(ctx context.Context, args []value.Value) (value.Value, error) {
	db, err := argString(args, 0, "database")
	if err != nil {
		return value.Value{}, err
	}
	colls := b.store.ListCollections(db)
	b.store.DropDatabase(db)
	for _, coll := range colls {
		b.persistNS(ctx, db, coll)
	}
	return okDoc(), nil
}

func (b *Backend) listCollections(ctx context.Context, args []value.Value) (value.Value, error) {
	db, err := argString(args, 0, "database")
	if err != nil {
		return value.Value{}, err
	}
	return stringArray(b.store.ListCollections(db)), nil
}

func (b *Backend) listDatabases(ctx context.Context, args []value.Value) (value.Value, error) {
	return stringArray(b.store.ListDatabases()), nil
}

// Indexes

func (b *Backend) createIndex(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	keys, err := argDoc(args, 2, "keys")
	if err != nil {
		return value.Value{}, err
	}
	opts := argOptions(args, 3)
	name := ""
	if v, ok := opts.Get("name"); ok && v.Kind() == value.KindString {
		name = v.StringVal()
	}
	created := b.store.Collection(db, coll).CreateIndex(keys, name, optBool(opts, "unique"))
	return value.String(created), nil
}

func (b *Backend) dropIndex(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	name, err := argString(args, 2, "name")
	if err != nil {
		return value.Value{}, err
	}
	if err := b.store.Collection(db, coll).DropIndex(name); err != nil {
		return value.Value{}, AsError(err)
	}
	return okDoc(), nil
}

func (b *Backend) listIndexes(ctx context.Context, args []value.Value) (value.Value, error) {
	db, coll, err := namespace(args)
	if err != nil {
		return value.Value{}, err
	}
	indexes := b.store.Collection(db, coll).ListIndexes()
	elems := make([]value.Value, 0, len(indexes))
	for _, idx := range indexes {
		d := value.NewDocument()
		d.Set("name", value.String(idx.Name))
		d.Set("key", value.Doc(idx.Keys))
		d.Set("unique", value.Bool(idx.Unique))
		elems = append(elems, value.Doc(d))
	}
	return value.Array(elems...), nil
}

// Admin

// runCommand understands the small command-document surface the SDKs use:
// ping, count, and buildInfo. Anything else is CommandNotFound.
func (b *Backend) runCommand(ctx context.Context, args []value.Value) (value.Value, error) {
	db, err := argString(args, 0, "database")
	if err != nil {
		return value.Value{}, err
	}
	command, err := argDoc(args, 1, "command")
	if err != nil {
		return value.Value{}, err
	}
	if command.Len() == 0 {
		return value.Value{}, NewError(CodeBadValue, "empty command document")
	}
	name := command.Keys()[0]
	switch name {
	case "ping":
		return okDoc(), nil
	case "count":
		collVal, _ := command.Get("count")
		if collVal.Kind() != value.KindString {
			return value.Value{}, NewError(CodeBadValue, "count command requires a collection name")
		}
		filter := value.NewDocument()
		if q := optDoc(command, "query"); q != nil {
			filter = q
		}
		out := value.NewDocument()
		out.Set("n", value.Int(b.store.Collection(db, collVal.StringVal()).Count(filter)))
		out.Set("ok", value.Int(1))
		return value.Doc(out), nil
	case "buildInfo":
		out := value.NewDocument()
		out.Set("version", value.String(serverVersion()))
		out.Set("ok", value.Int(1))
		return value.Doc(out), nil
	default:
		return value.Value{}, NewError(CodeCommandNotFound, "no such command: %s", name)
	}
}

func (b *Backend) ping(ctx context.Context, args []value.Value) (value.Value, error) {
	return okDoc(), nil
}

func (b *Backend) serverStatus(ctx context.Context, args []value.Value) (value.Value, error) {
	out := value.NewDocument()
	out.Set("version", value.String(serverVersion()))
	out.Set("uptimeMillis", value.Int(b.uptime().Milliseconds()))
	out.Set("databases", value.Int(int64(len(b.store.ListDatabases()))))
	out.Set("openCursors", value.Int(int64(b.cursors.Len())))
	out.Set("ok", value.Int(1))
	return value.Doc(out), nil
}

func okDoc() value.Value {
	d := value.NewDocument()
	d.Set("ok", value.Int(1))
	return value.Doc(d)
}

func stringArray(names []string) value.Value {
	elems := make([]value.Value, len(names))
	for i, n := range names {
		elems[i] = value.String(n)
	}
	return value.Array(elems...)
}
