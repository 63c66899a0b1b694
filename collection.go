package mondo

import (
	"context"
	"fmt"
)

// Collection is a handle to a collection.
type Collection struct {
	database *Database
	name     string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Database returns the owning database.
func (c *Collection) Database() *Database { return c.database }

func (c *Collection) call(ctx context.Context, method string, args ...any) (any, error) {
	full := append([]any{c.database.name, c.name}, args...)
	return c.database.client.call(ctx, method, full...)
}

// InsertOneResult reports the outcome of InsertOne.
type InsertOneResult struct {
	InsertedID any
}

// InsertManyResult reports the outcome of InsertMany.
type InsertManyResult struct {
	InsertedIDs []any
}

// UpdateResult reports the outcome of update and replace operations.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedCount int64
	UpsertedID    any
}

// DeleteResult reports the outcome of delete operations.
type DeleteResult struct {
	DeletedCount int64
}

// InsertOne inserts a single document. A missing _id is generated
// server-side and reported in the result.
func (c *Collection) InsertOne(ctx context.Context, document any) (*InsertOneResult, error) {
	if document == nil {
		return nil, ErrNilDocument
	}
	result, err := c.call(ctx, "mongo.insertOne", document)
	if err != nil {
		return nil, err
	}
	doc := resultDoc(result)
	return &InsertOneResult{InsertedID: doc["insertedId"]}, nil
}

// InsertMany inserts the given documents. Validation covers the whole
// batch before anything is written, so a failed batch inserts nothing.
func (c *Collection) InsertMany(ctx context.Context, documents []any) (*InsertManyResult, error) {
	if len(documents) == 0 {
		return nil, fmt.Errorf("mondo: documents must not be empty")
	}
	for _, d := range documents {
		if d == nil {
			return nil, ErrNilDocument
		}
	}
	result, err := c.call(ctx, "mongo.insertMany", documents)
	if err != nil {
		return nil, err
	}
	doc := resultDoc(result)
	ids, _ := doc["insertedIds"].([]any)
	return &InsertManyResult{InsertedIDs: ids}, nil
}

// FindOptions configures Find.
type FindOptions struct {
	Sort       any
	Projection any
	Limit      *int64
	Skip       *int64
	BatchSize  *int64
}

// SetSort sets the sort specification.
func (o *FindOptions) SetSort(sort any) *FindOptions {
	o.Sort = sort
	return o
}

// SetProjection sets the projection specification.
func (o *FindOptions) SetProjection(projection any) *FindOptions {
	o.Projection = projection
	return o
}

// SetLimit caps the number of returned documents.
func (o *FindOptions) SetLimit(limit int64) *FindOptions {
	o.Limit = &limit
	return o
}

// SetSkip skips the first n matching documents.
func (o *FindOptions) SetSkip(skip int64) *FindOptions {
	o.Skip = &skip
	return o
}

// SetBatchSize sets the server batch size for cursor paging.
func (o *FindOptions) SetBatchSize(size int64) *FindOptions {
	o.BatchSize = &size
	return o
}

func (o *FindOptions) toMap() M {
	m := M{}
	if o == nil {
		return m
	}
	if o.Sort != nil {
		m["sort"] = o.Sort
	}
	if o.Projection != nil {
		m["projection"] = o.Projection
	}
	if o.Limit != nil {
		m["limit"] = *o.Limit
	}
	if o.Skip != nil {
		m["skip"] = *o.Skip
	}
	if o.BatchSize != nil {
		m["batchSize"] = *o.BatchSize
	}
	return m
}

// Find returns a cursor over the documents matching filter.
func (c *Collection) Find(ctx context.Context, filter any, opts ...*FindOptions) (*Cursor, error) {
	options := M{}
	for _, opt := range opts {
		if opt != nil {
			options = opt.toMap()
		}
	}
	result, err := c.call(ctx, "mongo.find", orEmpty(filter), options)
	if err != nil {
		return nil, err
	}
	return cursorFromResult(c.database.client, result)
}

// FindOne returns the first document matching filter, honoring sort and
// projection options. A miss decodes as ErrNoDocuments.
func (c *Collection) FindOne(ctx context.Context, filter any, opts ...*FindOptions) *SingleResult {
	options := M{}
	for _, opt := range opts {
		if opt != nil {
			options = opt.toMap()
		}
	}
	result, err := c.call(ctx, "mongo.findOne", orEmpty(filter), options)
	if err != nil {
		return newSingleResultError(err)
	}
	return newSingleResult(result)
}

// UpdateOptions configures update and replace operations.
type UpdateOptions struct {
	Upsert *bool
}

// SetUpsert makes the operation insert when nothing matches.
func (o *UpdateOptions) SetUpsert(upsert bool) *UpdateOptions {
	o.Upsert = &upsert
	return o
}

func (o *UpdateOptions) toMap() M {
	m := M{}
	if o != nil && o.Upsert != nil {
		m["upsert"] = *o.Upsert
	}
	return m
}

// UpdateOne applies update to the first document matching filter.
func (c *Collection) UpdateOne(ctx context.Context, filter, update any, opts ...*UpdateOptions) (*UpdateResult, error) {
	return c.runUpdate(ctx, "mongo.updateOne", filter, update, opts)
}

// UpdateMany applies update to every document matching filter.
func (c *Collection) UpdateMany(ctx context.Context, filter, update any, opts ...*UpdateOptions) (*UpdateResult, error) {
	return c.runUpdate(ctx, "mongo.updateMany", filter, update, opts)
}

// ReplaceOne replaces the first document matching filter wholesale,
// preserving its _id.
func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement any, opts ...*UpdateOptions) (*UpdateResult, error) {
	return c.runUpdate(ctx, "mongo.replaceOne", filter, replacement, opts)
}

func (c *Collection) runUpdate(ctx context.Context, method string, filter, body any, opts []*UpdateOptions) (*UpdateResult, error) {
	if body == nil {
		return nil, ErrNilDocument
	}
	options := M{}
	for _, opt := range opts {
		if opt != nil {
			options = opt.toMap()
		}
	}
	result, err := c.call(ctx, method, orEmpty(filter), body, options)
	if err != nil {
		return nil, err
	}
	doc := resultDoc(result)
	return &UpdateResult{
		MatchedCount:  resultInt(doc, "matchedCount"),
		ModifiedCount: resultInt(doc, "modifiedCount"),
		UpsertedCount: resultInt(doc, "upsertedCount"),
		UpsertedID:    doc["upsertedId"],
	}, nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter any) (*DeleteResult, error) {
	return c.runDelete(ctx, "mongo.deleteOne", filter)
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter any) (*DeleteResult, error) {
	return c.runDelete(ctx, "mongo.deleteMany", filter)
}

func (c *Collection) runDelete(ctx context.Context, method string, filter any) (*DeleteResult, error) {
	result, err := c.call(ctx, method, orEmpty(filter))
	if err != nil {
		return nil, err
	}
	doc := resultDoc(result)
	return &DeleteResult{DeletedCount: resultInt(doc, "deletedCount")}, nil
}

// CountDocuments counts the documents matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter any) (int64, error) {
	result, err := c.call(ctx, "mongo.countDocuments", orEmpty(filter))
	if err != nil {
		return 0, err
	}
	return toInt64(result), nil
}

// EstimatedDocumentCount returns the collection size without a filter scan.
func (c *Collection) EstimatedDocumentCount(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "mongo.estimatedDocumentCount")
	if err != nil {
		return 0, err
	}
	return toInt64(result), nil
}

// Distinct returns the distinct values of field across documents matching
// filter. Array values contribute their elements, not the array itself.
func (c *Collection) Distinct(ctx context.Context, field string, filter any) ([]any, error) {
	result, err := c.call(ctx, "mongo.distinct", field, orEmpty(filter))
	if err != nil {
		return nil, err
	}
	values, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("mondo: unexpected result type %T", result)
	}
	return values, nil
}

// Aggregate runs an aggregation pipeline against the collection.
func (c *Collection) Aggregate(ctx context.Context, pipeline any) (*Cursor, error) {
	result, err := c.call(ctx, "mongo.aggregate", pipeline)
	if err != nil {
		return nil, err
	}
	return cursorFromResult(c.database.client, result)
}

// FindOneAndUpdateOptions configures the findOneAnd* family.
type FindOneAndUpdateOptions struct {
	Upsert         *bool
	ReturnDocument string
	Projection     any
	Sort           any
}

// SetUpsert makes the operation insert when nothing matches.
func (o *FindOneAndUpdateOptions) SetUpsert(upsert bool) *FindOneAndUpdateOptions {
	o.Upsert = &upsert
	return o
}

// SetReturnDocument selects the pre- or post-image, "before" or "after".
func (o *FindOneAndUpdateOptions) SetReturnDocument(which string) *FindOneAndUpdateOptions {
	o.ReturnDocument = which
	return o
}

// SetProjection sets the projection applied to the returned document.
func (o *FindOneAndUpdateOptions) SetProjection(projection any) *FindOneAndUpdateOptions {
	o.Projection = projection
	return o
}

// SetSort selects which matching document counts as first.
func (o *FindOneAndUpdateOptions) SetSort(sort any) *FindOneAndUpdateOptions {
	o.Sort = sort
	return o
}

func (o *FindOneAndUpdateOptions) toMap() M {
	m := M{}
	if o == nil {
		return m
	}
	if o.Upsert != nil {
		m["upsert"] = *o.Upsert
	}
	if o.ReturnDocument != "" {
		m["returnDocument"] = o.ReturnDocument
	}
	if o.Projection != nil {
		m["projection"] = o.Projection
	}
	if o.Sort != nil {
		m["sort"] = o.Sort
	}
	return m
}

// FindOneAndUpdate updates the first matching document and returns its
// pre-image, or the post-image with SetReturnDocument("after").
func (c *Collection) FindOneAndUpdate(ctx context.Context, filter, update any, opts ...*FindOneAndUpdateOptions) *SingleResult {
	if update == nil {
		return newSingleResultError(ErrNilDocument)
	}
	options := M{}
	for _, opt := range opts {
		if opt != nil {
			options = opt.toMap()
		}
	}
	result, err := c.call(ctx, "mongo.findOneAndUpdate", orEmpty(filter), update, options)
	if err != nil {
		return newSingleResultError(err)
	}
	return newSingleResult(result)
}

// FindOneAndDelete removes the first matching document and returns it.
func (c *Collection) FindOneAndDelete(ctx context.Context, filter any, opts ...*FindOneAndUpdateOptions) *SingleResult {
	options := M{}
	for _, opt := range opts {
		if opt != nil {
			options = opt.toMap()
		}
	}
	result, err := c.call(ctx, "mongo.findOneAndDelete", orEmpty(filter), options)
	if err != nil {
		return newSingleResultError(err)
	}
	return newSingleResult(result)
}

// FindOneAndReplace replaces the first matching document and returns its
// pre-image, or the post-image with SetReturnDocument("after").
func (c *Collection) FindOneAndReplace(ctx context.Context, filter, replacement any, opts ...*FindOneAndUpdateOptions) *SingleResult {
	if replacement == nil {
		return newSingleResultError(ErrNilDocument)
	}
	options := M{}
	for _, opt := range opts {
		if opt != nil {
			options = opt.toMap()
		}
	}
	result, err := c.call(ctx, "mongo.findOneAndReplace", orEmpty(filter), replacement, options)
	if err != nil {
		return newSingleResultError(err)
	}
	return newSingleResult(result)
}

// Drop drops the collection. Dropping a collection that does not exist is
// not an error.
func (c *Collection) Drop(ctx context.Context) error {
	_, err := c.call(ctx, "mongo.dropCollection")
	return err
}

// IndexOptions configures CreateIndex.
type IndexOptions struct {
	Name   string
	Unique *bool
}

// SetName overrides the generated index name.
func (o *IndexOptions) SetName(name string) *IndexOptions {
	o.Name = name
	return o
}

// SetUnique marks the index unique.
func (o *IndexOptions) SetUnique(unique bool) *IndexOptions {
	o.Unique = &unique
	return o
}

// IndexModel describes an index to create.
type IndexModel struct {
	Keys    any
	Options *IndexOptions
}

// CreateIndex records index metadata and returns the index name.
func (c *Collection) CreateIndex(ctx context.Context, model IndexModel) (string, error) {
	if model.Keys == nil {
		return "", fmt.Errorf("mondo: index model must have keys")
	}
	options := M{}
	if model.Options != nil {
		if model.Options.Name != "" {
			options["name"] = model.Options.Name
		}
		if model.Options.Unique != nil {
			options["unique"] = *model.Options.Unique
		}
	}
	result, err := c.call(ctx, "mongo.createIndex", model.Keys, options)
	if err != nil {
		return "", err
	}
	name, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("mondo: unexpected result type %T", result)
	}
	return name, nil
}

// DropIndex drops the named index.
func (c *Collection) DropIndex(ctx context.Context, name string) error {
	_, err := c.call(ctx, "mongo.dropIndex", name)
	return err
}

// ListIndexes returns the collection's index metadata, the implicit _id
// index included.
func (c *Collection) ListIndexes(ctx context.Context) ([]M, error) {
	result, err := c.call(ctx, "mongo.listIndexes")
	if err != nil {
		return nil, err
	}
	items, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("mondo: unexpected result type %T", result)
	}
	indexes := make([]M, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			indexes = append(indexes, m)
		}
	}
	return indexes, nil
}

func orEmpty(filter any) any {
	if filter == nil {
		return M{}
	}
	return filter
}

func resultDoc(result any) map[string]any {
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func resultInt(doc map[string]any, key string) int64 {
	return toInt64(doc[key])
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
