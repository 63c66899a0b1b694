package store

import (
	"strings"
	"sync"

	"github.com/mondo-io/mondo/internal/engine/pipeline"
	"github.com/mondo-io/mondo/internal/engine/query"
	"github.com/mondo-io/mondo/internal/engine/update"
	"github.com/mondo-io/mondo/internal/engine/value"
	"github.com/mondo-io/mondo/internal/engine/view"
)

// Collection holds one collection's documents in insertion order.
type Collection struct {
	mu        sync.Mutex
	docs      []*value.Document
	validator Validator
	indexes   []Index
}

func newCollection() *Collection {
	return &Collection{}
}

// FindOptions carries the optional shaping of a Find call.
type FindOptions struct {
	Sort       *value.Document
	Projection *value.Document
	Skip       int64
	Limit      int64 // 0 means no limit
}

// FindOneAndOptions shapes the FindOneAnd* family.
type FindOneAndOptions struct {
	Sort        *value.Document
	Projection  *value.Document
	ReturnAfter bool // FindOneAndUpdate/Replace: return the post-image
	Upsert      bool
}

// InsertOneResult reports the _id of the inserted document.
type InsertOneResult struct {
	InsertedID value.Value
}

// InsertManyResult reports the _ids of the inserted documents in order.
type InsertManyResult struct {
	InsertedIDs []value.Value
}

// UpdateResult reports the outcome of an update or replace.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    value.Value // zero Value unless an upsert inserted
	Upserted      bool
}

// DeleteResult reports how many documents a delete removed.
type DeleteResult struct {
	DeletedCount int64
}

// InsertOne appends a clone of doc, generating an ObjectID _id when the
// document has none.
func (c *Collection) InsertOne(doc *value.Document) (*InsertOneResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, id, err := c.prepareInsert(doc)
	if err != nil {
		return nil, err
	}
	c.docs = append(c.docs, stored)
	return &InsertOneResult{InsertedID: id}, nil
}

// InsertMany inserts the documents in order. Validation failure on any
// document aborts the whole call before anything is appended.
func (c *Collection) InsertMany(docs []*value.Document) (*InsertManyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prepared := make([]*value.Document, 0, len(docs))
	ids := make([]value.Value, 0, len(docs))
	for _, doc := range docs {
		stored, id, err := c.prepareInsert(doc)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, stored)
		ids = append(ids, id)
	}
	c.docs = append(c.docs, prepared...)
	return &InsertManyResult{InsertedIDs: ids}, nil
}

func (c *Collection) prepareInsert(doc *value.Document) (*value.Document, value.Value, error) {
	stored, id := ensureID(doc)
	if c.validator != nil {
		if err := c.validator.Validate(stored); err != nil {
			return nil, value.Value{}, err
		}
	}
	return stored, id, nil
}

// Find returns clones of the matching documents, shaped by opts. Matching
// runs in insertion order; sort, then skip, then limit, then projection.
func (c *Collection) Find(filter *value.Document, opts FindOptions) ([]*value.Document, error) {
	c.mu.Lock()
	matched := c.matchLocked(filter)
	c.mu.Unlock()

	if opts.Sort != nil && opts.Sort.Len() > 0 {
		matched = view.Sort(matched, view.ParseSort(opts.Sort))
	}
	matched = window(matched, opts.Skip, opts.Limit)

	out := make([]*value.Document, 0, len(matched))
	for _, d := range matched {
		if opts.Projection != nil && opts.Projection.Len() > 0 {
			p, err := view.Project(d, opts.Projection)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		} else {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

// FindOne returns the first match under opts, or nil when nothing matches.
func (c *Collection) FindOne(filter *value.Document, opts FindOptions) (*value.Document, error) {
	opts.Limit = 1
	docs, err := c.Find(filter, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// UpdateOne applies the update to the first matching document. With upsert
// set and no match, a new document is seeded from the filter's equality
// fields, updated, and inserted.
func (c *Collection) UpdateOne(filter, spec *value.Document, upsert bool) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range c.docs {
		if query.Matches(d, filter) {
			updated := update.Apply(d, spec)
			res := &UpdateResult{MatchedCount: 1}
			if !value.Equal(value.Doc(d), value.Doc(updated)) {
				c.docs[i] = updated
				res.ModifiedCount = 1
			}
			return res, nil
		}
	}
	if !upsert {
		return &UpdateResult{}, nil
	}
	return c.upsertLocked(filter, spec)
}

// UpdateMany applies the update to every matching document under one lock.
func (c *Collection) UpdateMany(filter, spec *value.Document, upsert bool) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := &UpdateResult{}
	for i, d := range c.docs {
		if !query.Matches(d, filter) {
			continue
		}
		res.MatchedCount++
		updated := update.Apply(d, spec)
		if !value.Equal(value.Doc(d), value.Doc(updated)) {
			c.docs[i] = updated
			res.ModifiedCount++
		}
	}
	if res.MatchedCount == 0 && upsert {
		return c.upsertLocked(filter, spec)
	}
	return res, nil
}

// ReplaceOne swaps the first matching document for a clone of replacement,
// preserving the original _id.
func (c *Collection) ReplaceOne(filter, replacement *value.Document, upsert bool) (*UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range c.docs {
		if !query.Matches(d, filter) {
			continue
		}
		next := withID(replacement, mustID(d))
		if c.validator != nil {
			if err := c.validator.Validate(next); err != nil {
				return nil, err
			}
		}
		res := &UpdateResult{MatchedCount: 1}
		if !value.Equal(value.Doc(d), value.Doc(next)) {
			c.docs[i] = next
			res.ModifiedCount = 1
		}
		return res, nil
	}
	if !upsert {
		return &UpdateResult{}, nil
	}
	stored, id := ensureID(replacement)
	if c.validator != nil {
		if err := c.validator.Validate(stored); err != nil {
			return nil, err
		}
	}
	c.docs = append(c.docs, stored)
	return &UpdateResult{UpsertedID: id, Upserted: true}, nil
}

// DeleteOne removes the first matching document.
func (c *Collection) DeleteOne(filter *value.Document) *DeleteResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range c.docs {
		if query.Matches(d, filter) {
			c.docs = append(c.docs[:i], c.docs[i+1:]...)
			return &DeleteResult{DeletedCount: 1}
		}
	}
	return &DeleteResult{}
}

// DeleteMany removes every matching document under one lock.
func (c *Collection) DeleteMany(filter *value.Document) *DeleteResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.docs[:0]
	deleted := int64(0)
	for _, d := range c.docs {
		if query.Matches(d, filter) {
			deleted++
		} else {
			kept = append(kept, d)
		}
	}
	c.docs = kept
	return &DeleteResult{DeletedCount: deleted}
}

// FindOneAndUpdate atomically updates the first match and returns its pre-
// or post-image per opts. With upsert and no match, the upserted document is
// returned when ReturnAfter is set, otherwise nil.
func (c *Collection) FindOneAndUpdate(filter, spec *value.Document, opts FindOneAndOptions) (*value.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := c.pickLocked(filter, opts.Sort)
	if !found {
		if !opts.Upsert {
			return nil, nil
		}
		if _, err := c.upsertLocked(filter, spec); err != nil {
			return nil, err
		}
		if !opts.ReturnAfter {
			return nil, nil
		}
		return c.shape(c.docs[len(c.docs)-1], opts.Projection)
	}
	before := c.docs[i]
	after := update.Apply(before, spec)
	c.docs[i] = after
	if opts.ReturnAfter {
		return c.shape(after, opts.Projection)
	}
	return c.shape(before, opts.Projection)
}

// FindOneAndDelete atomically removes the first match and returns it.
func (c *Collection) FindOneAndDelete(filter *value.Document, opts FindOneAndOptions) (*value.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := c.pickLocked(filter, opts.Sort)
	if !found {
		return nil, nil
	}
	d := c.docs[i]
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return c.shape(d, opts.Projection)
}

// FindOneAndReplace atomically replaces the first match, preserving its
// _id, and returns the pre- or post-image per opts.
func (c *Collection) FindOneAndReplace(filter, replacement *value.Document, opts FindOneAndOptions) (*value.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := c.pickLocked(filter, opts.Sort)
	if !found {
		if !opts.Upsert {
			return nil, nil
		}
		stored, _ := ensureID(replacement)
		if c.validator != nil {
			if err := c.validator.Validate(stored); err != nil {
				return nil, err
			}
		}
		c.docs = append(c.docs, stored)
		if !opts.ReturnAfter {
			return nil, nil
		}
		return c.shape(stored, opts.Projection)
	}
	before := c.docs[i]
	next := withID(replacement, mustID(before))
	if c.validator != nil {
		if err := c.validator.Validate(next); err != nil {
			return nil, err
		}
	}
	c.docs[i] = next
	if opts.ReturnAfter {
		return c.shape(next, opts.Projection)
	}
	return c.shape(before, opts.Projection)
}

// Count returns the number of documents matching filter.
func (c *Collection) Count(filter *value.Document) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if filter == nil || filter.Len() == 0 {
		return int64(len(c.docs))
	}
	n := int64(0)
	for _, d := range c.docs {
		if query.Matches(d, filter) {
			n++
		}
	}
	return n
}

// EstimatedCount returns the collection size without evaluating a filter.
func (c *Collection) EstimatedCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.docs))
}

// Distinct returns the de-duplicated values at path across the matching
// documents. Array values contribute their elements, not the array itself.
func (c *Collection) Distinct(path string, filter *value.Document) []value.Value {
	c.mu.Lock()
	matched := c.matchLocked(filter)
	c.mu.Unlock()

	var out []value.Value
	add := func(v value.Value) {
		for _, e := range out {
			if value.Equal(e, v) {
				return
			}
		}
		out = append(out, v.Clone())
	}
	for _, d := range matched {
		v, ok := value.Resolve(d, path)
		if !ok {
			continue
		}
		if v.Kind() == value.KindArray {
			for _, e := range v.ArrayVal() {
				add(e)
			}
		} else {
			add(v)
		}
	}
	return out
}

// Aggregate runs the pipeline against a snapshot of the collection and
// returns cloned results.
func (c *Collection) Aggregate(stages []*value.Document) ([]*value.Document, error) {
	c.mu.Lock()
	snapshot := append([]*value.Document(nil), c.docs...)
	c.mu.Unlock()

	results, err := pipeline.Run(snapshot, stages)
	if err != nil {
		return nil, err
	}
	out := make([]*value.Document, len(results))
	for i, d := range results {
		out[i] = d.Clone()
	}
	return out, nil
}

// Snapshot returns clones of every document, for persistence.
func (c *Collection) Snapshot() []*value.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*value.Document, len(c.docs))
	for i, d := range c.docs {
		out[i] = d.Clone()
	}
	return out
}

// Restore replaces the collection's contents, for hydration on startup.
func (c *Collection) Restore(docs []*value.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = make([]*value.Document, len(docs))
	for i, d := range docs {
		c.docs[i] = d.Clone()
	}
}

// SetValidator attaches (or clears) the collection's document validator.
func (c *Collection) SetValidator(v Validator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validator = v
}

func (c *Collection) matchLocked(filter *value.Document) []*value.Document {
	if filter == nil || filter.Len() == 0 {
		return append([]*value.Document(nil), c.docs...)
	}
	var out []*value.Document
	for _, d := range c.docs {
		if query.Matches(d, filter) {
			out = append(out, d)
		}
	}
	return out
}

// pickLocked locates the index of the first match, honoring an optional
// sort to decide which document is "first".
func (c *Collection) pickLocked(filter, sortSpec *value.Document) (int, bool) {
	if sortSpec == nil || sortSpec.Len() == 0 {
		for i, d := range c.docs {
			if query.Matches(d, filter) {
				return i, true
			}
		}
		return 0, false
	}
	matched := c.matchLocked(filter)
	if len(matched) == 0 {
		return 0, false
	}
	first := view.Sort(matched, view.ParseSort(sortSpec))[0]
	for i, d := range c.docs {
		if d == first {
			return i, true
		}
	}
	return 0, false
}

func (c *Collection) shape(d *value.Document, projection *value.Document) (*value.Document, error) {
	if projection != nil && projection.Len() > 0 {
		return view.Project(d, projection)
	}
	return d.Clone(), nil
}

// upsertLocked builds the upsert document: filter equality fields seeded
// first, then the update applied, then _id generated when still absent.
func (c *Collection) upsertLocked(filter, spec *value.Document) (*UpdateResult, error) {
	seed := value.NewDocument()
	for _, key := range filter.Keys() {
		if strings.HasPrefix(key, "$") {
			continue
		}
		cond, _ := filter.Get(key)
		if cond.IsOperatorDoc() {
			if eq, ok := cond.DocVal().Get("$eq"); ok {
				value.SetPath(seed, key, eq.Clone())
			}
			continue
		}
		value.SetPath(seed, key, cond.Clone())
	}
	updated := update.Apply(seed, spec)
	stored, id := ensureID(updated)
	if c.validator != nil {
		if err := c.validator.Validate(stored); err != nil {
			return nil, err
		}
	}
	c.docs = append(c.docs, stored)
	return &UpdateResult{UpsertedID: id, Upserted: true}, nil
}

// ensureID clones doc and guarantees an _id, placed first when generated.
func ensureID(doc *value.Document) (*value.Document, value.Value) {
	if id, ok := doc.Get("_id"); ok {
		return doc.Clone(), id.Clone()
	}
	id := value.OID(value.NewObjectID())
	out := value.NewDocument()
	out.Set("_id", id)
	clone := doc.Clone()
	for _, key := range clone.Keys() {
		v, _ := clone.Get(key)
		out.Set(key, v)
	}
	return out, id
}

// withID clones replacement with the given _id forced, placed first.
func withID(replacement *value.Document, id value.Value) *value.Document {
	out := value.NewDocument()
	out.Set("_id", id.Clone())
	clone := replacement.Clone()
	for _, key := range clone.Keys() {
		if key == "_id" {
			continue
		}
		v, _ := clone.Get(key)
		out.Set(key, v)
	}
	return out
}

func mustID(doc *value.Document) value.Value {
	id, _ := doc.Get("_id")
	return id
}

// window applies skip and limit to an already sorted slice.
func window(docs []*value.Document, skip, limit int64) []*value.Document {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}
