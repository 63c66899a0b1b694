package mondo

import "context"

// WriteModel is implemented by the operation models accepted by BulkWrite.
type WriteModel interface {
	writeModel() M
}

// InsertOneModel inserts a single document.
type InsertOneModel struct {
	Document any
}

// SetDocument sets the document to insert.
func (m *InsertOneModel) SetDocument(doc any) *InsertOneModel {
	m.Document = doc
	return m
}

func (m *InsertOneModel) writeModel() M {
	return M{"insertOne": M{"document": m.Document}}
}

// UpdateOneModel updates the first document matching its filter.
type UpdateOneModel struct {
	Filter any
	Update any
	Upsert *bool
}

// SetFilter sets the match filter.
func (m *UpdateOneModel) SetFilter(filter any) *UpdateOneModel {
	m.Filter = filter
	return m
}

// SetUpdate sets the update specification.
func (m *UpdateOneModel) SetUpdate(update any) *UpdateOneModel {
	m.Update = update
	return m
}

// SetUpsert makes the operation insert when nothing matches.
func (m *UpdateOneModel) SetUpsert(upsert bool) *UpdateOneModel {
	m.Upsert = &upsert
	return m
}

func (m *UpdateOneModel) writeModel() M {
	body := M{"filter": orEmpty(m.Filter), "update": m.Update}
	if m.Upsert != nil {
		body["upsert"] = *m.Upsert
	}
	return M{"updateOne": body}
}

// UpdateManyModel updates every document matching its filter.
type UpdateManyModel struct {
	Filter any
	Update any
	Upsert *bool
}

// SetFilter sets the match filter.
func (m *UpdateManyModel) SetFilter(filter any) *UpdateManyModel {
	m.Filter = filter
	return m
}

// SetUpdate sets the update specification.
func (m *UpdateManyModel) SetUpdate(update any) *UpdateManyModel {
	m.Update = update
	return m
}

// SetUpsert makes the operation insert when nothing matches.
func (m *UpdateManyModel) SetUpsert(upsert bool) *UpdateManyModel {
	m.Upsert = &upsert
	return m
}

func (m *UpdateManyModel) writeModel() M {
	body := M{"filter": orEmpty(m.Filter), "update": m.Update}
	if m.Upsert != nil {
		body["upsert"] = *m.Upsert
	}
	return M{"updateMany": body}
}

// ReplaceOneModel replaces the first document matching its filter.
type ReplaceOneModel struct {
	Filter      any
	Replacement any
	Upsert      *bool
}

// SetFilter sets the match filter.
func (m *ReplaceOneModel) SetFilter(filter any) *ReplaceOneModel {
	m.Filter = filter
	return m
}

// SetReplacement sets the replacement document.
func (m *ReplaceOneModel) SetReplacement(doc any) *ReplaceOneModel {
	m.Replacement = doc
	return m
}

// SetUpsert makes the operation insert when nothing matches.
func (m *ReplaceOneModel) SetUpsert(upsert bool) *ReplaceOneModel {
	m.Upsert = &upsert
	return m
}

func (m *ReplaceOneModel) writeModel() M {
	body := M{"filter": orEmpty(m.Filter), "replacement": m.Replacement}
	if m.Upsert != nil {
		body["upsert"] = *m.Upsert
	}
	return M{"replaceOne": body}
}

// DeleteOneModel deletes the first document matching its filter.
type DeleteOneModel struct {
	Filter any
}

// SetFilter sets the match filter.
func (m *DeleteOneModel) SetFilter(filter any) *DeleteOneModel {
	m.Filter = filter
	return m
}

func (m *DeleteOneModel) writeModel() M {
	return M{"deleteOne": M{"filter": orEmpty(m.Filter)}}
}

// DeleteManyModel deletes every document matching its filter.
type DeleteManyModel struct {
	Filter any
}

// SetFilter sets the match filter.
func (m *DeleteManyModel) SetFilter(filter any) *DeleteManyModel {
	m.Filter = filter
	return m
}

func (m *DeleteManyModel) writeModel() M {
	return M{"deleteMany": M{"filter": orEmpty(m.Filter)}}
}

// BulkWriteResult reports the aggregate outcome of a BulkWrite.
type BulkWriteResult struct {
	InsertedCount int64
	MatchedCount  int64
	ModifiedCount int64
	DeletedCount  int64
	UpsertedCount int64
	UpsertedIDs   map[string]any
}

// BulkWrite executes the models in order against the collection. The batch
// is not atomic; the first failing operation aborts the remainder.
func (c *Collection) BulkWrite(ctx context.Context, models []WriteModel) (*BulkWriteResult, error) {
	if len(models) == 0 {
		return nil, ErrNilDocument
	}
	operations := make([]any, len(models))
	for i, m := range models {
		if m == nil {
			return nil, ErrNilDocument
		}
		operations[i] = m.writeModel()
	}
	result, err := c.call(ctx, "mongo.bulkWrite", operations)
	if err != nil {
		return nil, err
	}
	doc := resultDoc(result)
	ids, _ := doc["upsertedIds"].(map[string]any)
	return &BulkWriteResult{
		InsertedCount: resultInt(doc, "insertedCount"),
		MatchedCount:  resultInt(doc, "matchedCount"),
		ModifiedCount: resultInt(doc, "modifiedCount"),
		DeletedCount:  resultInt(doc, "deletedCount"),
		UpsertedCount: resultInt(doc, "upsertedCount"),
		UpsertedIDs:   ids,
	}, nil
}
