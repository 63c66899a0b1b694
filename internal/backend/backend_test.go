package backend

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mondo-io/mondo/internal/engine/value"
)

func newTestBackend(t *testing.T, opts Options) *Backend {
	t.Helper()
	b, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

// vals parses each argument as a JSON value; strings need their quotes.
func vals(t *testing.T, srcs ...string) []value.Value {
	t.Helper()
	out := make([]value.Value, len(srcs))
	for i, s := range srcs {
		if err := json.Unmarshal([]byte(s), &out[i]); err != nil {
			t.Fatalf("parse arg %s: %v", s, err)
		}
	}
	return out
}

func invoke(t *testing.T, b *Backend, method string, srcs ...string) value.Value {
	t.Helper()
	res, err := b.Invoke(context.Background(), method, vals(t, srcs...))
	if err != nil {
		t.Fatalf("%s: %v", method, err)
	}
	return res
}

func invokeErr(t *testing.T, b *Backend, method string, srcs ...string) *Error {
	t.Helper()
	_, err := b.Invoke(context.Background(), method, vals(t, srcs...))
	if err == nil {
		t.Fatalf("%s: expected error", method)
	}
	return AsError(err)
}

func num(t *testing.T, v value.Value, field string) float64 {
	t.Helper()
	if v.Kind() != value.KindDocument {
		t.Fatalf("result kind = %v, want document", v.Kind())
	}
	f, ok := v.DocVal().Get(field)
	if !ok {
		t.Fatalf("field %s missing in %v", field, v.DocVal().Keys())
	}
	return f.NumberVal()
}

func TestInvokeUnknownMethod(t *testing.T) {
	b := newTestBackend(t, Options{})
	e := invokeErr(t, b, "mongo.explode")
	if e.Code != CodeCommandNotFound {
		t.Fatalf("code = %d, want %d", e.Code, CodeCommandNotFound)
	}
}

func TestInsertFindRoundTrip(t *testing.T) {
	b := newTestBackend(t, Options{})

	res := invoke(t, b, "mongo.insertOne", `"app"`, `"users"`, `{"name":"ada","age":36}`)
	if id, _ := res.DocVal().Get("insertedId"); id.Kind() != value.KindObjectID {
		t.Fatalf("insertedId kind = %v", id.Kind())
	}

	found := invoke(t, b, "mongo.find", `"app"`, `"users"`, `{"age":{"$gte":30}}`)
	if found.Kind() != value.KindArray || len(found.ArrayVal()) != 1 {
		t.Fatalf("find result = %v", found)
	}
}

func TestInsertOneMissingDocument(t *testing.T) {
	b := newTestBackend(t, Options{})
	e := invokeErr(t, b, "mongo.insertOne", `"app"`, `"users"`)
	if e.Code != CodeBadValue || !strings.Contains(e.Message, "document") {
		t.Fatalf("error = %+v", e)
	}
}

func TestUpdateResultShape(t *testing.T) {
	b := newTestBackend(t, Options{})
	invoke(t, b, "mongo.insertOne", `"app"`, `"c"`, `{"_id":1,"n":1}`)

	res := invoke(t, b, "mongo.updateOne", `"app"`, `"c"`, `{"_id":1}`, `{"$inc":{"n":4}}`)
	if num(t, res, "matchedCount") != 1 || num(t, res, "modifiedCount") != 1 || num(t, res, "upsertedCount") != 0 {
		t.Fatalf("update result = %v", res)
	}

	res = invoke(t, b, "mongo.updateOne", `"app"`, `"c"`, `{"_id":2}`, `{"$set":{"n":1}}`, `{"upsert":true}`)
	if num(t, res, "upsertedCount") != 1 {
		t.Fatalf("upsert result = %v", res)
	}
	if id, _ := res.DocVal().Get("upsertedId"); id.NumberVal() != 2 {
		t.Fatalf("upsertedId = %v, want 2", id)
	}
}

func TestDeleteResultShape(t *testing.T) {
	b := newTestBackend(t, Options{})
	invoke(t, b, "mongo.insertMany", `"app"`, `"c"`, `[{"n":1},{"n":1},{"n":2}]`)

	res := invoke(t, b, "mongo.deleteMany", `"app"`, `"c"`, `{"n":1}`)
	if num(t, res, "deletedCount") != 2 {
		t.Fatalf("delete result = %v", res)
	}
}

func TestFindCursorEnvelope(t *testing.T) {
	b := newTestBackend(t, Options{})
	var docs []string
	for i := 0; i < 5; i++ {
		docs = append(docs, `{"i":`+string(rune('0'+i))+`}`)
	}
	invoke(t, b, "mongo.insertMany", `"app"`, `"c"`, `[`+strings.Join(docs, ",")+`]`)

	res := invoke(t, b, "mongo.find", `"app"`, `"c"`, `{}`, `{"batchSize":2}`)
	if res.Kind() != value.KindDocument {
		t.Fatalf("expected cursor envelope, got %v", res.Kind())
	}
	first, _ := res.DocVal().Get("firstBatch")
	if len(first.ArrayVal()) != 2 {
		t.Fatalf("firstBatch = %d docs, want 2", len(first.ArrayVal()))
	}
	idVal, _ := res.DocVal().Get("cursorId")
	ns, _ := res.DocVal().Get("ns")
	if idVal.NumberVal() == 0 || ns.StringVal() != "app.c" {
		t.Fatalf("envelope = %v", res)
	}

	// Page through getMore until drained.
	total := len(first.ArrayVal())
	id := idVal
	for {
		more := invoke(t, b, "mongo.getMore", mustJSON(t, id), `2`)
		batch, _ := more.DocVal().Get("nextBatch")
		total += len(batch.ArrayVal())
		next, _ := more.DocVal().Get("cursorId")
		if next.NumberVal() == 0 {
			break
		}
		id = next
	}
	if total != 5 {
		t.Fatalf("paged total = %d, want 5", total)
	}
}

func mustJSON(t *testing.T, v value.Value) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestGetMoreUnknownCursor(t *testing.T) {
	b := newTestBackend(t, Options{})
	e := invokeErr(t, b, "mongo.getMore", `12345`)
	if e.Code != CodeCursorNotFound {
		t.Fatalf("code = %d, want %d", e.Code, CodeCursorNotFound)
	}
}

func TestKillCursors(t *testing.T) {
	b := newTestBackend(t, Options{})
	invoke(t, b, "mongo.insertMany", `"app"`, `"c"`, `[{"n":1},{"n":2},{"n":3}]`)
	res := invoke(t, b, "mongo.find", `"app"`, `"c"`, `{}`, `{"batchSize":1}`)
	id, _ := res.DocVal().Get("cursorId")

	killed := invoke(t, b, "mongo.killCursors", `[`+mustJSON(t, id)+`,999]`)
	arr, _ := killed.DocVal().Get("cursorsKilled")
	if len(arr.ArrayVal()) != 1 {
		t.Fatalf("cursorsKilled = %v", arr)
	}
}

func TestAggregatePipeline(t *testing.T) {
	b := newTestBackend(t, Options{})
	invoke(t, b, "mongo.insertMany", `"app"`, `"sales"`,
		`[{"region":"eu","amt":10},{"region":"us","amt":5},{"region":"eu","amt":7}]`)

	res := invoke(t, b, "mongo.aggregate", `"app"`, `"sales"`,
		`[{"$group":{"_id":"$region","total":{"$sum":"$amt"}}},{"$sort":{"total":-1}}]`)
	if res.Kind() != value.KindArray || len(res.ArrayVal()) != 2 {
		t.Fatalf("aggregate = %v", res)
	}
	top := res.ArrayVal()[0].DocVal()
	if id, _ := top.Get("_id"); id.StringVal() != "eu" {
		t.Fatalf("top bucket = %v", top)
	}

	e := invokeErr(t, b, "mongo.aggregate", `"app"`, `"sales"`, `[{"$group":{"x":1}}]`)
	if e.Code != CodeBadValue {
		t.Fatalf("bad pipeline code = %d, want %d", e.Code, CodeBadValue)
	}
}

func TestCreateCollectionWithValidator(t *testing.T) {
	b := newTestBackend(t, Options{})
	invoke(t, b, "mongo.createCollection", `"app"`, `"strict"`,
		`{"validator":{"$jsonSchema":{"type":"object","required":["name"]}}}`)

	e := invokeErr(t, b, "mongo.insertOne", `"app"`, `"strict"`, `{"nope":1}`)
	if e.Code != CodeDocumentValidation {
		t.Fatalf("code = %d, want %d", e.Code, CodeDocumentValidation)
	}

	invoke(t, b, "mongo.insertOne", `"app"`, `"strict"`, `{"name":"ok"}`)

	e = invokeErr(t, b, "mongo.createCollection", `"app"`, `"strict"`, `{}`)
	if e.Code != CodeNamespaceExists {
		t.Fatalf("code = %d, want %d", e.Code, CodeNamespaceExists)
	}
}

func TestBulkWrite(t *testing.T) {
	b := newTestBackend(t, Options{})
	res := invoke(t, b, "mongo.bulkWrite", `"app"`, `"c"`, `[
		{"insertOne":{"document":{"_id":1,"n":1}}},
		{"insertOne":{"document":{"_id":2,"n":2}}},
		{"updateOne":{"filter":{"_id":1},"update":{"$set":{"n":10}}}},
		{"updateOne":{"filter":{"_id":3},"update":{"$set":{"n":3}},"upsert":true}},
		{"deleteOne":{"filter":{"_id":2}}}
	]`)
	if num(t, res, "insertedCount") != 2 || num(t, res, "matchedCount") != 1 ||
		num(t, res, "modifiedCount") != 1 || num(t, res, "deletedCount") != 1 ||
		num(t, res, "upsertedCount") != 1 {
		t.Fatalf("bulk result = %v", res)
	}
	ids, _ := res.DocVal().Get("upsertedIds")
	if up, ok := ids.DocVal().Get("3"); !ok || up.NumberVal() != 3 {
		t.Fatalf("upsertedIds = %v", ids)
	}

	e := invokeErr(t, b, "mongo.bulkWrite", `"app"`, `"c"`, `[{"mystery":{"filter":{}}}]`)
	if e.Code != CodeBadValue {
		t.Fatalf("unknown op code = %d", e.Code)
	}
}

func TestAdminSurface(t *testing.T) {
	b := newTestBackend(t, Options{})
	invoke(t, b, "mongo.insertOne", `"app"`, `"users"`, `{"n":1}`)
	invoke(t, b, "mongo.insertOne", `"other"`, `"misc"`, `{"n":1}`)

	dbs := invoke(t, b, "mongo.listDatabases")
	if len(dbs.ArrayVal()) != 2 {
		t.Fatalf("databases = %v", dbs)
	}
	colls := invoke(t, b, "mongo.listCollections", `"app"`)
	if len(colls.ArrayVal()) != 1 || colls.ArrayVal()[0].StringVal() != "users" {
		t.Fatalf("collections = %v", colls)
	}

	invoke(t, b, "mongo.dropDatabase", `"app"`)
	if colls := invoke(t, b, "mongo.listCollections", `"app"`); len(colls.ArrayVal()) != 0 {
		t.Fatalf("collections after drop = %v", colls)
	}

	ping := invoke(t, b, "mongo.ping")
	if num(t, ping, "ok") != 1 {
		t.Fatalf("ping = %v", ping)
	}

	status := invoke(t, b, "mongo.serverStatus")
	if v, _ := status.DocVal().Get("version"); v.StringVal() == "" {
		t.Fatalf("serverStatus = %v", status)
	}
}

func TestRunCommand(t *testing.T) {
	b := newTestBackend(t, Options{})
	invoke(t, b, "mongo.insertMany", `"app"`, `"c"`, `[{"n":1},{"n":2}]`)

	res := invoke(t, b, "mongo.runCommand", `"app"`, `{"ping":1}`)
	if num(t, res, "ok") != 1 {
		t.Fatalf("ping command = %v", res)
	}

	res = invoke(t, b, "mongo.runCommand", `"app"`, `{"count":"c","query":{"n":{"$gt":1}}}`)
	if num(t, res, "n") != 1 {
		t.Fatalf("count command = %v", res)
	}

	e := invokeErr(t, b, "mongo.runCommand", `"app"`, `{"mystery":1}`)
	if e.Code != CodeCommandNotFound {
		t.Fatalf("unknown command code = %d", e.Code)
	}
}

func TestIndexMethods(t *testing.T) {
	b := newTestBackend(t, Options{})
	name := invoke(t, b, "mongo.createIndex", `"app"`, `"c"`, `{"email":1}`, `{"unique":true}`)
	if name.StringVal() != "email_1" {
		t.Fatalf("index name = %v", name)
	}

	list := invoke(t, b, "mongo.listIndexes", `"app"`, `"c"`)
	if len(list.ArrayVal()) != 2 {
		t.Fatalf("indexes = %v", list)
	}

	invoke(t, b, "mongo.dropIndex", `"app"`, `"c"`, `"email_1"`)
	e := invokeErr(t, b, "mongo.dropIndex", `"app"`, `"c"`, `"email_1"`)
	if e.Code != CodeIndexNotFound {
		t.Fatalf("code = %d, want %d", e.Code, CodeIndexNotFound)
	}
}

// fakePersister records write-through snapshots.
type fakePersister struct {
	mu    sync.Mutex
	saves map[string]int
	dels  map[string]int
}

func (p *fakePersister) Save(_ context.Context, ns string, _ []*value.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saves == nil {
		p.saves = make(map[string]int)
	}
	p.saves[ns]++
	return nil
}

func (p *fakePersister) Delete(_ context.Context, ns string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dels == nil {
		p.dels = make(map[string]int)
	}
	p.dels[ns]++
	return nil
}

func TestMutationsWriteThrough(t *testing.T) {
	p := &fakePersister{}
	b := newTestBackend(t, Options{Persister: p})

	invoke(t, b, "mongo.insertOne", `"app"`, `"c"`, `{"n":1}`)
	invoke(t, b, "mongo.updateOne", `"app"`, `"c"`, `{"n":1}`, `{"$set":{"n":2}}`)
	invoke(t, b, "mongo.dropCollection", `"app"`, `"c"`)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saves["app.c"] != 2 {
		t.Fatalf("saves = %v, want 2 for app.c", p.saves)
	}
	if p.dels["app.c"] != 1 {
		t.Fatalf("deletes = %v, want 1 for app.c", p.dels)
	}
}
