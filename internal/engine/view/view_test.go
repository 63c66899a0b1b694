package view

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mondo-io/mondo/internal/engine/value"
)

func mustDoc(t *testing.T, src string) *value.Document {
	t.Helper()
	var d value.Document
	if err := json.Unmarshal([]byte(src), &d); err != nil {
		t.Fatalf("parse %s: %v", src, err)
	}
	return &d
}

func docs(t *testing.T, srcs ...string) []*value.Document {
	t.Helper()
	out := make([]*value.Document, len(srcs))
	for i, s := range srcs {
		out[i] = mustDoc(t, s)
	}
	return out
}

func names(t *testing.T, ds []*value.Document) []string {
	t.Helper()
	out := make([]string, len(ds))
	for i, d := range ds {
		v, _ := d.Get("name")
		out[i] = v.StringVal()
	}
	return out
}

func assertOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

// --- Sort ---

func TestSortSingleKey(t *testing.T) {
	in := docs(t,
		`{"name":"b","n":2}`,
		`{"name":"a","n":1}`,
		`{"name":"c","n":3}`,
	)
	asc := Sort(in, ParseSort(mustDoc(t, `{"n":1}`)))
	assertOrder(t, names(t, asc), []string{"a", "b", "c"})

	desc := Sort(in, ParseSort(mustDoc(t, `{"n":-1}`)))
	assertOrder(t, names(t, desc), []string{"c", "b", "a"})

	// Input order untouched.
	assertOrder(t, names(t, in), []string{"b", "a", "c"})
}

func TestSortMultiKeyShortCircuit(t *testing.T) {
	in := docs(t,
		`{"name":"x","g":1,"n":2}`,
		`{"name":"y","g":2,"n":1}`,
		`{"name":"z","g":1,"n":1}`,
	)
	out := Sort(in, ParseSort(mustDoc(t, `{"g":1,"n":-1}`)))
	assertOrder(t, names(t, out), []string{"x", "z", "y"})
}

func TestSortMissingAndNullOrderLast(t *testing.T) {
	in := docs(t,
		`{"name":"missing"}`,
		`{"name":"low","n":1}`,
		`{"name":"null","n":null}`,
		`{"name":"high","n":9}`,
	)
	asc := Sort(in, ParseSort(mustDoc(t, `{"n":1}`)))
	got := names(t, asc)
	if got[0] != "low" || got[1] != "high" {
		t.Fatalf("present values first, got %v", got)
	}
	if got[2] != "missing" || got[3] != "null" {
		t.Fatalf("missing/null should keep relative order at the end, got %v", got)
	}

	// Direction does not rescue missing values from the end.
	desc := Sort(in, ParseSort(mustDoc(t, `{"n":-1}`)))
	got = names(t, desc)
	if got[0] != "high" || got[1] != "low" {
		t.Fatalf("desc present values first, got %v", got)
	}
	if got[2] != "missing" || got[3] != "null" {
		t.Fatalf("desc missing/null at the end, got %v", got)
	}
}

func TestSortIsStable(t *testing.T) {
	in := docs(t,
		`{"name":"first","n":1}`,
		`{"name":"second","n":1}`,
		`{"name":"third","n":1}`,
	)
	out := Sort(in, ParseSort(mustDoc(t, `{"n":1}`)))
	assertOrder(t, names(t, out), []string{"first", "second", "third"})
}

func TestSortEmptySpecIsIdentity(t *testing.T) {
	in := docs(t, `{"name":"b"}`, `{"name":"a"}`)
	out := Sort(in, nil)
	assertOrder(t, names(t, out), []string{"b", "a"})
}

// --- Project ---

func TestProjectInclusion(t *testing.T) {
	doc := mustDoc(t, `{"_id":1,"a":{"b":2,"c":3},"d":4}`)

	out, err := Project(doc, mustDoc(t, `{"a.b":1,"d":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := json.Marshal(out)
	if string(got) != `{"_id":1,"a":{"b":2},"d":4}` {
		t.Fatalf("projected = %s", got)
	}
}

func TestProjectInclusionWithoutID(t *testing.T) {
	doc := mustDoc(t, `{"_id":1,"a":2,"b":3}`)
	out, err := Project(doc, mustDoc(t, `{"a":1,"_id":0}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := json.Marshal(out)
	if string(got) != `{"a":2}` {
		t.Fatalf("projected = %s", got)
	}
}

func TestProjectExclusion(t *testing.T) {
	doc := mustDoc(t, `{"_id":1,"a":{"b":2,"c":3},"d":4}`)
	out, err := Project(doc, mustDoc(t, `{"a.b":0}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := json.Marshal(out)
	if string(got) != `{"_id":1,"a":{"c":3},"d":4}` {
		t.Fatalf("projected = %s", got)
	}
}

func TestProjectMixedIsError(t *testing.T) {
	doc := mustDoc(t, `{"a":1,"b":2}`)
	_, err := Project(doc, mustDoc(t, `{"a":1,"b":0}`))
	if !errors.Is(err, ErrMixedProjection) {
		t.Fatalf("expected ErrMixedProjection, got %v", err)
	}
}

func TestProjectEmptySpecClones(t *testing.T) {
	doc := mustDoc(t, `{"a":1}`)
	out, err := Project(doc, mustDoc(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out.Set("a", value.Int(9))
	if v, _ := doc.Get("a"); v.NumberVal() != 1 {
		t.Fatal("projection must not alias the source document")
	}
}

func TestProjectMissingIncludedPathOmitted(t *testing.T) {
	doc := mustDoc(t, `{"_id":1,"a":2}`)
	out, err := Project(doc, mustDoc(t, `{"a":1,"ghost":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Has("ghost") {
		t.Fatal("absent included path should not materialize")
	}
}
