package value

import (
	"encoding/json"
	"testing"
	"time"
)

func mustDoc(t *testing.T, src string) *Document {
	t.Helper()
	var d Document
	if err := json.Unmarshal([]byte(src), &d); err != nil {
		t.Fatalf("parse %s: %v", src, err)
	}
	return &d
}

// --- Document ---

func TestDocumentPreservesInsertionOrder(t *testing.T) {
	d := NewDocument()
	d.Set("z", Int(1))
	d.Set("a", Int(2))
	d.Set("m", Int(3))

	keys := d.Keys()
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Fatalf("keys = %v, want [z a m]", keys)
	}

	// Overwriting keeps the original position.
	d.Set("a", Int(9))
	if keys := d.Keys(); keys[1] != "a" {
		t.Fatalf("keys after overwrite = %v", keys)
	}
	if v, _ := d.Get("a"); v.NumberVal() != 9 {
		t.Fatalf("a = %v, want 9", v.NumberVal())
	}
}

func TestDocumentJSONRoundTripKeepsOrder(t *testing.T) {
	src := `{"z":1,"a":{"nested":true,"alpha":"x"},"m":[1,"two",null]}`
	d := mustDoc(t, src)

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != src {
		t.Fatalf("round trip = %s, want %s", out, src)
	}
}

func TestDocumentDelete(t *testing.T) {
	d := mustDoc(t, `{"a":1,"b":2,"c":3}`)
	d.Delete("b")
	if d.Has("b") {
		t.Fatal("b still present after Delete")
	}
	if keys := d.Keys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Fatalf("keys = %v, want [a c]", keys)
	}
	d.Delete("missing") // no-op
}

func TestCloneIsDeep(t *testing.T) {
	d := mustDoc(t, `{"nested":{"n":1},"arr":[1,2]}`)
	c := d.Clone()

	nested, _ := c.Get("nested")
	nested.DocVal().Set("n", Int(99))

	orig, _ := d.Get("nested")
	if v, _ := orig.DocVal().Get("n"); v.NumberVal() != 1 {
		t.Fatalf("clone mutation leaked into original: n = %v", v.NumberVal())
	}
}

// --- extended JSON ---

func TestExtendedJSONObjectID(t *testing.T) {
	id := NewObjectID()
	d := NewDocument()
	d.Set("_id", OID(id))

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back := mustDoc(t, string(out))
	v, _ := back.Get("_id")
	if v.Kind() != KindObjectID {
		t.Fatalf("kind = %v, want objectId", v.Kind())
	}
	if v.OIDVal() != id {
		t.Fatalf("oid = %v, want %v", v.OIDVal(), id)
	}
}

func TestExtendedJSONDate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	back := mustDoc(t, `{"when":{"$date":1709296200000}}`)
	v, _ := back.Get("when")
	if v.Kind() != KindDateTime {
		t.Fatalf("kind = %v, want date", v.Kind())
	}
	if !v.TimeVal().Equal(ts) {
		t.Fatalf("time = %v, want %v", v.TimeVal(), ts)
	}
}

func TestTwoKeyDollarDocStaysDocument(t *testing.T) {
	d := mustDoc(t, `{"f":{"$oid":"x","$extra":1}}`)
	v, _ := d.Get("f")
	if v.Kind() != KindDocument {
		t.Fatalf("kind = %v, want document", v.Kind())
	}
}

// --- Resolve / SetPath / DeletePath ---

func TestResolveNestedAndArrayIndex(t *testing.T) {
	d := mustDoc(t, `{"a":{"b":{"c":5}},"tags":["x","y"],"rows":[{"n":1},{"n":2}]}`)

	cases := []struct {
		path string
		ok   bool
		want float64
	}{
		{"a.b.c", true, 5},
		{"rows.1.n", true, 2},
		{"a.b.missing", false, 0},
		{"tags.5", false, 0},
		{"a.b.c.d", false, 0},
	}
	for _, tc := range cases {
		v, ok := Resolve(d, tc.path)
		if ok != tc.ok {
			t.Errorf("Resolve(%s) ok = %v, want %v", tc.path, ok, tc.ok)
			continue
		}
		if ok && v.NumberVal() != tc.want {
			t.Errorf("Resolve(%s) = %v, want %v", tc.path, v.NumberVal(), tc.want)
		}
	}

	if v, ok := Resolve(d, "tags.1"); !ok || v.StringVal() != "y" {
		t.Fatalf("tags.1 = %v/%v, want y", v, ok)
	}
}

func TestSetPathCreatesIntermediates(t *testing.T) {
	d := NewDocument()
	SetPath(d, "a.b.c", Int(1))
	if v, ok := Resolve(d, "a.b.c"); !ok || v.NumberVal() != 1 {
		t.Fatalf("a.b.c = %v/%v", v, ok)
	}

	// A scalar intermediate is replaced by a document.
	d2 := mustDoc(t, `{"a":5}`)
	SetPath(d2, "a.b", String("deep"))
	if v, ok := Resolve(d2, "a.b"); !ok || v.StringVal() != "deep" {
		t.Fatalf("a.b = %v/%v", v, ok)
	}
}

func TestDeletePathAbsentParentIsNoop(t *testing.T) {
	d := mustDoc(t, `{"a":{"b":1}}`)
	DeletePath(d, "x.y.z")
	DeletePath(d, "a.b")
	if _, ok := Resolve(d, "a.b"); ok {
		t.Fatal("a.b survived DeletePath")
	}
}

// --- Compare / Equal / Hash ---

func TestCompareKindRank(t *testing.T) {
	// null < number < string < document < array < objectId < bool < date
	ordered := []Value{
		Null(),
		Number(3),
		String("s"),
		Doc(mustDoc(t, `{"a":1}`)),
		Array(Int(1)),
		OID(NewObjectID()),
		Bool(false),
		Date(time.Now()),
	}
	for i := 0; i < len(ordered)-1; i++ {
		if Compare(ordered[i], ordered[i+1]) >= 0 {
			t.Errorf("rank %d (%v) should order before rank %d (%v)",
				i, ordered[i].Kind(), i+1, ordered[i+1].Kind())
		}
	}
}

func TestCompareSameKind(t *testing.T) {
	if Compare(Number(1), Number(2)) >= 0 {
		t.Error("1 should order before 2")
	}
	if Compare(String("b"), String("a")) <= 0 {
		t.Error("b should order after a")
	}
	if Compare(Bool(false), Bool(true)) >= 0 {
		t.Error("false should order before true")
	}
	if Compare(Array(Int(1), Int(2)), Array(Int(1), Int(2), Int(3))) >= 0 {
		t.Error("shorter array with equal prefix should order first")
	}
}

func TestEqualDocumentOrderIndependent(t *testing.T) {
	a := mustDoc(t, `{"x":1,"y":2}`)
	b := mustDoc(t, `{"y":2,"x":1}`)
	if !Equal(Doc(a), Doc(b)) {
		t.Fatal("documents with same fields in different order should be Equal")
	}
	if Hash(Doc(a)) != Hash(Doc(b)) {
		t.Fatal("equal documents must hash equal")
	}
}

func TestEqualArrayOrderSensitive(t *testing.T) {
	if Equal(Array(Int(1), Int(2)), Array(Int(2), Int(1))) {
		t.Fatal("arrays with different element order should not be Equal")
	}
}

// --- conversion ---

func TestFromNativeToNativeRoundTrip(t *testing.T) {
	in := map[string]any{
		"s":    "str",
		"n":    1.5,
		"b":    true,
		"null": nil,
		"arr":  []any{1.0, "two"},
		"doc":  map[string]any{"inner": 2.0},
	}
	v, err := FromNative(in)
	if err != nil {
		t.Fatalf("FromNative: %v", err)
	}
	out, ok := v.ToNative().(map[string]any)
	if !ok {
		t.Fatalf("ToNative type = %T", v.ToNative())
	}
	if out["s"] != "str" || out["n"] != 1.5 || out["b"] != true || out["null"] != nil {
		t.Fatalf("scalars = %+v", out)
	}
	if arr := out["arr"].([]any); len(arr) != 2 || arr[0] != 1.0 {
		t.Fatalf("arr = %v", arr)
	}
}

func TestFromNativeRejectsUnknownType(t *testing.T) {
	if _, err := FromNative(struct{}{}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

// --- ObjectID ---

func TestObjectIDHexRoundTrip(t *testing.T) {
	id := NewObjectID()
	hex := id.Hex()
	if len(hex) != 24 {
		t.Fatalf("hex length = %d, want 24", len(hex))
	}
	back, err := ParseObjectID(hex)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if back != id {
		t.Fatalf("round trip = %v, want %v", back, id)
	}
}

func TestParseObjectIDRejectsBadInput(t *testing.T) {
	for _, bad := range []string{"", "zzzz", "0123456789abcdef0123456"} {
		if _, err := ParseObjectID(bad); err == nil {
			t.Errorf("ParseObjectID(%q) should fail", bad)
		}
	}
}

func TestNewObjectIDsDiffer(t *testing.T) {
	a, b := NewObjectID(), NewObjectID()
	if a == b {
		t.Fatal("two fresh ObjectIDs should not collide")
	}
}
