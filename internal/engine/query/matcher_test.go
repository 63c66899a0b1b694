package query

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

func TestMatchesEmptyFilter(t *testing.T) {
	if !Matches(mustDoc(t, `{"a":1}`), mustDoc(t, `{}`)) {
		t.Fatal("empty filter should match every document")
	}
}

func TestMatchesLiteralEquality(t *testing.T) {
	doc := mustDoc(t, `{"name":"ada","age":36,"meta":{"a":1,"b":2}}`)

	cases := []struct {
		filter string
		want   bool
	}{
		{`{"name":"ada"}`, true},
		{`{"name":"bob"}`, false},
		{`{"age":36}`, true},
		{`{"name":"ada","age":36}`, true},
		{`{"name":"ada","age":35}`, false},
		// Nested literal documents compare whole-value, order-independent.
		{`{"meta":{"b":2,"a":1}}`, true},
		{`{"meta":{"a":1}}`, false},
		{`{"missing":"x"}`, false},
	}
	for _, tc := range cases {
		if got := Matches(doc, mustDoc(t, tc.filter)); got != tc.want {
			t.Errorf("Matches(%s) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestMatchesDottedPaths(t *testing.T) {
	doc := mustDoc(t, `{"a":{"b":{"c":5}},"rows":[{"n":1},{"n":2}]}`)

	if !Matches(doc, mustDoc(t, `{"a.b.c":5}`)) {
		t.Fatal("dotted path equality failed")
	}
	if !Matches(doc, mustDoc(t, `{"rows.1.n":2}`)) {
		t.Fatal("numeric segment array index failed")
	}
	if Matches(doc, mustDoc(t, `{"a.b.c.d":5}`)) {
		t.Fatal("path through a scalar should not match")
	}
}

func TestMatchesNullSemantics(t *testing.T) {
	withNull := mustDoc(t, `{"f":null}`)
	without := mustDoc(t, `{"g":1}`)
	withValue := mustDoc(t, `{"f":3}`)

	filter := mustDoc(t, `{"f":null}`)
	if !Matches(withNull, filter) {
		t.Error("null literal should match explicit null")
	}
	if !Matches(without, filter) {
		t.Error("null literal should match absent field")
	}
	if Matches(withValue, filter) {
		t.Error("null literal should not match a present value")
	}

	// $exists distinguishes null from absent.
	exists := mustDoc(t, `{"f":{"$exists":true}}`)
	if !Matches(withNull, exists) {
		t.Error("$exists:true should match explicit null")
	}
	if Matches(without, exists) {
		t.Error("$exists:true should not match absent field")
	}
	if !Matches(without, mustDoc(t, `{"f":{"$exists":false}}`)) {
		t.Error("$exists:false should match absent field")
	}
}

func TestMatchesComparisonOperators(t *testing.T) {
	doc := mustDoc(t, `{"n":10,"s":"m"}`)

	cases := []struct {
		filter string
		want   bool
	}{
		{`{"n":{"$gt":5}}`, true},
		{`{"n":{"$gt":10}}`, false},
		{`{"n":{"$gte":10}}`, true},
		{`{"n":{"$lt":11}}`, true},
		{`{"n":{"$lte":9}}`, false},
		{`{"n":{"$ne":10}}`, false},
		{`{"n":{"$ne":11}}`, true},
		{`{"n":{"$gt":5,"$lt":15}}`, true},
		{`{"n":{"$gt":5,"$lt":8}}`, false},
		{`{"s":{"$gt":"a","$lt":"z"}}`, true},
		// Cross-kind range comparisons never match.
		{`{"s":{"$gt":5}}`, false},
		{`{"n":{"$lt":"z"}}`, false},
	}
	for _, tc := range cases {
		if got := Matches(doc, mustDoc(t, tc.filter)); got != tc.want {
			t.Errorf("Matches(%s) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestMatchesRangeIgnoresNullAndAbsent(t *testing.T) {
	doc := mustDoc(t, `{"f":null}`)
	if Matches(doc, mustDoc(t, `{"f":{"$gte":0}}`)) {
		t.Error("null should not satisfy a range operator")
	}
	if Matches(doc, mustDoc(t, `{"missing":{"$lt":100}}`)) {
		t.Error("absent should not satisfy a range operator")
	}
}

func TestMatchesInNin(t *testing.T) {
	doc := mustDoc(t, `{"color":"red","tags":["a","b"]}`)

	cases := []struct {
		filter string
		want   bool
	}{
		{`{"color":{"$in":["red","blue"]}}`, true},
		{`{"color":{"$in":["green"]}}`, false},
		{`{"color":{"$nin":["green"]}}`, true},
		{`{"color":{"$nin":["red"]}}`, false},
		// Array field: candidates deep-equal the whole value, no
		// element containment.
		{`{"tags":{"$in":["b"]}}`, false},
		{`{"tags":{"$in":[["a","b"]]}}`, true},
		{`{"tags":{"$nin":["b"]}}`, true},
		{`{"tags":{"$nin":[["a","b"]]}}`, false},
		// Null candidate matches absent field.
		{`{"missing":{"$in":[null]}}`, true},
		// Non-array argument degrades to no match.
		{`{"color":{"$in":"red"}}`, false},
	}
	for _, tc := range cases {
		if got := Matches(doc, mustDoc(t, tc.filter)); got != tc.want {
			t.Errorf("Matches(%s) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestMatchesArrayContainment(t *testing.T) {
	doc := mustDoc(t, `{"tags":["go","db",3]}`)

	if !Matches(doc, mustDoc(t, `{"tags":"go"}`)) {
		t.Error("scalar literal should match any array element")
	}
	if !Matches(doc, mustDoc(t, `{"tags":3}`)) {
		t.Error("numeric element containment failed")
	}
	if !Matches(doc, mustDoc(t, `{"tags":["go","db",3]}`)) {
		t.Error("whole-array equality failed")
	}
	if Matches(doc, mustDoc(t, `{"tags":["db","go",3]}`)) {
		t.Error("array equality must be order sensitive")
	}
}

func TestMatchesSizeAllElemMatch(t *testing.T) {
	doc := mustDoc(t, `{"tags":["a","b","c"],"rows":[{"n":1,"ok":true},{"n":5,"ok":false}]}`)

	cases := []struct {
		filter string
		want   bool
	}{
		{`{"tags":{"$size":3}}`, true},
		{`{"tags":{"$size":2}}`, false},
		{`{"rows":{"$size":2}}`, true},
		{`{"tags":{"$all":["a","c"]}}`, true},
		{`{"tags":{"$all":["a","z"]}}`, false},
		// $elemMatch with a filter document: one element must satisfy all.
		{`{"rows":{"$elemMatch":{"n":{"$gt":2},"ok":false}}}`, true},
		{`{"rows":{"$elemMatch":{"n":{"$gt":2},"ok":true}}}`, false},
		// $elemMatch with an operator document applies per scalar element.
		{`{"tags":{"$elemMatch":{"$gt":"b"}}}`, true},
		{`{"tags":{"$elemMatch":{"$gt":"z"}}}`, false},
	}
	for _, tc := range cases {
		if got := Matches(doc, mustDoc(t, tc.filter)); got != tc.want {
			t.Errorf("Matches(%s) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestMatchesRegex(t *testing.T) {
	doc := mustDoc(t, `{"name":"Ada Lovelace"}`)

	cases := []struct {
		filter string
		want   bool
	}{
		{`{"name":{"$regex":"^Ada"}}`, true},
		{`{"name":{"$regex":"^ada"}}`, false},
		{`{"name":{"$regex":"^ada","$options":"i"}}`, true},
		{`{"name":{"$regex":"lace$"}}`, true},
		// Invalid pattern degrades to no-match in lenient mode.
		{`{"name":{"$regex":"("}}`, false},
		// Non-string field never matches.
		{`{"missing":{"$regex":".*"}}`, false},
	}
	for _, tc := range cases {
		if got := Matches(doc, mustDoc(t, tc.filter)); got != tc.want {
			t.Errorf("Matches(%s) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestMatchesLogicalOperators(t *testing.T) {
	doc := mustDoc(t, `{"a":1,"b":2}`)

	cases := []struct {
		filter string
		want   bool
	}{
		{`{"$and":[{"a":1},{"b":2}]}`, true},
		{`{"$and":[{"a":1},{"b":3}]}`, false},
		{`{"$or":[{"a":9},{"b":2}]}`, true},
		{`{"$or":[{"a":9},{"b":9}]}`, false},
		{`{"$nor":[{"a":9},{"b":9}]}`, true},
		{`{"$nor":[{"a":1}]}`, false},
		{`{"a":{"$not":{"$gt":5}}}`, true},
		{`{"a":{"$not":{"$lt":5}}}`, false},
		// Nested logic.
		{`{"$or":[{"$and":[{"a":1},{"b":2}]},{"a":9}]}`, true},
		// Malformed argument degrades to no match.
		{`{"$and":{"a":1}}`, false},
	}
	for _, tc := range cases {
		if got := Matches(doc, mustDoc(t, tc.filter)); got != tc.want {
			t.Errorf("Matches(%s) = %v, want %v", tc.filter, got, tc.want)
		}
	}
}

func TestMatchesUnknownOperatorLenient(t *testing.T) {
	doc := mustDoc(t, `{"a":1}`)
	// Unknown operators are ignored; the remaining conditions decide.
	if !Matches(doc, mustDoc(t, `{"a":{"$bogus":true,"$gt":0}}`)) {
		t.Fatal("unknown operator should be ignored in lenient mode")
	}
}

func TestStrictMatchesSurfacesErrors(t *testing.T) {
	doc := mustDoc(t, `{"a":1,"s":"x"}`)

	_, err := StrictMatches(doc, mustDoc(t, `{"a":{"$bogus":1}}`))
	if !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("expected ErrUnknownOperator, got %v", err)
	}

	_, err = StrictMatches(doc, mustDoc(t, `{"s":{"$regex":"("}}`))
	if !errors.Is(err, ErrInvalidRegex) {
		t.Fatalf("expected ErrInvalidRegex, got %v", err)
	}

	ok, err := StrictMatches(doc, mustDoc(t, `{"a":{"$gte":1}}`))
	if err != nil || !ok {
		t.Fatalf("valid strict match = %v, %v", ok, err)
	}
}
