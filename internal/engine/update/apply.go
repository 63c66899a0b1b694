// Package update applies update-operator documents to documents.
//
// Apply is pure: the input document is never mutated, and operators are
// applied in a fixed order so later operators observe earlier effects
// within the same call. Malformed operator arguments degrade to no-ops;
// unrecognized top-level keys are ignored.
package update

import (
	"time"

	"github.com/mondo-io/mondo/internal/engine/query"
	"github.com/mondo-io/mondo/internal/engine/value"
	"github.com/mondo-io/mondo/internal/engine/view"
)

// operatorOrder fixes the application order of update operators.
var operatorOrder = []string{
	"$set", "$unset", "$inc", "$mul", "$min", "$max",
	"$rename", "$push", "$addToSet", "$pop", "$pull", "$currentDate",
}

// now is swapped in tests to pin $currentDate.
var now = time.Now

// Apply returns a new document with the update specification applied.
func Apply(doc, spec *value.Document) *value.Document {
	out := doc.Clone()
	for _, op := range operatorOrder {
		argsVal, ok := spec.Get(op)
		if !ok || argsVal.Kind() != value.KindDocument {
			continue
		}
		args := argsVal.DocVal()
		for _, path := range args.Keys() {
			arg, _ := args.Get(path)
			applyOne(out, op, path, arg)
		}
	}
	return out
}

func applyOne(doc *value.Document, op, path string, arg value.Value) {
	switch op {
	case "$set":
		value.SetPath(doc, path, arg.Clone())
	case "$unset":
		value.DeletePath(doc, path)
	case "$inc":
		applyArith(doc, path, arg, func(cur, n float64) float64 { return cur + n })
	case "$mul":
		applyArith(doc, path, arg, func(cur, n float64) float64 { return cur * n })
	case "$min":
		applyMinMax(doc, path, arg, -1)
	case "$max":
		applyMinMax(doc, path, arg, 1)
	case "$rename":
		applyRename(doc, path, arg)
	case "$push":
		applyPush(doc, path, arg)
	case "$addToSet":
		applyAddToSet(doc, path, arg)
	case "$pop":
		applyPop(doc, path, arg)
	case "$pull":
		applyPull(doc, path, arg)
	case "$currentDate":
		applyCurrentDate(doc, path, arg)
	}
}

// applyArith implements $inc/$mul: a missing or non-numeric current value
// counts as zero.
func applyArith(doc *value.Document, path string, arg value.Value, f func(cur, n float64) float64) {
	if arg.Kind() != value.KindNumber {
		return
	}
	cur := 0.0
	if v, ok := value.Resolve(doc, path); ok && v.Kind() == value.KindNumber {
		cur = v.NumberVal()
	}
	value.SetPath(doc, path, value.Number(f(cur, arg.NumberVal())))
}

// applyMinMax assigns arg only when it orders before (dir=-1) or after
// (dir=1) the current value, or when the field is absent.
func applyMinMax(doc *value.Document, path string, arg value.Value, dir int) {
	cur, ok := value.Resolve(doc, path)
	if !ok {
		value.SetPath(doc, path, arg.Clone())
		return
	}
	c := value.Compare(arg, cur)
	if (dir < 0 && c < 0) || (dir > 0 && c > 0) {
		value.SetPath(doc, path, arg.Clone())
	}
}

func applyRename(doc *value.Document, path string, arg value.Value) {
	if arg.Kind() != value.KindString {
		return
	}
	v, ok := value.Resolve(doc, path)
	if !ok {
		return
	}
	value.DeletePath(doc, path)
	value.SetPath(doc, arg.StringVal(), v)
}

func applyPush(doc *value.Document, path string, arg value.Value) {
	arr, ok := arrayAt(doc, path)
	if !ok {
		return
	}

	each, mods, isModifier := pushModifiers(arg)
	if !isModifier {
		arr = append(arr, arg.Clone())
		value.SetPath(doc, path, value.Array(arr...))
		return
	}

	pos := len(arr)
	if p, ok := mods.Get("$position"); ok && p.Kind() == value.KindNumber {
		pos = clamp(int(p.NumberVal()), 0, len(arr))
	}
	inserted := make([]value.Value, 0, len(arr)+len(each))
	inserted = append(inserted, arr[:pos]...)
	for _, e := range each {
		inserted = append(inserted, e.Clone())
	}
	inserted = append(inserted, arr[pos:]...)

	if s, ok := mods.Get("$sort"); ok {
		inserted = sortPushed(inserted, s)
	}
	if s, ok := mods.Get("$slice"); ok && s.Kind() == value.KindNumber {
		inserted = slicePushed(inserted, int(s.NumberVal()))
	}
	value.SetPath(doc, path, value.Array(inserted...))
}

// pushModifiers extracts $each and the modifier document when arg is a
// modifier form ({$each: [...], ...}).
func pushModifiers(arg value.Value) ([]value.Value, *value.Document, bool) {
	if arg.Kind() != value.KindDocument {
		return nil, nil, false
	}
	eachVal, ok := arg.DocVal().Get("$each")
	if !ok || eachVal.Kind() != value.KindArray {
		return nil, nil, false
	}
	return eachVal.ArrayVal(), arg.DocVal(), true
}

// sortPushed applies the $sort modifier: a numeric direction sorts whole
// elements by natural order, a document sorts element documents by the
// multi-key sort engine.
func sortPushed(elems []value.Value, spec value.Value) []value.Value {
	switch spec.Kind() {
	case value.KindNumber:
		desc := spec.NumberVal() < 0
		out := append([]value.Value(nil), elems...)
		stableSortValues(out, desc)
		return out
	case value.KindDocument:
		keys := view.ParseSort(spec.DocVal())
		docs := make([]*value.Document, 0, len(elems))
		rest := make([]value.Value, 0)
		for _, e := range elems {
			if e.Kind() == value.KindDocument {
				docs = append(docs, e.DocVal())
			} else {
				rest = append(rest, e)
			}
		}
		sorted := view.Sort(docs, keys)
		out := make([]value.Value, 0, len(elems))
		for _, d := range sorted {
			out = append(out, value.Doc(d))
		}
		return append(out, rest...)
	default:
		return elems
	}
}

func stableSortValues(elems []value.Value, desc bool) {
	// Insertion sort keeps it stable without an extra key closure.
	for i := 1; i < len(elems); i++ {
		for j := i; j > 0; j-- {
			c := value.Compare(elems[j-1], elems[j])
			if desc {
				c = -c
			}
			if c <= 0 {
				break
			}
			elems[j-1], elems[j] = elems[j], elems[j-1]
		}
	}
}

// slicePushed implements $slice: non-negative keeps the first n elements,
// negative keeps the last n.
func slicePushed(elems []value.Value, n int) []value.Value {
	switch {
	case n >= 0 && n < len(elems):
		return elems[:n]
	case n < 0 && -n < len(elems):
		return elems[len(elems)+n:]
	default:
		return elems
	}
}

func applyAddToSet(doc *value.Document, path string, arg value.Value) {
	arr, ok := arrayAt(doc, path)
	if !ok {
		return
	}
	candidates := []value.Value{arg}
	if each, _, isModifier := pushModifiers(arg); isModifier {
		candidates = each
	}
	for _, c := range candidates {
		if !containsValue(arr, c) {
			arr = append(arr, c.Clone())
		}
	}
	value.SetPath(doc, path, value.Array(arr...))
}

func applyPop(doc *value.Document, path string, arg value.Value) {
	v, ok := value.Resolve(doc, path)
	if !ok || v.Kind() != value.KindArray || len(v.ArrayVal()) == 0 || arg.Kind() != value.KindNumber {
		return
	}
	elems := v.ArrayVal()
	if arg.NumberVal() >= 0 {
		elems = elems[:len(elems)-1]
	} else {
		elems = elems[1:]
	}
	value.SetPath(doc, path, value.Array(elems...))
}

// applyPull removes elements that deep-equal a literal argument, or that
// satisfy an operator document, evaluated through the filter matcher
// against a synthetic single-field document.
func applyPull(doc *value.Document, path string, arg value.Value) {
	v, ok := value.Resolve(doc, path)
	if !ok || v.Kind() != value.KindArray {
		return
	}

	var keep []value.Value
	if arg.IsOperatorDoc() {
		filter := value.NewDocument()
		filter.Set("elem", arg)
		for _, e := range v.ArrayVal() {
			probe := value.NewDocument()
			probe.Set("elem", e)
			if !query.Matches(probe, filter) {
				keep = append(keep, e)
			}
		}
	} else {
		for _, e := range v.ArrayVal() {
			if !value.Equal(e, arg) {
				keep = append(keep, e)
			}
		}
	}
	value.SetPath(doc, path, value.Array(keep...))
}

func applyCurrentDate(doc *value.Document, path string, arg value.Value) {
	switch {
	case arg.Kind() == value.KindBool && arg.BoolVal():
		value.SetPath(doc, path, value.Date(now()))
	case arg.Kind() == value.KindDocument:
		t, _ := arg.DocVal().Get("$type")
		switch t.StringVal() {
		case "date":
			value.SetPath(doc, path, value.Date(now()))
		case "timestamp":
			ts := value.NewDocument()
			ts.Set("t", value.Int(now().Unix()))
			ts.Set("i", value.Int(1))
			value.SetPath(doc, path, value.Doc(ts))
		}
	}
}

// arrayAt resolves the array at path, treating an absent field as an empty
// array; an existing non-array value makes the operation a no-op.
func arrayAt(doc *value.Document, path string) ([]value.Value, bool) {
	v, ok := value.Resolve(doc, path)
	if !ok {
		return nil, true
	}
	if v.Kind() != value.KindArray {
		return nil, false
	}
	return append([]value.Value(nil), v.ArrayVal()...), true
}

func containsValue(arr []value.Value, v value.Value) bool {
	for _, e := range arr {
		if value.Equal(e, v) {
			return true
		}
	}
	return false
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
