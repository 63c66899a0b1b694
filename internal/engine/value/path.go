package value

import (
	"strconv"
	"strings"
)

// Resolve walks a dot-notation path through nested documents and arrays.
// Numeric segments index into arrays. It returns the value and true when the
// full path exists; any missing, null, or non-container intermediate yields
// (Null, false) — absence, never an error.
func Resolve(doc *Document, path string) (Value, bool) {
	segments := strings.Split(path, ".")
	cur := Doc(doc)
	for _, seg := range segments {
		switch cur.Kind() {
		case KindDocument:
			v, ok := cur.DocVal().Get(seg)
			if !ok {
				return Null(), false
			}
			cur = v
		case KindArray:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.ArrayVal()) {
				return Null(), false
			}
			cur = cur.ArrayVal()[idx]
		default:
			return Null(), false
		}
	}
	return cur, true
}

// SetPath assigns a value at a dot-notation path, creating intermediate
// documents for every missing segment but the last. Intermediates that exist
// with a non-document value are replaced by documents. The document is
// mutated in place; callers own copy-on-write at their entry points.
func SetPath(doc *Document, path string, v Value) {
	segments := strings.Split(path, ".")
	cur := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur.Get(seg)
		if !ok || next.Kind() != KindDocument {
			nd := NewDocument()
			cur.Set(seg, Doc(nd))
			cur = nd
			continue
		}
		cur = next.DocVal()
	}
	cur.Set(segments[len(segments)-1], v)
}

// DeletePath removes the leaf field of a dot-notation path. Absent parents
// make the deletion a no-op.
func DeletePath(doc *Document, path string) {
	segments := strings.Split(path, ".")
	cur := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := cur.Get(seg)
		if !ok || next.Kind() != KindDocument {
			return
		}
		cur = next.DocVal()
	}
	cur.Delete(segments[len(segments)-1])
}
