// Package value defines the dynamic value universe of the query engine:
// a closed tagged union over the types a document field can hold, an
// insertion-ordered Document, dot-notation path resolution, and the
// structural comparator shared by the matcher, updater and pipeline.
package value

import (
	"fmt"
	"time"
)

// Kind identifies which member of the value union a Value holds.
type Kind uint8

// Value kinds, in BSON comparison rank order (see Compare).
const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindDocument
	KindArray
	KindObjectID
	KindBool
	KindDateTime
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDocument:
		return "document"
	case KindArray:
		return "array"
	case KindObjectID:
		return "objectId"
	case KindBool:
		return "bool"
	case KindDateTime:
		return "date"
	default:
		return "unknown"
	}
}

// Value is one element of the document data model. The zero Value is Null.
// Values are immutable by convention: transformations return new values and
// Clone performs a deep copy wherever aliasing would be observable.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	doc  *Document
	oid  ObjectID
	ts   time.Time
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value (all numbers are float64).
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int returns a numeric value from an integer.
func Int(i int64) Value { return Number(float64(i)) }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array returns an array value holding the given elements.
func Array(elems ...Value) Value { return Value{kind: KindArray, arr: elems} }

// Doc wraps a Document as a value.
func Doc(d *Document) Value {
	if d == nil {
		d = NewDocument()
	}
	return Value{kind: KindDocument, doc: d}
}

// OID returns an ObjectID value.
func OID(id ObjectID) Value { return Value{kind: KindObjectID, oid: id} }

// Date returns a DateTime value (truncated to millisecond precision, UTC).
func Date(t time.Time) Value {
	return Value{kind: KindDateTime, ts: t.UTC().Truncate(time.Millisecond)}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolVal returns the boolean payload (false for other kinds).
func (v Value) BoolVal() bool { return v.kind == KindBool && v.b }

// NumberVal returns the numeric payload (0 for other kinds).
func (v Value) NumberVal() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.num
}

// StringVal returns the string payload ("" for other kinds).
func (v Value) StringVal() string {
	if v.kind != KindString {
		return ""
	}
	return v.str
}

// ArrayVal returns the array elements (nil for other kinds). The returned
// slice must not be mutated by the caller.
func (v Value) ArrayVal() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// DocVal returns the document payload (nil for other kinds). The returned
// document must not be mutated by the caller; Clone first.
func (v Value) DocVal() *Document {
	if v.kind != KindDocument {
		return nil
	}
	return v.doc
}

// OIDVal returns the ObjectID payload (zero for other kinds).
func (v Value) OIDVal() ObjectID {
	if v.kind != KindObjectID {
		return ObjectID{}
	}
	return v.oid
}

// TimeVal returns the DateTime payload (zero for other kinds).
func (v Value) TimeVal() time.Time {
	if v.kind != KindDateTime {
		return time.Time{}
	}
	return v.ts
}

// IsOperatorDoc reports whether the value is a non-empty document whose keys
// all begin with '$'. Filters use this to tell operator documents apart from
// literal nested documents.
func (v Value) IsOperatorDoc() bool {
	if v.kind != KindDocument || v.doc.Len() == 0 {
		return false
	}
	for _, k := range v.doc.Keys() {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		elems := make([]Value, len(v.arr))
		for i, e := range v.arr {
			elems[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: elems}
	case KindDocument:
		return Doc(v.doc.Clone())
	default:
		return v
	}
}

// FromNative converts a JSON-shaped Go value (map[string]any, []any,
// string, bool, nil, numeric types, time.Time, ObjectID, Value, *Document)
// into a Value. Map keys are visited in sorted order since Go maps carry no
// insertion order; callers that need field order build Documents directly
// or decode from JSON.
func FromNative(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Document:
		return Doc(x), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case time.Time:
		return Date(x), nil
	case ObjectID:
		return OID(x), nil
	case []any:
		elems := make([]Value, len(x))
		for i, e := range x {
			ev, err := FromNative(e)
			if err != nil {
				return Null(), err
			}
			elems[i] = ev
		}
		return Array(elems...), nil
	case map[string]any:
		if special, ok, err := fromExtendedMap(x); ok || err != nil {
			return special, err
		}
		d, err := DocumentFromMap(x)
		if err != nil {
			return Null(), err
		}
		return Doc(d), nil
	default:
		return Null(), fmt.Errorf("unsupported value type %T", v)
	}
}

// ToNative converts a Value back to its JSON-shaped Go representation.
// ObjectID and DateTime become their extended-JSON wrappers so the
// conversion round-trips through FromNative/DocumentFromMap.
func (v Value) ToNative() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToNative()
		}
		return out
	case KindDocument:
		return v.doc.ToMap()
	case KindObjectID:
		return map[string]any{"$oid": v.oid.Hex()}
	case KindDateTime:
		return map[string]any{"$date": float64(v.ts.UnixMilli())}
	default:
		return nil
	}
}
