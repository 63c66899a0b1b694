package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Document is an insertion-ordered mapping from field name to Value.
// Field names are unique; Set on an existing name replaces the value in
// place without changing its position.
type Document struct {
	keys   []string
	fields map[string]Value
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{fields: make(map[string]Value)}
}

// DocumentFromMap builds a document from a JSON-shaped map. Keys are added
// in sorted order (Go maps have no insertion order). The extended-JSON
// wrappers {"$oid": hex} and {"$date": ms} collapse into ObjectID/DateTime
// values.
func DocumentFromMap(m map[string]any) (*Document, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := NewDocument()
	for _, k := range keys {
		v, err := FromNative(m[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		d.Set(k, v)
	}
	return d, nil
}

// fromExtendedMap recognizes the single-key {"$oid": ...} and {"$date": ...}
// wire wrappers.
func fromExtendedMap(m map[string]any) (Value, bool, error) {
	if len(m) != 1 {
		return Null(), false, nil
	}
	if raw, ok := m["$oid"]; ok {
		hex, ok := raw.(string)
		if !ok {
			return Null(), true, fmt.Errorf("$oid value must be a string, got %T", raw)
		}
		id, err := ParseObjectID(hex)
		if err != nil {
			return Null(), true, err
		}
		return OID(id), true, nil
	}
	if raw, ok := m["$date"]; ok {
		switch ms := raw.(type) {
		case float64:
			return Date(time.UnixMilli(int64(ms))), true, nil
		case int64:
			return Date(time.UnixMilli(ms)), true, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, ms)
			if err != nil {
				return Null(), true, fmt.Errorf("invalid $date string: %w", err)
			}
			return Date(t), true, nil
		default:
			return Null(), true, fmt.Errorf("$date value must be a number or string, got %T", raw)
		}
	}
	return Null(), false, nil
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns field names in insertion order. The returned slice must not
// be mutated.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	return d.keys
}

// Get returns the value for a field and whether the field exists.
func (d *Document) Get(name string) (Value, bool) {
	if d == nil {
		return Null(), false
	}
	v, ok := d.fields[name]
	return v, ok
}

// Has reports whether the field exists.
func (d *Document) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// Set assigns a field, appending it to the key order if new.
func (d *Document) Set(name string, v Value) {
	if d.fields == nil {
		d.fields = make(map[string]Value)
	}
	if _, exists := d.fields[name]; !exists {
		d.keys = append(d.keys, name)
	}
	d.fields[name] = v
}

// Delete removes a field; removing an absent field is a no-op.
func (d *Document) Delete(name string) {
	if d == nil {
		return
	}
	if _, exists := d.fields[name]; !exists {
		return
	}
	delete(d.fields, name)
	for i, k := range d.keys {
		if k == name {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		keys:   make([]string, len(d.Keys())),
		fields: make(map[string]Value, d.Len()),
	}
	copy(out.keys, d.Keys())
	for _, k := range d.Keys() {
		out.fields[k] = d.fields[k].Clone()
	}
	return out
}

// ToMap converts the document to a plain map (field order is lost).
func (d *Document) ToMap() map[string]any {
	out := make(map[string]any, d.Len())
	for _, k := range d.Keys() {
		out[k] = d.fields[k].ToNative()
	}
	return out
}

// MarshalJSON encodes the document preserving field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object preserving field order, using a token
// scan instead of an intermediate map.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	doc, err := decodeDocument(dec)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// MarshalJSON encodes a value; ObjectID and DateTime use their extended-JSON
// wrappers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := json.Marshal(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindDocument:
		return v.doc.MarshalJSON()
	case KindObjectID:
		return []byte(`{"$oid":` + strconv.Quote(v.oid.Hex()) + `}`), nil
	case KindDateTime:
		return []byte(`{"$date":` + strconv.FormatInt(v.ts.UnixMilli(), 10) + `}`), nil
	default:
		return nil, fmt.Errorf("cannot marshal value kind %v", v.kind)
	}
}

// UnmarshalJSON decodes a value, preserving document field order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			doc, err := decodeDocumentBody(dec)
			if err != nil {
				return Null(), err
			}
			return unwrapExtended(doc)
		case '[':
			var elems []Value
			for dec.More() {
				e, err := decodeValue(dec)
				if err != nil {
					return Null(), err
				}
				elems = append(elems, e)
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return Null(), err
			}
			return Array(elems...), nil
		}
	}
	return Null(), fmt.Errorf("unexpected JSON token %v", tok)
}

func decodeDocument(dec *json.Decoder) (*Document, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}
	return decodeDocumentBody(dec)
}

func decodeDocumentBody(dec *json.Decoder) (*Document, error) {
	doc := NewDocument()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		doc.Set(key, val)
	}
	if _, err := dec.Token(); err != nil { // closing }
		return nil, err
	}
	return doc, nil
}

// unwrapExtended collapses {"$oid": ...} / {"$date": ...} documents into
// their scalar values; any other document passes through.
func unwrapExtended(doc *Document) (Value, error) {
	if doc.Len() != 1 {
		return Doc(doc), nil
	}
	if raw, ok := doc.Get("$oid"); ok && raw.Kind() == KindString {
		id, err := ParseObjectID(raw.StringVal())
		if err != nil {
			return Null(), err
		}
		return OID(id), nil
	}
	if raw, ok := doc.Get("$date"); ok {
		switch raw.Kind() {
		case KindNumber:
			return Date(time.UnixMilli(int64(raw.NumberVal()))), nil
		case KindString:
			t, err := time.Parse(time.RFC3339Nano, raw.StringVal())
			if err != nil {
				return Null(), fmt.Errorf("invalid $date string: %w", err)
			}
			return Date(t), nil
		}
	}
	return Doc(doc), nil
}
