package pipeline

import (
	"errors"

	"github.com/mondo-io/mondo/internal/engine/value"
)

var (
	errMissingGroupID = errors.New("$group requires an _id expression")
	errBadAccumulator = errors.New("accumulator must be a single-operator document")
)

// bucket collects the documents sharing one group key.
type bucket struct {
	key  value.Value
	docs []*value.Document
}

// group implements the $group stage. Buckets form in first-seen order; keys
// compare by deep equality, hash-indexed to keep grouping linear. The _id
// expression is required; every other spec field is an accumulator document.
func group(docs []*value.Document, spec *value.Document) ([]*value.Document, error) {
	idExpr, ok := spec.Get("_id")
	if !ok {
		return nil, errMissingGroupID
	}

	var order []*bucket
	index := make(map[uint64][]*bucket)
	for _, d := range docs {
		key := Evaluate(d, idExpr)
		h := value.Hash(key)
		var b *bucket
		for _, cand := range index[h] {
			if value.Equal(cand.key, key) {
				b = cand
				break
			}
		}
		if b == nil {
			b = &bucket{key: key}
			index[h] = append(index[h], b)
			order = append(order, b)
		}
		b.docs = append(b.docs, d)
	}

	out := make([]*value.Document, 0, len(order))
	for _, b := range order {
		res := value.NewDocument()
		res.Set("_id", b.key.Clone())
		for _, field := range spec.Keys() {
			if field == "_id" {
				continue
			}
			accSpec, _ := spec.Get(field)
			acc, err := accumulate(b.docs, accSpec)
			if err != nil {
				return nil, err
			}
			res.Set(field, acc)
		}
		out = append(out, res)
	}
	return out, nil
}

// accumulate evaluates one accumulator document ({$sum: expr} etc.) over a
// bucket's documents.
func accumulate(docs []*value.Document, spec value.Value) (value.Value, error) {
	if spec.Kind() != value.KindDocument || spec.DocVal().Len() != 1 {
		return value.Value{}, errBadAccumulator
	}
	op := spec.DocVal().Keys()[0]
	expr, _ := spec.DocVal().Get(op)

	switch op {
	case "$sum":
		sum := 0.0
		for _, d := range docs {
			if v := Evaluate(d, expr); v.Kind() == value.KindNumber {
				sum += v.NumberVal()
			}
		}
		return value.Number(sum), nil
	case "$avg":
		sum, n := 0.0, 0
		for _, d := range docs {
			if v := Evaluate(d, expr); v.Kind() == value.KindNumber {
				sum += v.NumberVal()
				n++
			}
		}
		if n == 0 {
			return value.Null(), nil
		}
		return value.Number(sum / float64(n)), nil
	case "$min":
		return extreme(docs, expr, -1), nil
	case "$max":
		return extreme(docs, expr, 1), nil
	case "$first":
		if len(docs) == 0 {
			return value.Null(), nil
		}
		return Evaluate(docs[0], expr), nil
	case "$last":
		if len(docs) == 0 {
			return value.Null(), nil
		}
		return Evaluate(docs[len(docs)-1], expr), nil
	case "$push":
		elems := make([]value.Value, 0, len(docs))
		for _, d := range docs {
			elems = append(elems, Evaluate(d, expr))
		}
		return value.Array(elems...), nil
	case "$addToSet":
		var elems []value.Value
		for _, d := range docs {
			v := Evaluate(d, expr)
			dup := false
			for _, e := range elems {
				if value.Equal(e, v) {
					dup = true
					break
				}
			}
			if !dup {
				elems = append(elems, v)
			}
		}
		return value.Array(elems...), nil
	default:
		return value.Value{}, errBadAccumulator
	}
}

// extreme returns the minimum (dir=-1) or maximum (dir=1) non-null value of
// the expression across the bucket, or null when no document yields one.
func extreme(docs []*value.Document, expr value.Value, dir int) value.Value {
	best := value.Null()
	found := false
	for _, d := range docs {
		v := Evaluate(d, expr)
		if v.IsNull() {
			continue
		}
		if !found {
			best, found = v, true
			continue
		}
		c := value.Compare(v, best)
		if (dir < 0 && c < 0) || (dir > 0 && c > 0) {
			best = v
		}
	}
	return best
}
