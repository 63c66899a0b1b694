// Package view implements the document sort and projection engines.
package view

import (
	"sort"

	"github.com/mondo-io/mondo/internal/engine/value"
)

// SortKey is one (path, direction) pair of a multi-key sort specification.
type SortKey struct {
	Path string
	Desc bool
}

// ParseSort converts a sort document into ordered sort keys. A negative
// numeric direction sorts descending; anything else ascending.
func ParseSort(spec *value.Document) []SortKey {
	keys := make([]SortKey, 0, spec.Len())
	for _, path := range spec.Keys() {
		dir, _ := spec.Get(path)
		keys = append(keys, SortKey{
			Path: path,
			Desc: dir.Kind() == value.KindNumber && dir.NumberVal() < 0,
		})
	}
	return keys
}

// Sort returns the documents stably ordered by the sort keys, evaluated
// left to right with short-circuit on the first non-equal key. A document
// whose key is absent or null always orders after one whose key is present,
// regardless of direction, so missing values collect at the end.
func Sort(docs []*value.Document, keys []SortKey) []*value.Document {
	out := append([]*value.Document(nil), docs...)
	if len(keys) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return compareDocs(out[i], out[j], keys) < 0
	})
	return out
}

func compareDocs(a, b *value.Document, keys []SortKey) int {
	for _, key := range keys {
		av, aok := value.Resolve(a, key.Path)
		bv, bok := value.Resolve(b, key.Path)
		aMissing := !aok || av.IsNull()
		bMissing := !bok || bv.IsNull()

		switch {
		case aMissing && bMissing:
			continue
		case aMissing:
			return 1
		case bMissing:
			return -1
		}

		c := value.Compare(av, bv)
		if key.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}
