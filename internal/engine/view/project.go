package view

import (
	"errors"
	"strings"

	"github.com/mondo-io/mondo/internal/engine/value"
)

// ErrMixedProjection is returned when a projection mixes inclusions and
// exclusions beyond the permitted _id exception.
var ErrMixedProjection = errors.New("projection cannot mix inclusion and exclusion")

// Project applies an inclusion/exclusion projection to a document,
// returning a new document. A projection is pure-inclusion (listed paths
// plus _id unless _id is explicitly excluded) or pure-exclusion (everything
// except listed paths); the only permitted mix is excluding _id alongside
// inclusions. An empty spec returns a clone.
func Project(doc, spec *value.Document) (*value.Document, error) {
	if spec.Len() == 0 {
		return doc.Clone(), nil
	}

	var includes, excludes []string
	excludeID := false
	for _, path := range spec.Keys() {
		v, _ := spec.Get(path)
		if included(v) {
			includes = append(includes, path)
		} else if path == "_id" {
			excludeID = true
		} else {
			excludes = append(excludes, path)
		}
	}

	if len(includes) > 0 && len(excludes) > 0 {
		return nil, ErrMixedProjection
	}

	if len(includes) > 0 {
		out := value.NewDocument()
		if !excludeID {
			if id, ok := doc.Get("_id"); ok {
				out.Set("_id", id.Clone())
			}
		}
		for _, path := range includes {
			if v, ok := value.Resolve(doc, path); ok {
				copyPath(out, path, v)
			}
		}
		return out, nil
	}

	out := doc.Clone()
	if excludeID {
		out.Delete("_id")
	}
	for _, path := range excludes {
		value.DeletePath(out, path)
	}
	return out, nil
}

// included treats 0 and false as exclusion; every other value includes.
func included(v value.Value) bool {
	switch v.Kind() {
	case value.KindNumber:
		return v.NumberVal() != 0
	case value.KindBool:
		return v.BoolVal()
	default:
		return true
	}
}

// copyPath writes a resolved value into out, preserving nesting for dotted
// paths.
func copyPath(out *value.Document, path string, v value.Value) {
	if !strings.Contains(path, ".") {
		out.Set(path, v.Clone())
		return
	}
	value.SetPath(out, path, v.Clone())
}
