// Package pipeline executes aggregation pipelines over document sequences.
//
// Stages run strictly left to right, each consuming the previous stage's
// output. Supported stages: $match, $sort, $limit, $skip, $project, $count,
// $group. A stage document with an unrecognized key is skipped, keeping
// evaluation total; $project surfaces its one caller-facing shape error
// (mixed inclusion/exclusion).
package pipeline

import (
	"fmt"

	"github.com/mondo-io/mondo/internal/engine/query"
	"github.com/mondo-io/mondo/internal/engine/value"
	"github.com/mondo-io/mondo/internal/engine/view"
)

// Run evaluates the pipeline stages against docs and returns the resulting
// sequence. Input documents are never mutated.
func Run(docs []*value.Document, stages []*value.Document) ([]*value.Document, error) {
	out := append([]*value.Document(nil), docs...)
	for i, stage := range stages {
		if stage.Len() != 1 {
			return nil, fmt.Errorf("pipeline stage %d must have exactly one key, got %d", i, stage.Len())
		}
		name := stage.Keys()[0]
		arg, _ := stage.Get(name)

		var err error
		out, err = runStage(out, name, arg)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, name, err)
		}
	}
	return out, nil
}

func runStage(docs []*value.Document, name string, arg value.Value) ([]*value.Document, error) {
	switch name {
	case "$match":
		if arg.Kind() != value.KindDocument {
			return docs, nil
		}
		var out []*value.Document
		for _, d := range docs {
			if query.Matches(d, arg.DocVal()) {
				out = append(out, d)
			}
		}
		return out, nil
	case "$sort":
		if arg.Kind() != value.KindDocument {
			return docs, nil
		}
		return view.Sort(docs, view.ParseSort(arg.DocVal())), nil
	case "$limit":
		if arg.Kind() != value.KindNumber {
			return docs, nil
		}
		n := int(arg.NumberVal())
		if n < 0 {
			n = 0
		}
		if n < len(docs) {
			return docs[:n], nil
		}
		return docs, nil
	case "$skip":
		if arg.Kind() != value.KindNumber {
			return docs, nil
		}
		n := int(arg.NumberVal())
		if n < 0 {
			n = 0
		}
		if n < len(docs) {
			return docs[n:], nil
		}
		return nil, nil
	case "$project":
		if arg.Kind() != value.KindDocument {
			return docs, nil
		}
		out := make([]*value.Document, len(docs))
		for i, d := range docs {
			p, err := view.Project(d, arg.DocVal())
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case "$count":
		field := "count"
		if arg.Kind() == value.KindString && arg.StringVal() != "" {
			field = arg.StringVal()
		}
		d := value.NewDocument()
		d.Set(field, value.Int(int64(len(docs))))
		return []*value.Document{d}, nil
	case "$group":
		if arg.Kind() != value.KindDocument {
			return docs, nil
		}
		return group(docs, arg.DocVal())
	default:
		// Unsupported stages pass documents through untouched.
		return docs, nil
	}
}
