package pipeline

import (
	"strings"

	"github.com/mondo-io/mondo/internal/engine/value"
)

// Evaluate resolves an aggregation expression against a document. A string
// beginning with '$' is a field path reference; an absent path evaluates to
// null. Documents evaluate their fields recursively, so compound group keys
// work; everything else is a literal. Operator expressions ($add, $concat,
// ...) are not evaluated and pass through as literals.
func Evaluate(doc *value.Document, expr value.Value) value.Value {
	switch expr.Kind() {
	case value.KindString:
		s := expr.StringVal()
		if strings.HasPrefix(s, "$") {
			v, ok := value.Resolve(doc, s[1:])
			if !ok {
				return value.Null()
			}
			return v
		}
		return expr
	case value.KindDocument:
		if expr.IsOperatorDoc() {
			return expr
		}
		out := value.NewDocument()
		for _, key := range expr.DocVal().Keys() {
			sub, _ := expr.DocVal().Get(key)
			out.Set(key, Evaluate(doc, sub))
		}
		return value.Doc(out)
	default:
		return expr
	}
}
