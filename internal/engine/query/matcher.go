// Package query evaluates filter documents against documents.
//
// The default entry point Matches is lenient: structurally invalid operator
// arguments degrade to "does not match" and unknown $-operators are ignored,
// matching the backend's compatibility policy. StrictMatches surfaces those
// conditions as errors instead.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mondo-io/mondo/internal/engine/value"
)

// Sentinel errors reported in strict mode.
var (
	// ErrUnknownOperator marks a $-prefixed key outside the supported set.
	ErrUnknownOperator = errors.New("unknown query operator")
	// ErrInvalidRegex marks a $regex pattern or flags that fail to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// Matches reports whether doc satisfies filter. An empty filter matches
// every document. Malformed operator arguments never error; they evaluate
// to false (or are ignored, for unknown operators).
func Matches(doc, filter *value.Document) bool {
	ok, _ := eval(doc, filter, false)
	return ok
}

// StrictMatches behaves like Matches but reports unknown operators and
// invalid regex patterns as errors instead of degrading silently.
func StrictMatches(doc, filter *value.Document) (bool, error) {
	return eval(doc, filter, true)
}

func eval(doc, filter *value.Document, strict bool) (bool, error) {
	for _, key := range filter.Keys() {
		cond, _ := filter.Get(key)

		switch key {
		case "$and":
			ok, err := evalAnd(doc, cond, strict)
			if err != nil || !ok {
				return false, err
			}
		case "$or":
			ok, err := evalOr(doc, cond, strict)
			if err != nil || !ok {
				return false, err
			}
		case "$nor":
			ok, err := evalOr(doc, cond, strict)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		default:
			fieldValue, present := value.Resolve(doc, key)
			ok, err := evalField(fieldValue, present, cond, strict)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func evalAnd(doc *value.Document, cond value.Value, strict bool) (bool, error) {
	if cond.Kind() != value.KindArray {
		return false, nil
	}
	for _, sub := range cond.ArrayVal() {
		if sub.Kind() != value.KindDocument {
			return false, nil
		}
		ok, err := eval(doc, sub.DocVal(), strict)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalOr(doc *value.Document, cond value.Value, strict bool) (bool, error) {
	if cond.Kind() != value.KindArray {
		return false, nil
	}
	for _, sub := range cond.ArrayVal() {
		if sub.Kind() != value.KindDocument {
			continue
		}
		ok, err := eval(doc, sub.DocVal(), strict)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// evalField evaluates the condition attached to a single field path.
func evalField(fieldValue value.Value, present bool, cond value.Value, strict bool) (bool, error) {
	if cond.IsOperatorDoc() {
		return evalOperators(fieldValue, present, cond.DocVal(), strict)
	}
	return literalMatch(fieldValue, present, cond), nil
}

// literalMatch applies implicit-equality semantics: a null literal also
// matches an absent field, and a scalar literal matches an array field when
// any element equals it.
func literalMatch(fieldValue value.Value, present bool, lit value.Value) bool {
	if lit.IsNull() {
		return !present || fieldValue.IsNull()
	}
	if !present {
		return false
	}
	if value.Equal(fieldValue, lit) {
		return true
	}
	if fieldValue.Kind() == value.KindArray && lit.Kind() != value.KindArray {
		for _, elem := range fieldValue.ArrayVal() {
			if value.Equal(elem, lit) {
				return true
			}
		}
	}
	return false
}

func evalOperators(fieldValue value.Value, present bool, ops *value.Document, strict bool) (bool, error) {
	for _, op := range ops.Keys() {
		arg, _ := ops.Get(op)
		ok, err := evalOperator(fieldValue, present, op, arg, ops, strict)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalOperator(fv value.Value, present bool, op string, arg value.Value, ops *value.Document, strict bool) (bool, error) {
	switch op {
	case "$eq":
		return eqMatch(fv, present, arg), nil
	case "$ne":
		return !eqMatch(fv, present, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		return rangeMatch(fv, present, op, arg), nil
	case "$in":
		return inMatch(fv, present, arg), nil
	case "$nin":
		return !inMatch(fv, present, arg), nil
	case "$exists":
		return existsMatch(present, arg), nil
	case "$regex":
		return regexMatch(fv, present, arg, ops, strict)
	case "$options":
		// Consumed together with $regex.
		return true, nil
	case "$size":
		return fv.Kind() == value.KindArray &&
			arg.Kind() == value.KindNumber &&
			len(fv.ArrayVal()) == int(arg.NumberVal()), nil
	case "$all":
		return allMatch(fv, arg), nil
	case "$elemMatch":
		return elemMatch(fv, arg, strict)
	case "$not":
		if arg.Kind() != value.KindDocument {
			return false, nil
		}
		ok, err := evalOperators(fv, present, arg.DocVal(), strict)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		if strict {
			return false, fmt.Errorf("%w: %s", ErrUnknownOperator, op)
		}
		// Lenient pass-through for compatibility.
		return true, nil
	}
}

// eqMatch implements $eq: a null argument matches null or absent; anything
// else is deep equality.
func eqMatch(fv value.Value, present bool, arg value.Value) bool {
	if arg.IsNull() {
		return !present || fv.IsNull()
	}
	return present && value.Equal(fv, arg)
}

// rangeMatch implements $gt/$gte/$lt/$lte. Absent and null fields never
// satisfy a range operator, and only same-kind ordered values compare.
func rangeMatch(fv value.Value, present bool, op string, arg value.Value) bool {
	if !present || fv.IsNull() {
		return false
	}
	if !value.Comparable(fv, arg) {
		return false
	}
	c := value.Compare(fv, arg)
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

func inMatch(fv value.Value, present bool, arg value.Value) bool {
	if arg.Kind() != value.KindArray {
		return false
	}
	for _, candidate := range arg.ArrayVal() {
		if eqMatch(fv, present, candidate) {
			return true
		}
	}
	return false
}

// existsMatch treats null as present; only true absence fails $exists: true.
func existsMatch(present bool, arg value.Value) bool {
	want := true
	if arg.Kind() == value.KindBool {
		want = arg.BoolVal()
	}
	return present == want
}

func regexMatch(fv value.Value, present bool, arg value.Value, ops *value.Document, strict bool) (bool, error) {
	if !present || fv.Kind() != value.KindString || arg.Kind() != value.KindString {
		return false, nil
	}
	pattern := arg.StringVal()
	if opts, ok := ops.Get("$options"); ok && opts.Kind() == value.KindString {
		if flags := regexFlags(opts.StringVal()); flags != "" {
			pattern = "(?" + flags + ")" + pattern
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		if strict {
			return false, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
		}
		return false, nil
	}
	return re.MatchString(fv.StringVal()), nil
}

// regexFlags maps $options letters onto Go regexp flags. Unsupported
// letters are dropped.
func regexFlags(options string) string {
	var b strings.Builder
	for _, r := range options {
		switch r {
		case 'i', 'm', 's':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allMatch(fv, arg value.Value) bool {
	if fv.Kind() != value.KindArray || arg.Kind() != value.KindArray {
		return false
	}
	for _, want := range arg.ArrayVal() {
		found := false
		for _, have := range fv.ArrayVal() {
			if value.Equal(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// elemMatch applies the argument per array element. An all-$-keys argument
// treats each element as a scalar under the operator document; otherwise
// each element is matched as a document against the argument as a filter.
func elemMatch(fv, arg value.Value, strict bool) (bool, error) {
	if fv.Kind() != value.KindArray || arg.Kind() != value.KindDocument {
		return false, nil
	}
	if arg.IsOperatorDoc() {
		for _, elem := range fv.ArrayVal() {
			ok, err := evalOperators(elem, true, arg.DocVal(), strict)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	for _, elem := range fv.ArrayVal() {
		if elem.Kind() != value.KindDocument {
			continue
		}
		ok, err := eval(elem.DocVal(), arg.DocVal(), strict)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
