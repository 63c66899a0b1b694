package value

import (
	"bytes"
	"hash/fnv"
	"math"
	"sort"
)

// Equal reports deep structural equality. Arrays are equal when the same
// length and pairwise equal in order; documents when their key sets match
// (order-independent) and values are pairwise equal. Null equals Null.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindObjectID:
		return a.oid == b.oid
	case KindDateTime:
		return a.ts.Equal(b.ts)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindDocument:
		if a.doc.Len() != b.doc.Len() {
			return false
		}
		for _, k := range a.doc.Keys() {
			av, _ := a.doc.Get(k)
			bv, ok := b.doc.Get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare defines a total order over values. Same-kind values compare
// naturally (numbers, strings, dates, ObjectIDs, bools as false<true;
// arrays and documents element/key-wise); values of different kinds compare
// by kind rank so that $min/$max and sorting stay total.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmpInt(int(a.kind), int(b.kind))
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBool:
		return cmpBool(a.b, b.b)
	case KindNumber:
		return cmpFloat(a.num, b.num)
	case KindString:
		return cmpString(a.str, b.str)
	case KindObjectID:
		return bytes.Compare(a.oid[:], b.oid[:])
	case KindDateTime:
		return a.ts.Compare(b.ts)
	case KindArray:
		n := min(len(a.arr), len(b.arr))
		for i := 0; i < n; i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.arr), len(b.arr))
	case KindDocument:
		ak := append([]string(nil), a.doc.Keys()...)
		bk := append([]string(nil), b.doc.Keys()...)
		sort.Strings(ak)
		sort.Strings(bk)
		n := min(len(ak), len(bk))
		for i := 0; i < n; i++ {
			if c := cmpString(ak[i], bk[i]); c != 0 {
				return c
			}
			av, _ := a.doc.Get(ak[i])
			bv, _ := b.doc.Get(bk[i])
			if c := Compare(av, bv); c != 0 {
				return c
			}
		}
		return cmpInt(len(ak), len(bk))
	default:
		return 0
	}
}

// Comparable reports whether two values share a kind with a natural order,
// as required by the range operators ($gt and friends).
func Comparable(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNumber, KindString, KindDateTime, KindObjectID:
		return true
	default:
		return false
	}
}

// Hash returns a structural hash consistent with Equal: equal values hash
// equal. Document field order does not affect the hash.
func Hash(v Value) uint64 {
	h := fnv.New64a()
	hashInto(h, v)
	return h.Sum64()
}

type hasher interface {
	Write(p []byte) (int, error)
}

func hashInto(h hasher, v Value) {
	var kind [1]byte
	kind[0] = byte(v.kind)
	_, _ = h.Write(kind[:])
	switch v.kind {
	case KindBool:
		if v.b {
			_, _ = h.Write([]byte{1})
		} else {
			_, _ = h.Write([]byte{0})
		}
	case KindNumber:
		var buf [8]byte
		bits := math.Float64bits(v.num)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		_, _ = h.Write(buf[:])
	case KindString:
		_, _ = h.Write([]byte(v.str))
	case KindObjectID:
		_, _ = h.Write(v.oid[:])
	case KindDateTime:
		var buf [8]byte
		ms := v.ts.UnixMilli()
		for i := 0; i < 8; i++ {
			buf[i] = byte(uint64(ms) >> (8 * i))
		}
		_, _ = h.Write(buf[:])
	case KindArray:
		for _, e := range v.arr {
			hashInto(h, e)
		}
	case KindDocument:
		keys := append([]string(nil), v.doc.Keys()...)
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = h.Write([]byte(k))
			fv, _ := v.doc.Get(k)
			hashInto(h, fv)
		}
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
