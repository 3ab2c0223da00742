// Package value implements the tagged scalar type that flows through every
// layer of the knowledge-graph engine: facts, rule bindings, aggregate
// results, and persisted updates all carry values of this type.
package value

import (
	"fmt"
	"hash/maphash"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindBool
	KindTimestamp
	KindVector
	KindVectorInt8
)

// String renders a Kind for diagnostics and schema error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindFloat64:
		return "Float64"
	case KindString:
		return "String"
	case KindBool:
		return "Bool"
	case KindTimestamp:
		return "Timestamp"
	case KindVector:
		return "Vector"
	case KindVectorInt8:
		return "VectorInt8"
	default:
		return "Unknown"
	}
}

// Value is a tagged union over the scalar types the engine understands.
// Strings and vectors are shared immutable payloads (held by pointer) so
// that copying a Value is cheap and tuples can be compared/hashed
// structurally without re-walking backing arrays.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    *string
	vec  *[]float32
	vi8  *[]int8
}

// Null is the absence of a value.
func Null() Value { return Value{kind: KindNull} }

// Int32 wraps a 32-bit integer.
func Int32(v int32) Value { return Value{kind: KindInt32, i: int64(v)} }

// Int64 wraps a 64-bit integer.
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }

// Float64 wraps a double, normalizing -0.0 to +0.0 so equality and hashing
// agree for the two zero representations.
func Float64(v float64) Value {
	if v == 0 {
		v = 0
	}
	return Value{kind: KindFloat64, f: v}
}

// String wraps a shared, immutable string.
func String(s string) Value {
	return Value{kind: KindString, s: &s}
}

// Bool wraps a boolean.
func Bool(b bool) Value {
	var i int64
	if b {
		i = 1
	}
	return Value{kind: KindBool, i: i}
}

// Timestamp wraps a Unix-millisecond instant.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, i: t.UnixMilli()}
}

// TimestampMs wraps a raw Unix-millisecond integer.
func TimestampMs(ms int64) Value {
	return Value{kind: KindTimestamp, i: ms}
}

// Vector wraps a shared, immutable sequence of f32.
func Vector(v []float32) Value {
	cp := make([]float32, len(v))
	copy(cp, v)
	return Value{kind: KindVector, vec: &cp}
}

// VectorInt8 wraps a shared, immutable sequence of i8.
func VectorInt8(v []int8) Value {
	cp := make([]int8, len(v))
	copy(cp, v)
	return Value{kind: KindVectorInt8, vi8: &cp}
}

// Kind reports the variant held.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt64 returns the integer payload for Int32/Int64/Timestamp/Bool.
func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case KindInt32, KindInt64, KindTimestamp, KindBool:
		return v.i, true
	default:
		return 0, false
	}
}

// AsFloat64 returns the numeric payload as a float64, widening ints.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindFloat64:
		return v.f, true
	case KindInt32, KindInt64, KindTimestamp:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	if v.kind == KindString && v.s != nil {
		return *v.s, true
	}
	return "", false
}

// AsBool returns the bool payload.
func (v Value) AsBool() (bool, bool) {
	if v.kind == KindBool {
		return v.i != 0, true
	}
	return false, false
}

// AsVector returns the f32 vector payload.
func (v Value) AsVector() ([]float32, bool) {
	if v.kind == KindVector && v.vec != nil {
		return *v.vec, true
	}
	return nil, false
}

// AsVectorInt8 returns the i8 vector payload.
func (v Value) AsVectorInt8() ([]int8, bool) {
	if v.kind == KindVectorInt8 && v.vi8 != nil {
		return *v.vi8, true
	}
	return nil, false
}

// Dim reports the declared/actual dimension of a vector value, or 0.
func (v Value) Dim() int {
	switch v.kind {
	case KindVector:
		if v.vec != nil {
			return len(*v.vec)
		}
	case KindVectorInt8:
		if v.vi8 != nil {
			return len(*v.vi8)
		}
	}
	return 0
}

// String renders the value in the engine's fact-literal notation, used by
// error messages, Tuple.String, and Tuple.Key.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindTimestamp:
		return strconv.FormatInt(v.i, 10) + "ms"
	case KindBool:
		if v.i != 0 {
			return "true"
		}
		return "false"
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		if v.s != nil {
			return strconv.Quote(*v.s)
		}
		return `""`
	case KindVector:
		if v.vec == nil {
			return "[]"
		}
		parts := make([]string, len(*v.vec))
		for i, f := range *v.vec {
			parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindVectorInt8:
		if v.vi8 == nil {
			return "[]"
		}
		parts := make([]string, len(*v.vi8))
		for i, b := range *v.vi8 {
			parts[i] = strconv.FormatInt(int64(b), 10)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprintf("<invalid kind %d>", v.kind)
	}
}

// Compare returns -1, 0, or 1 comparing a to b: first by tag, then by
// payload. Floats use a total order (NaN sorts last, consistently with
// itself) rather than IEEE partial order.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindInt32, KindInt64, KindTimestamp, KindBool:
		return compareInt64(a.i, b.i)
	case KindFloat64:
		return compareFloatTotal(a.f, b.f)
	case KindString:
		return strings.Compare(derefStr(a.s), derefStr(b.s))
	case KindVector:
		return compareVectorF32(derefVec(a.vec), derefVec(b.vec))
	case KindVectorInt8:
		return compareVectorI8(derefVecI8(a.vi8), derefVecI8(b.vi8))
	default:
		return 0
	}
}

// Equal reports structural equality.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareFloatTotal implements a total order over float64 where NaN sorts
// strictly after every other value (including +Inf) and compares equal to
// itself, so a collection can be sorted and deduplicated deterministically.
func compareFloatTotal(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareVectorF32(a, b []float32) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareFloatTotal(float64(a[i]), float64(b[i])); c != 0 {
			return c
		}
	}
	return compareInt64(int64(len(a)), int64(len(b)))
}

func compareVectorI8(a, b []int8) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return compareInt64(int64(len(a)), int64(len(b)))
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefVec(v *[]float32) []float32 {
	if v == nil {
		return nil
	}
	return *v
}

func derefVecI8(v *[]int8) []int8 {
	if v == nil {
		return nil
	}
	return *v
}

var hashSeed = maphash.MakeSeed()

// Hash returns a 64-bit hash consistent with Equal: equal values hash
// equally. Float bits are normalized (-0.0 -> +0.0) before hashing, matching
// the normalization already applied by the Float64 constructor.
func Hash(v Value) uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	h.WriteByte(byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindInt32, KindInt64, KindTimestamp, KindBool:
		writeUint64(&h, uint64(v.i))
	case KindFloat64:
		f := v.f
		if f == 0 {
			f = 0 // normalize -0.0
		}
		writeUint64(&h, math.Float64bits(f))
	case KindString:
		h.WriteString(derefStr(v.s))
	case KindVector:
		for _, f := range derefVec(v.vec) {
			fv := float64(f)
			if fv == 0 {
				fv = 0
			}
			writeUint64(&h, math.Float64bits(fv))
		}
	case KindVectorInt8:
		for _, b := range derefVecI8(v.vi8) {
			h.WriteByte(byte(b))
		}
	}
	return h.Sum64()
}

func writeUint64(h *maphash.Hash, u uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	h.Write(buf[:])
}
