// Package attr implements the typed attribute value shared by every parser,
// table builder and exporter: a tagged union of string, int, float, boolean,
// timestamp, list, map and null.
package attr

import (
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Value is an immutable tagged union. The zero Value is Null.
//
// Scalars live in str/num (float bits, bool 0/1 and UnixNano timestamps are
// stored in num); lists and maps sit behind ext so scalar values stay small.
type Value struct {
	kind Kind
	str  string
	num  int64
	ext  *composite
}

type composite struct {
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, num: int64(math.Float64bits(f))} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Timestamp returns a timestamp value normalized to UTC with nanosecond precision.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, num: t.UnixNano()} }

// TimestampNanos returns a timestamp from nanoseconds since the Unix epoch.
func TimestampNanos(ns int64) Value { return Value{kind: KindTimestamp, num: ns} }

// List returns a list value. The slice is retained.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, ext: &composite{list: items}}
}

// Map returns a map value. The map is retained.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, ext: &composite{m: m}}
}

// Kind returns the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the raw string of a String value and "" otherwise.
// Use String for a rendering of any kind.
func (v Value) Str() string {
	if v.kind == KindString {
		return v.str
	}
	return ""
}

// Int returns the integer of an Int value, the truncated Float, or 0.
func (v Value) Int() int64 {
	switch v.kind {
	case KindInt, KindBool:
		return v.num
	case KindFloat:
		return int64(v.Float())
	}
	return 0
}

// Float returns the float of a Float or Int value, or 0.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return math.Float64frombits(uint64(v.num))
	case KindInt:
		return float64(v.num)
	}
	return 0
}

// Bool returns the boolean of a Bool value.
func (v Value) Bool() bool { return v.kind == KindBool && v.num != 0 }

// Time returns the instant of a Timestamp value in UTC, or the zero time.
func (v Value) Time() time.Time {
	if v.kind != KindTimestamp {
		return time.Time{}
	}
	return time.Unix(0, v.num).UTC()
}

// Nanos returns the UnixNano of a Timestamp value.
func (v Value) Nanos() int64 {
	if v.kind != KindTimestamp {
		return 0
	}
	return v.num
}

// List returns the items of a List value. The slice must not be modified.
func (v Value) List() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.ext.list
}

// Map returns the entries of a Map value. The map must not be modified.
func (v Value) Map() map[string]Value {
	if v.kind != KindMap {
		return nil
	}
	return v.ext.m
}

// String renders the value in its canonical text form: RFC 3339 (nanosecond,
// UTC) for timestamps, JSON for lists and maps, "" for null.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return FormatFloat(v.Float())
	case KindBool:
		return strconv.FormatBool(v.num != 0)
	case KindTimestamp:
		return v.Time().Format(time.RFC3339Nano)
	case KindList, KindMap:
		b, err := json.Marshal(v.Native())
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// FormatFloat formats without exponent for ordinary magnitudes so that values
// read back with strconv.ParseFloat unchanged.
func FormatFloat(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Native converts the value to plain Go types: string, int64, float64, bool,
// time.Time, []interface{}, map[string]interface{} or nil.
func (v Value) Native() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.Float()
	case KindBool:
		return v.num != 0
	case KindTimestamp:
		return v.Time()
	case KindList:
		out := make([]interface{}, len(v.ext.list))
		for i, item := range v.ext.list {
			out[i] = item.Native()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.ext.m))
		for k, item := range v.ext.m {
			out[k] = item.Native()
		}
		return out
	}
	return nil
}

// Equal reports whether both values have the same kind and content.
// Floats compare by bit pattern so NaN equals NaN.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindList:
		a, b := v.ext.list, o.ext.list
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case KindMap:
		a, b := v.ext.m, o.ext.m
		if len(a) != len(b) {
			return false
		}
		for k, av := range a {
			bv, ok := b[k]
			if !ok || !av.Equal(bv) {
				return false
			}
		}
		return true
	default:
		return v.num == o.num
	}
}

// Convert returns v represented as kind k. Widening conversions (int to float,
// anything to string) always succeed; narrowing from string parses the text and
// fails when it does not fit. tp may be nil.
func (v Value) Convert(k Kind, tp *TimeParser) (Value, error) {
	if v.kind == k || v.kind == KindNull {
		return v, nil
	}
	switch k {
	case KindNull:
		return Null(), nil
	case KindString:
		return String(v.String()), nil
	case KindFloat:
		if v.kind == KindInt {
			return Float(float64(v.num)), nil
		}
	case KindInt:
		if v.kind == KindFloat {
			f := v.Float()
			if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
				return Int(int64(f)), nil
			}
		}
	case KindList:
		return List(v), nil
	}
	if v.kind == KindString {
		return parseAs(k, strings.TrimSpace(v.str), tp)
	}
	return Null(), &ConversionError{From: v.kind, To: k, Raw: v.String()}
}

// ConversionError reports a value that cannot be represented in a kind.
type ConversionError struct {
	From Kind
	To   Kind
	Raw  string
}

func (e *ConversionError) Error() string {
	return "cannot convert " + e.From.String() + " " + strconv.Quote(e.Raw) + " to " + e.To.String()
}
