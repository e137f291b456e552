package attr

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// UnknownTagError reports a type tag that maps to no Kind.
type UnknownTagError struct {
	Tag string
}

func (e *UnknownTagError) Error() string {
	return "unknown attribute type " + strconv.Quote(e.Tag)
}

// Parse builds a scalar value from a raw string and its declared type tag.
// The id tag validates a UUID and keeps its canonical string form; list and
// container tags yield empty composites to be filled by the caller.
func Parse(tag, raw string, tp *TimeParser) (Value, error) {
	if tag == "id" {
		u, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return Null(), &ConversionError{From: KindString, To: KindString, Raw: raw}
		}
		return String(u.String()), nil
	}
	k, ok := KindForTag(tag)
	if !ok {
		return Null(), &UnknownTagError{Tag: tag}
	}
	switch k {
	case KindString:
		return String(raw), nil
	case KindList:
		return List(), nil
	case KindMap:
		return Map(nil), nil
	}
	return parseAs(k, strings.TrimSpace(raw), tp)
}

func parseAs(k Kind, raw string, tp *TimeParser) (Value, error) {
	switch k {
	case KindString:
		return String(raw), nil
	case KindInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// "3.0" is a common spelling of an integer in exported logs.
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil || f != float64(int64(f)) {
				return Null(), &ConversionError{From: KindString, To: k, Raw: raw}
			}
			i = int64(f)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Null(), &ConversionError{From: KindString, To: k, Raw: raw}
		}
		return Float(f), nil
	case KindBool:
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return Null(), &ConversionError{From: KindString, To: k, Raw: raw}
		}
		return Bool(b), nil
	case KindTimestamp:
		if tp == nil {
			tp = DefaultTimeParser
		}
		t, err := tp.Parse(raw)
		if err != nil {
			return Null(), err
		}
		return Timestamp(t), nil
	}
	return Null(), &ConversionError{From: KindString, To: k, Raw: raw}
}

// FromJSON converts a decoded JSON value into a Value, inferring the kind from
// the literal. Numbers are expected as json.Number (decoder UseNumber); an
// integral literal becomes Int, anything else Float.
func FromJSON(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i)
		}
		if f, err := x.Float64(); err == nil {
			return Float(f)
		}
		return String(x.String())
	case float64:
		if x == float64(int64(x)) && !strings.ContainsAny(strconv.FormatFloat(x, 'g', -1, 64), ".e") {
			return Int(int64(x))
		}
		return Float(x)
	case int64:
		return Int(x)
	case int:
		return Int(int64(x))
	case []interface{}:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromJSON(item)
		}
		return List(items...)
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[k] = FromJSON(item)
		}
		return Map(m)
	}
	return Null()
}
