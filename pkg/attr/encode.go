package attr

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// typedNode is the storage form of a value: every node carries its kind, so
// nested dates, floats and nulls survive a trip through a string column.
// Timestamps are stored as UnixNano.
type typedNode struct {
	Kind   string               `json:"k"`
	Text   string               `json:"v,omitempty"`
	Items  []typedNode          `json:"l,omitempty"`
	Fields map[string]typedNode `json:"m,omitempty"`
}

// EncodeTyped serializes v losslessly. Unlike String, the result keeps the
// kind of every nested item.
func EncodeTyped(v Value) string {
	b, err := json.Marshal(toNode(v))
	if err != nil {
		return ""
	}
	return string(b)
}

// DecodeTyped is the inverse of EncodeTyped.
func DecodeTyped(s string) (Value, error) {
	var n typedNode
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return Null(), err
	}
	return fromNode(n)
}

func toNode(v Value) typedNode {
	n := typedNode{Kind: v.kind.String()}
	switch v.kind {
	case KindTimestamp:
		n.Text = strconv.FormatInt(v.num, 10)
	case KindList:
		n.Items = make([]typedNode, len(v.ext.list))
		for i, item := range v.ext.list {
			n.Items[i] = toNode(item)
		}
	case KindMap:
		n.Fields = make(map[string]typedNode, len(v.ext.m))
		for k, item := range v.ext.m {
			n.Fields[k] = toNode(item)
		}
	case KindNull:
	default:
		n.Text = v.String()
	}
	return n
}

func fromNode(n typedNode) (Value, error) {
	k, ok := ParseKind(n.Kind)
	if !ok {
		return Null(), fmt.Errorf("unknown kind %q", n.Kind)
	}
	switch k {
	case KindNull:
		return Null(), nil
	case KindString:
		return String(n.Text), nil
	case KindTimestamp:
		ns, err := strconv.ParseInt(n.Text, 10, 64)
		if err != nil {
			return Null(), &ConversionError{From: KindString, To: k, Raw: n.Text}
		}
		return TimestampNanos(ns), nil
	case KindList:
		items := make([]Value, len(n.Items))
		for i, item := range n.Items {
			v, err := fromNode(item)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return List(items...), nil
	case KindMap:
		m := make(map[string]Value, len(n.Fields))
		for key, item := range n.Fields {
			v, err := fromNode(item)
			if err != nil {
				return Null(), err
			}
			m[key] = v
		}
		return Map(m), nil
	}
	return parseAs(k, n.Text, nil)
}
