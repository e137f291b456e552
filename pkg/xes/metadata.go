package xes

import (
	"strings"
	"unicode"

	json "github.com/goccy/go-json"

	"github.com/logflow/logtables/pkg/attr"
)

// Extension is a declared XES extension.
type Extension struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	URI    string `json:"uri"`
}

// Classifier is a named composite key over event attributes.
type Classifier struct {
	Name  string   `json:"name"`
	Scope string   `json:"scope,omitempty"`
	Keys  []string `json:"keys"`
}

// Attribute is a keyed value in declaration order.
type Attribute struct {
	Key   string
	Value attr.Value
}

// LogMetadata is the log-level information that is not part of the event
// table. It is produced by one import and owned by the caller.
type LogMetadata struct {
	Version     string       `json:"version,omitempty"`
	Features    string       `json:"features,omitempty"`
	Extensions  []Extension  `json:"extensions"`
	Attributes  []Attribute  `json:"attributes"`
	GlobalTrace []Attribute  `json:"global_trace"`
	GlobalEvent []Attribute  `json:"global_event"`
	Classifiers []Classifier `json:"classifiers"`
}

// ExtensionFor returns the extension whose prefix qualifies key
// ("concept" for "concept:name").
func (m *LogMetadata) ExtensionFor(key string) (Extension, bool) {
	i := strings.IndexByte(key, ':')
	if m == nil || i <= 0 {
		return Extension{}, false
	}
	prefix := key[:i]
	for _, ext := range m.Extensions {
		if ext.Prefix == prefix {
			return ext, true
		}
	}
	return Extension{}, false
}

// Classifier returns the classifier with the given name.
func (m *LogMetadata) Classifier(name string) (Classifier, bool) {
	if m == nil {
		return Classifier{}, false
	}
	for _, c := range m.Classifiers {
		if c.Name == name {
			return c, true
		}
	}
	return Classifier{}, false
}

// Attribute returns the log-level attribute with the given key.
func (m *LogMetadata) Attribute(key string) (attr.Value, bool) {
	if m == nil {
		return attr.Null(), false
	}
	return lookup(m.Attributes, key)
}

func lookup(attrs []Attribute, key string) (attr.Value, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return attr.Null(), false
}

// put sets key, replacing an earlier entry in place.
func put(attrs []Attribute, key string, v attr.Value) []Attribute {
	for i := range attrs {
		if attrs[i].Key == key {
			attrs[i].Value = v
			return attrs
		}
	}
	return append(attrs, Attribute{Key: key, Value: v})
}

// SplitClassifierKeys splits a classifier keys attribute on whitespace.
// Keys containing spaces are written in single quotes.
func SplitClassifierKeys(s string) []string {
	var keys []string
	var cur strings.Builder
	quoted := false
	flush := func() {
		if cur.Len() > 0 {
			keys = append(keys, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '\'':
			flush()
			quoted = !quoted
		case unicode.IsSpace(r) && !quoted:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return keys
}

// joinClassifierKeys is the inverse of SplitClassifierKeys.
func joinClassifierKeys(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		if strings.IndexFunc(k, unicode.IsSpace) >= 0 {
			parts[i] = "'" + k + "'"
		} else {
			parts[i] = k
		}
	}
	return strings.Join(parts, " ")
}

type attributeJSON struct {
	Key      string      `json:"key"`
	Type     string      `json:"type"`
	Value    *string     `json:"value,omitempty"`
	Children []Attribute `json:"children,omitempty"`
}

// MarshalJSON writes scalars in their canonical text form and lists and maps
// as typed children, so that kinds survive a round trip.
func (a Attribute) MarshalJSON() ([]byte, error) {
	out := attributeJSON{Key: a.Key, Type: a.Value.Kind().String()}
	switch a.Value.Kind() {
	case attr.KindNull:
	case attr.KindList:
		out.Children = make([]Attribute, 0, len(a.Value.List()))
		for _, item := range a.Value.List() {
			out.Children = append(out.Children, Attribute{Value: item})
		}
	case attr.KindMap:
		out.Children = make([]Attribute, 0, len(a.Value.Map()))
		for _, k := range sortedKeys(a.Value.Map()) {
			out.Children = append(out.Children, Attribute{Key: k, Value: a.Value.Map()[k]})
		}
	default:
		s := a.Value.String()
		out.Value = &s
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var in attributeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.Key = in.Key
	kind, ok := attr.ParseKind(in.Type)
	if !ok {
		return &attr.UnknownTagError{Tag: in.Type}
	}
	switch kind {
	case attr.KindNull:
		a.Value = attr.Null()
	case attr.KindList:
		items := make([]attr.Value, len(in.Children))
		for i, c := range in.Children {
			items[i] = c.Value
		}
		a.Value = attr.List(items...)
	case attr.KindMap:
		m := make(map[string]attr.Value, len(in.Children))
		for _, c := range in.Children {
			m[c.Key] = c.Value
		}
		a.Value = attr.Map(m)
	default:
		raw := ""
		if in.Value != nil {
			raw = *in.Value
		}
		v, err := attr.Parse(in.Type, raw, nil)
		if err != nil {
			return err
		}
		a.Value = v
	}
	return nil
}
