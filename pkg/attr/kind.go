package attr

// Kind is the active variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTimestamp
	KindList
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "null":
		return KindNull, true
	case "string":
		return KindString, true
	case "int":
		return KindInt, true
	case "float":
		return KindFloat, true
	case "boolean":
		return KindBool, true
	case "timestamp":
		return KindTimestamp, true
	case "list":
		return KindList, true
	case "map":
		return KindMap, true
	}
	return KindNull, false
}

// KindForTag maps a wire type tag to a Kind. Both the XES element names
// (string, int, float, boolean, date, id, list, container) and the OCEL2
// attribute type names (string, integer, float, boolean, time) are accepted.
func KindForTag(tag string) (Kind, bool) {
	switch tag {
	case "string", "id":
		return KindString, true
	case "int", "integer":
		return KindInt, true
	case "float", "double":
		return KindFloat, true
	case "boolean", "bool":
		return KindBool, true
	case "date", "time", "timestamp":
		return KindTimestamp, true
	case "list":
		return KindList, true
	case "container", "map":
		return KindMap, true
	}
	return KindNull, false
}

// XESTag returns the XES element name used to serialize a value of this kind.
func (k Kind) XESTag() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindTimestamp:
		return "date"
	case KindList:
		return "list"
	case KindMap:
		return "container"
	default:
		return "string"
	}
}

// Unify returns the narrowest kind able to represent values of both kinds.
//
//	null + k          -> k
//	k + k             -> k
//	int + float       -> float
//	list/map + same   -> same
//	anything else     -> string
func Unify(a, b Kind) Kind {
	switch {
	case a == b:
		return a
	case a == KindNull:
		return b
	case b == KindNull:
		return a
	case (a == KindInt && b == KindFloat) || (a == KindFloat && b == KindInt):
		return KindFloat
	default:
		return KindString
	}
}
