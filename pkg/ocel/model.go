// Package ocel imports OCEL 2.0 object-centric event logs, in their XML or
// JSON encoding, into five tables:
//
//	objects         ocel:oid, ocel:type, baseline attributes
//	events          ocel:eid, ocel:activity, ocel:timestamp, event attributes
//	relations       ocel:eid, ocel:activity, ocel:timestamp, ocel:oid, ocel:type, ocel:qualifier
//	o2o             ocel:oid, ocel:oid_2, ocel:qualifier
//	object_changes  ocel:oid, ocel:type, ocel:timestamp, ocel:field, one column per field
//
// Both readers feed the same Builder, so the tables do not depend on the
// encoding.
package ocel

import (
	"strings"
	"time"

	"github.com/logflow/logtables/pkg/attr"
)

// Column names.
const (
	ColEventID   = "ocel:eid"
	ColActivity  = "ocel:activity"
	ColTimestamp = "ocel:timestamp"
	ColObjectID  = "ocel:oid"
	ColObjectID2 = "ocel:oid_2"
	ColType      = "ocel:type"
	ColQualifier = "ocel:qualifier"
	ColField     = "ocel:field"
)

// Table names.
const (
	TableObjects       = "objects"
	TableEvents        = "events"
	TableRelations     = "relations"
	TableO2O           = "o2o"
	TableObjectChanges = "object_changes"
)

// Location points at the input that produced a record.
type Location struct {
	Path   string
	Offset int64
	Line   int
}

// Attribute is an attribute value as read. Values are typed against the
// declared attribute types when the tables are built.
type Attribute struct {
	Name  string
	Value attr.Value

	// Time is when the value became valid. Only object attributes carry one.
	Time  time.Time
	Timed bool
}

// Baseline reports whether the value holds from log start: it has no time or
// its time is the Unix epoch.
func (a Attribute) Baseline() bool {
	return !a.Timed || a.Time.Equal(time.Unix(0, 0))
}

// Relationship is a qualified reference to an object.
type Relationship struct {
	ObjectID  string
	Qualifier string
}

// Object is one declared object.
type Object struct {
	ID            string
	Type          string
	Attributes    []Attribute
	Relationships []Relationship
	Loc           Location
}

// Event is one declared event.
type Event struct {
	ID            string
	Type          string
	Time          time.Time
	Attributes    []Attribute
	Relationships []Relationship
	Loc           Location
}

// O2O is a top-level object-to-object relation.
type O2O struct {
	SourceID  string
	TargetID  string
	Qualifier string
	Loc       Location
}

// AttributeType declares the kind of a named attribute.
type AttributeType struct {
	Name string
	Kind attr.Kind
}

// Integrity selects how dangling references and duplicate ids are handled.
type Integrity int

const (
	// IntegrityAbort fails the import on the first violation.
	IntegrityAbort Integrity = iota
	// IntegrityDrop removes offending rows and reports warnings.
	IntegrityDrop
	// IntegrityIgnore keeps every row; unknown object types are null.
	IntegrityIgnore
)

func (i Integrity) String() string {
	switch i {
	case IntegrityDrop:
		return "drop"
	case IntegrityIgnore:
		return "ignore"
	default:
		return "abort"
	}
}

// ParseIntegrity parses "abort", "drop" or "ignore". The empty string is
// abort.
func ParseIntegrity(s string) (Integrity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return IntegrityAbort, true
	case "drop":
		return IntegrityDrop, true
	case "ignore":
		return IntegrityIgnore, true
	}
	return IntegrityAbort, false
}
