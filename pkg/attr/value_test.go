package attr

import (
	"math"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestParse_XESTags(t *testing.T) {
	cases := []struct {
		tag  string
		raw  string
		want Value
	}{
		{"string", " padded ", String(" padded ")},
		{"int", "42", Int(42)},
		{"int", "3.0", Int(3)},
		{"float", "2.5", Float(2.5)},
		{"boolean", "TRUE", Bool(true)},
		{"date", "2024-01-01T00:00:00Z", Timestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
		{"integer", "-7", Int(-7)},
		{"time", "2024-01-01T01:00:00+01:00", Timestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
	}

	for _, tc := range cases {
		got, err := Parse(tc.tag, tc.raw, nil)
		if err != nil {
			t.Fatalf("Parse(%s, %q) failed: %v", tc.tag, tc.raw, err)
		}
		if !got.Equal(tc.want) {
			t.Errorf("Parse(%s, %q): expected %v, got %v", tc.tag, tc.raw, tc.want, got)
		}
	}
}

func TestParse_ID(t *testing.T) {
	v, err := Parse("id", "6BA7B810-9DAD-11D1-80B4-00C04FD430C8", nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if v.Str() != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("Expected canonical uuid, got %s", v.Str())
	}

	if _, err := Parse("id", "not-a-uuid", nil); err == nil {
		t.Error("Expected error for invalid uuid")
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse("int", "abc", nil); err == nil {
		t.Error("Expected error for non-numeric int")
	}
	if _, err := Parse("int", "3.5", nil); err == nil {
		t.Error("Expected error for fractional int")
	}
	if _, err := Parse("blob", "x", nil); err == nil {
		t.Error("Expected error for unknown tag")
	}
	if _, err := Parse("date", "yesterday", nil); err == nil {
		t.Error("Expected error for bad timestamp")
	}
}

func TestUnify(t *testing.T) {
	cases := []struct {
		a, b, want Kind
	}{
		{KindNull, KindInt, KindInt},
		{KindInt, KindNull, KindInt},
		{KindInt, KindInt, KindInt},
		{KindInt, KindFloat, KindFloat},
		{KindFloat, KindInt, KindFloat},
		{KindInt, KindString, KindString},
		{KindBool, KindInt, KindString},
		{KindTimestamp, KindFloat, KindString},
		{KindList, KindList, KindList},
		{KindList, KindMap, KindString},
	}
	for _, tc := range cases {
		if got := Unify(tc.a, tc.b); got != tc.want {
			t.Errorf("Unify(%s, %s): expected %s, got %s", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestConvert(t *testing.T) {
	v, err := Int(3).Convert(KindFloat, nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if v.Kind() != KindFloat || v.Float() != 3 {
		t.Errorf("Expected float 3, got %v", v)
	}

	v, err = Float(2.5).Convert(KindString, nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if v.Str() != "2.5" {
		t.Errorf("Expected \"2.5\", got %q", v.Str())
	}

	ts := Timestamp(time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC))
	v, err = ts.Convert(KindString, nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if v.Str() != "2024-01-02T03:04:05.0000006Z" {
		t.Errorf("Expected RFC 3339 text, got %q", v.Str())
	}

	v, err = Null().Convert(KindInt, nil)
	if err != nil || !v.IsNull() {
		t.Errorf("Expected null to stay null, got %v (%v)", v, err)
	}

	if _, err := Bool(true).Convert(KindInt, nil); err == nil {
		t.Error("Expected error converting boolean to int")
	}
}

func TestFromJSON(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`{"n": 3, "f": 1.5, "s": "x", "b": false, "l": [1, null], "z": null}`))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	v := FromJSON(raw)
	if v.Kind() != KindMap {
		t.Fatalf("Expected map, got %s", v.Kind())
	}
	m := v.Map()
	if m["n"].Kind() != KindInt || m["n"].Int() != 3 {
		t.Errorf("Expected int 3, got %v", m["n"])
	}
	if m["f"].Kind() != KindFloat || m["f"].Float() != 1.5 {
		t.Errorf("Expected float 1.5, got %v", m["f"])
	}
	if m["s"].Str() != "x" {
		t.Errorf("Expected string x, got %v", m["s"])
	}
	if m["b"].Kind() != KindBool || m["b"].Bool() {
		t.Errorf("Expected false, got %v", m["b"])
	}
	if l := m["l"].List(); len(l) != 2 || l[0].Int() != 1 || !l[1].IsNull() {
		t.Errorf("Expected [1 null], got %v", m["l"])
	}
	if !m["z"].IsNull() {
		t.Errorf("Expected null, got %v", m["z"])
	}
}

func TestEqual(t *testing.T) {
	nan := Float(math.NaN())
	if !nan.Equal(Float(math.NaN())) {
		t.Error("Expected NaN to equal NaN")
	}
	if Int(1).Equal(Float(1)) {
		t.Error("Expected int and float to differ")
	}
	a := Map(map[string]Value{"k": List(Int(1), String("x"))})
	b := Map(map[string]Value{"k": List(Int(1), String("x"))})
	if !a.Equal(b) {
		t.Error("Expected nested composites to be equal")
	}
	if a.String() != `{"k":[1,"x"]}` {
		t.Errorf("Unexpected rendering: %s", a.String())
	}
}

func TestFormatFloat(t *testing.T) {
	cases := map[float64]string{
		1:       "1",
		0.1:     "0.1",
		1234567: "1234567",
		1e-9:    "1e-09",
		-2.25:   "-2.25",
	}
	for in, want := range cases {
		if got := FormatFloat(in); got != want {
			t.Errorf("FormatFloat(%v): expected %s, got %s", in, want, got)
		}
	}
}

func TestEncodeTyped_KeepsNestedKinds(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	in := Map(map[string]Value{
		"when":  Timestamp(when),
		"ratio": Float(3),
		"tags":  List(String("a"), Int(1), Null(), Bool(true)),
		"empty": List(),
		"inner": Map(map[string]Value{"s": String("")}),
	})

	out, err := DecodeTyped(EncodeTyped(in))
	if err != nil {
		t.Fatalf("DecodeTyped failed: %v", err)
	}
	if !in.Equal(out) {
		t.Fatalf("Expected %s, got %s", in, out)
	}
	m := out.Map()
	if m["when"].Kind() != KindTimestamp || !m["when"].Time().Equal(when) {
		t.Errorf("Expected nested timestamp %v, got %v", when, m["when"])
	}
	if m["ratio"].Kind() != KindFloat {
		t.Errorf("Expected nested float, got %s", m["ratio"].Kind())
	}

	if _, err := DecodeTyped(`{"k":"blob"}`); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
