package jsonwalk

import (
	"strings"
	"testing"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
)

func TestWalker_ObjectTraversal(t *testing.T) {
	doc := `{"name": "x", "skip": {"a": [1, {"b": 2}]}, "items": [{"id": "o1", "n": 3}, {"id": "o2", "n": 4.5}], "nothing": null}`
	w := New(strings.NewReader(doc))

	ok, err := w.EnterObject()
	if err != nil || !ok {
		t.Fatalf("EnterObject failed: %v", err)
	}

	var ids []string
	var total float64
	for w.More() {
		key, err := w.Key()
		if err != nil {
			t.Fatalf("Key failed: %v", err)
		}
		switch key {
		case "name":
			s, err := w.String()
			if err != nil || s != "x" {
				t.Fatalf("Expected x, got %q (%v)", s, err)
			}
		case "items":
			if ok, err := w.EnterArray(); err != nil || !ok {
				t.Fatalf("EnterArray failed: %v", err)
			}
			for w.More() {
				v, err := w.Value()
				if err != nil {
					t.Fatalf("Value failed: %v", err)
				}
				m := v.Map()
				ids = append(ids, m["id"].Str())
				total += m["n"].Float()
			}
			if err := w.Exit(); err != nil {
				t.Fatalf("Exit failed: %v", err)
			}
		case "nothing":
			ok, err := w.EnterArray()
			if err != nil {
				t.Fatalf("EnterArray on null failed: %v", err)
			}
			if ok {
				t.Error("Expected null array to report false")
			}
		default:
			if err := w.Skip(); err != nil {
				t.Fatalf("Skip failed: %v", err)
			}
		}
	}
	if err := w.Exit(); err != nil {
		t.Fatalf("Exit failed: %v", err)
	}

	if strings.Join(ids, ",") != "o1,o2" {
		t.Errorf("Expected o1,o2, got %v", ids)
	}
	if total != 7.5 {
		t.Errorf("Expected 7.5, got %v", total)
	}
	if w.Depth() != 0 {
		t.Errorf("Expected depth 0, got %d", w.Depth())
	}
}

func TestWalker_ValueKinds(t *testing.T) {
	w := New(strings.NewReader(`[1, 2.5, "s", true, null, [1], {"k": "v"}]`))
	v, err := w.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	want := []attr.Kind{attr.KindInt, attr.KindFloat, attr.KindString, attr.KindBool, attr.KindNull, attr.KindList, attr.KindMap}
	items := v.List()
	if len(items) != len(want) {
		t.Fatalf("Expected %d items, got %d", len(want), len(items))
	}
	for i, k := range want {
		if items[i].Kind() != k {
			t.Errorf("Item %d: expected %s, got %s", i, k, items[i].Kind())
		}
	}
}

func TestWalker_PathInErrors(t *testing.T) {
	w := New(strings.NewReader(`{"objects": [{"id": "o1"}, {"id": ["bad"]}]}`))
	if _, err := w.EnterObject(); err != nil {
		t.Fatalf("EnterObject failed: %v", err)
	}
	if _, err := w.Key(); err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if _, err := w.EnterArray(); err != nil {
		t.Fatalf("EnterArray failed: %v", err)
	}

	var lastErr error
	for w.More() {
		if _, err := w.EnterObject(); err != nil {
			t.Fatalf("EnterObject failed: %v", err)
		}
		for w.More() {
			if _, err := w.Key(); err != nil {
				t.Fatalf("Key failed: %v", err)
			}
			if _, err := w.String(); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr != nil {
			break
		}
		if err := w.Exit(); err != nil {
			t.Fatalf("Exit failed: %v", err)
		}
	}

	if !lterrors.IsCode(lastErr, lterrors.CodeStructural) {
		t.Fatalf("Expected structural error, got %v", lastErr)
	}
	e := lastErr.(*lterrors.Error)
	if path, _ := e.Get("path"); path != "objects[1].id" {
		t.Errorf("Expected path objects[1].id, got %v", path)
	}
}

func TestWalker_Truncated(t *testing.T) {
	w := New(strings.NewReader(`{"objects": [{"id": "o1"}, `))
	err := w.Skip()
	if !lterrors.IsCode(err, lterrors.CodeUnexpectedEOF) {
		t.Fatalf("Expected unexpected EOF, got %v", err)
	}
}

func TestWalker_WrongShape(t *testing.T) {
	w := New(strings.NewReader(`[1, 2]`))
	_, err := w.EnterObject()
	if !lterrors.IsCode(err, lterrors.CodeStructural) {
		t.Fatalf("Expected structural error, got %v", err)
	}
}
