package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := Structural("missing time:timestamp").WithContext("path", "log/trace/event")
	wrapped := fmt.Errorf("import failed: %w", err)

	if !errors.Is(wrapped, ErrStructural) {
		t.Error("Expected wrapped error to match ErrStructural")
	}
	if errors.Is(wrapped, ErrReferentialIntegrity) {
		t.Error("Did not expect match with ErrReferentialIntegrity")
	}
	if GetCode(wrapped) != CodeStructural {
		t.Errorf("Expected code %s, got %s", CodeStructural, GetCode(wrapped))
	}
}

func TestError_ContextOrder(t *testing.T) {
	err := New(CodeStructural, "bad element").
		WithContext("path", "log/trace").
		WithContext("offset", 42).
		WithContext("line", 3).
		WithContext("offset", 43)

	msg := err.Error()
	want := "[E201] bad element (path=log/trace, offset=43, line=3)"
	if msg != want {
		t.Errorf("Expected %q, got %q", want, msg)
	}

	v, ok := err.Get("line")
	if !ok || v != 3 {
		t.Errorf("Expected line=3, got %v (%v)", v, ok)
	}
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("disk gone")
	err := Wrap(cause, CodeWriteFailed, "write failed")
	if !errors.Is(err, cause) {
		t.Error("Expected cause to be reachable through Unwrap")
	}
	if !strings.HasSuffix(err.Error(), ": disk gone") {
		t.Errorf("Expected cause in message, got %q", err.Error())
	}
	if Wrap(nil, CodeWriteFailed, "noop") != nil {
		t.Error("Expected Wrap(nil) to return nil")
	}
}

func TestWarning_String(t *testing.T) {
	w := NewWarning(CodeTypeUnification, "column widened", "column", "cost", "to", "float")
	if got := w.String(); got != "[E302] column widened (column=cost, to=float)" {
		t.Errorf("Unexpected warning text: %q", got)
	}
}
