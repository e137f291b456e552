// Package jsonwalk is a pull cursor over JSON documents built on the
// go-json token stream. It keeps the path of the current position
// (objects[3].attributes[0]) for error reporting and decodes subtrees into
// attr.Value.
package jsonwalk

import (
	"errors"
	"io"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/logflow/logtables/pkg/attr"
	lterrors "github.com/logflow/logtables/pkg/errors"
)

type frame struct {
	array bool
	key   string
	index int
}

// Walker is a single-use, single-goroutine cursor.
type Walker struct {
	dec    *json.Decoder
	cr     *countingReader
	frames []frame
}

// New returns a Walker reading r.
func New(r io.Reader) *Walker {
	cr := &countingReader{r: r}
	dec := json.NewDecoder(cr)
	dec.UseNumber()
	return &Walker{dec: dec, cr: cr}
}

// EnterObject consumes '{'. It returns false without error when the value is
// null, and a structural error for any other value.
func (w *Walker) EnterObject() (bool, error) {
	return w.enter('{')
}

// EnterArray consumes '['. It returns false without error when the value is
// null, and a structural error for any other value.
func (w *Walker) EnterArray() (bool, error) {
	return w.enter('[')
}

func (w *Walker) enter(open json.Delim) (bool, error) {
	tok, err := w.token()
	if err != nil {
		return false, err
	}
	if tok == nil {
		return false, nil
	}
	if d, ok := tok.(json.Delim); ok && d == open {
		w.frames = append(w.frames, frame{array: open == '[', index: -1})
		return true, nil
	}
	want := "object"
	if open == '[' {
		want = "array"
	}
	return false, w.Structural("expected %s, found %s", want, describe(tok))
}

// More reports whether the current object or array has another element.
func (w *Walker) More() bool {
	if !w.dec.More() {
		return false
	}
	if n := len(w.frames); n > 0 && w.frames[n-1].array {
		w.frames[n-1].index++
	}
	return true
}

// Key reads the next member name of the current object.
func (w *Walker) Key() (string, error) {
	tok, err := w.token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", w.Structural("expected member name, found %s", describe(tok))
	}
	if n := len(w.frames); n > 0 {
		w.frames[n-1].key = key
	}
	return key, nil
}

// Exit consumes the closing delimiter of the current object or array.
func (w *Walker) Exit() error {
	if len(w.frames) == 0 {
		return w.Structural("exit without open container")
	}
	tok, err := w.token()
	if err != nil {
		return err
	}
	if _, ok := tok.(json.Delim); !ok {
		return w.Structural("expected end of container, found %s", describe(tok))
	}
	w.frames = w.frames[:len(w.frames)-1]
	return nil
}

// String reads a scalar and returns its text. Null reads as "", numbers and
// booleans as their literal; objects and arrays are structural errors.
func (w *Walker) String() (string, error) {
	tok, err := w.token()
	if err != nil {
		return "", err
	}
	switch v := tok.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", w.Structural("expected scalar, found %s", describe(tok))
}

// Value decodes the next value, including nested objects and arrays.
func (w *Walker) Value() (attr.Value, error) {
	tok, err := w.token()
	if err != nil {
		return attr.Null(), err
	}
	return w.value(tok)
}

func (w *Walker) value(tok json.Token) (attr.Value, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return attr.FromJSON(tok), nil
	}
	switch d {
	case '{':
		w.frames = append(w.frames, frame{index: -1})
		m := make(map[string]attr.Value)
		for w.More() {
			key, err := w.Key()
			if err != nil {
				return attr.Null(), err
			}
			v, err := w.Value()
			if err != nil {
				return attr.Null(), err
			}
			m[key] = v
		}
		if err := w.Exit(); err != nil {
			return attr.Null(), err
		}
		return attr.Map(m), nil
	case '[':
		w.frames = append(w.frames, frame{array: true, index: -1})
		var items []attr.Value
		for w.More() {
			v, err := w.Value()
			if err != nil {
				return attr.Null(), err
			}
			items = append(items, v)
		}
		if err := w.Exit(); err != nil {
			return attr.Null(), err
		}
		return attr.List(items...), nil
	}
	return attr.Null(), w.Structural("unexpected %s", describe(tok))
}

// Skip consumes the next value whatever its shape.
func (w *Walker) Skip() error {
	tok, err := w.token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	base := len(w.frames)
	w.frames = append(w.frames, frame{array: d == '[', index: -1})
	for len(w.frames) > base {
		tok, err := w.token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			if d == '{' || d == '[' {
				w.frames = append(w.frames, frame{array: d == '[', index: -1})
			} else {
				w.frames = w.frames[:len(w.frames)-1]
			}
		}
	}
	return nil
}

// Path renders the current position, e.g. objects[2].attributes[0].value.
func (w *Walker) Path() string {
	var sb strings.Builder
	for _, f := range w.frames {
		if f.array {
			if f.index >= 0 {
				sb.WriteByte('[')
				sb.WriteString(strconv.Itoa(f.index))
				sb.WriteByte(']')
			}
			continue
		}
		if f.key == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(f.key)
	}
	return sb.String()
}

// Depth returns the number of open containers.
func (w *Walker) Depth() int { return len(w.frames) }

// Offset returns the number of input bytes consumed by the decoder so far.
// Reads are buffered, so the value is an upper bound of the current token
// position.
func (w *Walker) Offset() int64 { return w.cr.n }

// Structural returns a structural error located at the current position.
func (w *Walker) Structural(format string, args ...interface{}) *lterrors.Error {
	return w.locate(lterrors.Structuralf(format, args...))
}

func (w *Walker) locate(e *lterrors.Error) *lterrors.Error {
	if p := w.Path(); p != "" {
		e.WithContext("path", p)
	}
	return e.WithContext("offset", w.cr.n)
}

func (w *Walker) token() (json.Token, error) {
	tok, err := w.dec.Token()
	if err == nil {
		return tok, nil
	}
	switch {
	case err == io.EOF && len(w.frames) == 0:
		return nil, w.locate(lterrors.Structural("empty document"))
	case err == io.EOF, errors.Is(err, io.ErrUnexpectedEOF), strings.Contains(err.Error(), "unexpected end of JSON input"):
		return nil, w.locate(lterrors.UnexpectedEOF(err))
	}
	var lerr *lterrors.Error
	if errors.As(err, &lerr) {
		return nil, lerr
	}
	return nil, w.locate(lterrors.Wrap(err, lterrors.CodeStructural, "malformed JSON"))
}

func describe(tok json.Token) string {
	switch v := tok.(type) {
	case nil:
		return "null"
	case json.Delim:
		return strconv.Quote(v.String())
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	}
	return "value"
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
