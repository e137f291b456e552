// Package xmlwalk is a pull cursor over XML documents. It tracks the element
// path, resolves namespace URIs to canonical names and reports the byte offset
// and line of the current token so that parse errors can point at the input.
//
// Only element boundaries are surfaced by Next; character data is read
// explicitly with Text, and comments, processing instructions and directives
// are skipped.
package xmlwalk

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	lterrors "github.com/logflow/logtables/pkg/errors"
)

// Kind is the type of the current token.
type Kind uint8

const (
	None Kind = iota
	StartElement
	EndElement
)

// Attr is an XML attribute with its namespace resolved.
type Attr struct {
	Space string
	Name  string
	Value string
}

// DefaultNamespaces maps well-known namespace URIs to canonical names.
var DefaultNamespaces = map[string]string{
	"http://www.xes-standard.org/":  "xes",
	"http://www.xes-standard.org":   "xes",
	"http://www.ocel-standard.org/": "ocel",
}

// Option configures a Walker.
type Option func(*Walker)

// WithNamespace registers a namespace URI under a canonical name.
func WithNamespace(uri, name string) Option {
	return func(w *Walker) {
		w.ns[uri] = name
	}
}

// Walker is a single-use, single-goroutine cursor.
type Walker struct {
	dec  *xml.Decoder
	ns   map[string]string
	path []string

	kind  Kind
	space string
	name  string
	attrs []Attr

	offset int64
	line   int
	err    error
	done   bool
}

// New returns a Walker reading r. Documents declaring a non-UTF-8 encoding
// are transcoded.
func New(r io.Reader, opts ...Option) *Walker {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	w := &Walker{
		dec: dec,
		ns:  make(map[string]string, len(DefaultNamespaces)),
	}
	for uri, name := range DefaultNamespaces {
		w.ns[uri] = name
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Next advances to the next start or end element. It returns false at the
// end of the document or on error; Err distinguishes the two.
func (w *Walker) Next() bool {
	if w.done {
		return false
	}
	for {
		w.offset = w.dec.InputOffset()
		w.line, _ = w.dec.InputPos()
		tok, err := w.dec.Token()
		if err != nil {
			w.fail(err)
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
			return true
		case xml.EndElement:
			w.end(t)
			return true
		}
	}
}

func (w *Walker) start(t xml.StartElement) {
	w.kind = StartElement
	w.space = w.resolve(t.Name.Space)
	w.name = t.Name.Local
	w.attrs = w.attrs[:0]
	for _, a := range t.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		w.attrs = append(w.attrs, Attr{
			Space: w.resolve(a.Name.Space),
			Name:  a.Name.Local,
			Value: a.Value,
		})
	}
	w.path = append(w.path, t.Name.Local)
}

// The decoder has already matched t against its start tag.
func (w *Walker) end(t xml.EndElement) {
	w.kind = EndElement
	w.space = w.resolve(t.Name.Space)
	w.name = t.Name.Local
	w.attrs = w.attrs[:0]
	if len(w.path) > 0 {
		w.path = w.path[:len(w.path)-1]
	}
}

func (w *Walker) resolve(uri string) string {
	if name, ok := w.ns[uri]; ok {
		return name
	}
	return uri
}

// Kind returns the type of the current token.
func (w *Walker) Kind() Kind { return w.kind }

// IsStart reports whether the current token opens an element named name.
func (w *Walker) IsStart(name string) bool { return w.kind == StartElement && w.name == name }

// IsEnd reports whether the current token closes an element named name.
func (w *Walker) IsEnd(name string) bool { return w.kind == EndElement && w.name == name }

// Name returns the local name of the current element.
func (w *Walker) Name() string { return w.name }

// Space returns the canonical namespace name of the current element, the raw
// URI when it is not registered, or "" when it has none.
func (w *Walker) Space() string { return w.space }

// Attrs returns the attributes of the current start element, namespace
// declarations excluded. The slice is reused by the next call to Next.
func (w *Walker) Attrs() []Attr { return w.attrs }

// Attr returns the value of the attribute with the given local name.
func (w *Walker) Attr(name string) (string, bool) {
	for _, a := range w.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Depth returns the number of open elements. Inside a start element it
// counts that element.
func (w *Walker) Depth() int { return len(w.path) }

// Path returns the open element names joined with '/'.
func (w *Walker) Path() string { return strings.Join(w.path, "/") }

// Pos returns the byte offset and line at which the current token starts.
func (w *Walker) Pos() (offset int64, line int) { return w.offset, w.line }

// Err returns the first error met, or nil after a clean end of document.
func (w *Walker) Err() error { return w.err }

// Text consumes the content of the current start element up to and
// including its end tag and returns the concatenated character data. Nested
// elements are skipped. Afterwards the cursor sits on the end element.
func (w *Walker) Text() (string, error) {
	if w.kind != StartElement {
		return "", w.structural("text requested outside a start element")
	}
	var sb strings.Builder
	for {
		tok, err := w.dec.Token()
		if err != nil {
			w.fail(err)
			return "", w.err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			w.start(t)
			if err := w.Skip(); err != nil {
				return "", err
			}
		case xml.EndElement:
			w.end(t)
			return sb.String(), nil
		}
	}
}

// Skip consumes the subtree of the current start element. Afterwards the
// cursor sits on its end element. On an end element Skip is a no-op.
func (w *Walker) Skip() error {
	if w.kind != StartElement {
		return nil
	}
	depth := len(w.path)
	for len(w.path) >= depth {
		tok, err := w.dec.Token()
		if err != nil {
			w.fail(err)
			return w.err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			w.path = append(w.path, t.Name.Local)
		case xml.EndElement:
			w.end(t)
		}
	}
	return nil
}

// Structural returns a structural error located at the current token.
func (w *Walker) Structural(format string, args ...interface{}) *lterrors.Error {
	e := lterrors.Structuralf(format, args...)
	return w.locate(e)
}

func (w *Walker) structural(msg string) *lterrors.Error {
	return w.locate(lterrors.Structural(msg))
}

func (w *Walker) locate(e *lterrors.Error) *lterrors.Error {
	if p := w.Path(); p != "" {
		e.WithContext("path", p)
	}
	return e.WithContext("offset", w.offset).WithContext("line", w.line)
}

// fail records err translated into the error taxonomy and stops the walker.
func (w *Walker) fail(err error) {
	w.done = true
	w.kind = None
	if w.err != nil {
		return
	}
	var lerr *lterrors.Error
	var synErr *xml.SyntaxError
	switch {
	case errors.As(err, &lerr):
		w.err = lerr
	case err == io.EOF:
		if len(w.path) > 0 {
			w.err = w.locate(lterrors.UnexpectedEOF(err))
		}
	case errors.Is(err, io.ErrUnexpectedEOF):
		w.err = w.locate(lterrors.UnexpectedEOF(err))
	case errors.As(err, &synErr) && strings.Contains(synErr.Msg, "unexpected EOF"):
		w.err = w.locate(lterrors.UnexpectedEOF(err))
	case errors.As(err, &synErr):
		w.line = synErr.Line
		w.offset = w.dec.InputOffset()
		w.err = w.locate(lterrors.Wrap(err, lterrors.CodeStructural, "malformed XML"))
	default:
		w.err = w.locate(lterrors.Wrap(err, lterrors.CodeIO, "read failed"))
	}
}
