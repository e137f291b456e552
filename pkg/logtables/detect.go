package logtables

import (
	"bufio"
	"bytes"
	"io"

	lterrors "github.com/logflow/logtables/pkg/errors"
)

// sniffSize is how much of a document SniffFormat looks at.
const sniffSize = 8 * 1024

// SniffFormat identifies a format from the first bytes of a decompressed
// document. It returns FormatUnknown when the sample is inconclusive.
func SniffFormat(sample []byte) Format {
	content := bytes.TrimPrefix(sample, []byte{0xEF, 0xBB, 0xBF})
	content = bytes.TrimLeft(content, " \t\r\n")
	if len(content) == 0 {
		return FormatUnknown
	}

	switch content[0] {
	case '{':
		return FormatOCEL2JSON
	case '<':
		switch {
		case bytes.Contains(content, []byte("<object-types")),
			bytes.Contains(content, []byte("<objects")),
			bytes.Contains(content, []byte("<event-types")):
			return FormatOCEL2XML
		case bytes.Contains(content, []byte("xes.version")),
			bytes.Contains(content, []byte("<trace")),
			bytes.Contains(content, []byte("<extension")),
			bytes.Contains(content, []byte("xes-standard.org")):
			return FormatXES
		}
	}
	return FormatUnknown
}

// sniff peeks at r and returns the detected format with a reader that still
// yields the whole document.
func sniff(r io.Reader) (Format, io.Reader, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	sample, err := br.Peek(sniffSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return FormatUnknown, nil, lterrors.Wrap(err, lterrors.CodeIO, "failed to read")
	}
	f := SniffFormat(sample)
	if f == FormatUnknown {
		return f, nil, lterrors.UnsupportedFormat("unrecognised content").WithContext("hint", "pass the format explicitly")
	}
	return f, br, nil
}
