package attr

import (
	"strings"

	lterrors "github.com/logflow/logtables/pkg/errors"
)

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'h': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'z': "-0700",
	'Z': "MST",
	'F': "2006-01-02",
	'T': "15:04:05",
	'R': "15:04",
	'D': "01/02/06",
	'%': "%",
}

// StrftimeToLayout translates a strftime/chrono pattern into a Go reference
// layout. Fractional seconds (%f, %.f, %3f, %6f, %9f, %.3f ...) become an
// optional nanosecond fraction; %:z becomes -07:00. Unknown directives are
// copied through unchanged so the resulting layout fails loudly on parse.
//
// Go reads fractional seconds only after a '.' or ',', so a bare %f (or %3f)
// must follow one of them in the pattern; otherwise the pattern is rejected.
func StrftimeToLayout(format string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch d := format[i]; {
		case d == ':' && i+1 < len(format) && format[i+1] == 'z':
			sb.WriteString("-07:00")
			i++
		case d == '.' && i+1 < len(format) && format[i+1] == 'f':
			sb.WriteString(".999999999")
			i++
		case d == '.' && i+2 < len(format) && isDigit(format[i+1]) && format[i+2] == 'f':
			sb.WriteString(".999999999")
			i += 2
		case isDigit(d) && i+1 < len(format) && format[i+1] == 'f':
			if !afterSeparator(sb.String()) {
				return "", bareFraction(format)
			}
			sb.WriteString("999999999")
			i++
		case d == 'f':
			if !afterSeparator(sb.String()) {
				return "", bareFraction(format)
			}
			sb.WriteString("999999999")
		default:
			if repl, ok := strftimeDirectives[d]; ok {
				sb.WriteString(repl)
			} else {
				sb.WriteByte('%')
				sb.WriteByte(d)
			}
		}
	}
	return sb.String(), nil
}

func afterSeparator(layout string) bool {
	return strings.HasSuffix(layout, ".") || strings.HasSuffix(layout, ",")
}

func bareFraction(format string) error {
	return lterrors.New(lterrors.CodeUnsupportedFormat, "fractional seconds must follow '.' or ','").
		WithContext("date_format", format)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
