package attr

import (
	"strings"
	"time"

	lterrors "github.com/logflow/logtables/pkg/errors"
)

// fallbackLayouts are tried, in order, after the primary layout fails.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// TimeParser parses timestamps with a primary layout and a fixed set of ISO
// 8601 / RFC 3339 fallbacks. Results are normalized to UTC; inputs without a
// zone are read as UTC. A TimeParser is safe for concurrent use.
type TimeParser struct {
	primary string
}

// DefaultTimeParser has no primary layout and relies on the fallbacks.
var DefaultTimeParser = &TimeParser{}

// NewTimeParser returns a parser trying layout first. The layout is a Go
// reference layout, or a strftime pattern when it contains '%'.
func NewTimeParser(layout string) (*TimeParser, error) {
	if strings.Contains(layout, "%") {
		var err error
		if layout, err = StrftimeToLayout(layout); err != nil {
			return nil, err
		}
	}
	return &TimeParser{primary: layout}, nil
}

// Layout returns the primary Go layout, or "" when none is set.
func (p *TimeParser) Layout() string {
	if p == nil {
		return ""
	}
	return p.primary
}

// Parse parses s. The error carries code E203 and the offending value.
func (p *TimeParser) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if p != nil && p.primary != "" {
		if t, err := time.Parse(p.primary, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, ok := parseISO8601Fast(s); ok {
		return t, nil
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, lterrors.InvalidTimestamp(s)
}

// parseISO8601Fast handles YYYY-MM-DDTHH:MM:SS[.fff][Z|±HH:MM] by direct
// byte arithmetic; anything else is left to time.Parse.
func parseISO8601Fast(s string) (time.Time, bool) {
	if len(s) < 20 || s[4] != '-' || s[7] != '-' || s[10] != 'T' || s[13] != ':' || s[16] != ':' {
		return time.Time{}, false
	}
	year, ok1 := digits(s[0:4])
	month, ok2 := digits(s[5:7])
	day, ok3 := digits(s[8:10])
	hour, ok4 := digits(s[11:13])
	minute, ok5 := digits(s[14:16])
	second, ok6 := digits(s[17:19])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}

	i := 19
	nsec := 0
	if s[i] == '.' {
		i++
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		frac := s[start:i]
		if len(frac) == 0 || len(frac) > 9 {
			return time.Time{}, false
		}
		n, _ := digits(frac)
		for k := len(frac); k < 9; k++ {
			n *= 10
		}
		nsec = n
	}
	if i >= len(s) {
		return time.Time{}, false
	}

	loc := time.UTC
	switch s[i] {
	case 'Z':
		if i+1 != len(s) {
			return time.Time{}, false
		}
	case '+', '-':
		zone := s[i+1:]
		if len(zone) != 5 || zone[2] != ':' {
			return time.Time{}, false
		}
		oh, okh := digits(zone[0:2])
		om, okm := digits(zone[3:5])
		if !okh || !okm || oh > 23 || om > 59 {
			return time.Time{}, false
		}
		offset := oh*3600 + om*60
		if s[i] == '-' {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	default:
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc)
	if t.Day() != day {
		// Rolled over (e.g. Feb 30); let time.Parse report it.
		return time.Time{}, false
	}
	return t.UTC(), true
}

func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
