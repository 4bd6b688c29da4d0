package snapshot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parameter values come back from the reader as display strings like
// "1,234 GB" or "38 C". These helpers strip the grouping commas and the
// trailing unit before parsing.

// AsInt parses a parameter value string into an integer.
func AsInt(s string) (int64, error) {
	v, err := strconv.ParseInt(numericPart(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not an integer", s)
	}
	return v, nil
}

// AsFloat parses a parameter value string into a float.
func AsFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(numericPart(s), 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not a number", s)
	}
	return v, nil
}

// AsDatetime parses the decoded host timestamp parameter, which may carry a
// trailing DST marker.
func AsDatetime(s string) (time.Time, error) {
	trimmed := strings.TrimRight(s, " DST")
	t, err := time.Parse("2006-01-02 15:04:05.999999", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("value %q is not a timestamp: %w", s, err)
	}
	return t, nil
}

func numericPart(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	if i := strings.LastIndex(s, " "); i >= 0 {
		s = s[:i]
	}
	return s
}

// groupInt formats an integer with thousands separators, matching the
// reader's own display format.
func groupInt(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// groupFloat formats a float with one decimal place and thousands separators.
func groupFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	dot := strings.Index(s, ".")
	whole, err := strconv.ParseInt(s[:dot], 10, 64)
	if err != nil {
		return s
	}
	if whole == 0 && strings.HasPrefix(s, "-") {
		return "-" + groupInt(whole) + s[dot:]
	}
	return groupInt(whole) + s[dot:]
}
