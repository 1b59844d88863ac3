// Package dateutil formats dates in templates with readable tokens such as
// "DD/MM/YYYY" instead of Go reference layouts.
package dateutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDateFormat indicates an invalid date format string.
var ErrInvalidDateFormat = errors.New("invalid date format")

// ErrInvalidDate indicates a value that cannot be read as a date.
var ErrInvalidDate = errors.New("invalid date")

// MaxFormatLength limits format string length.
const MaxFormatLength = 50

// DefaultFormat is used when the format is empty.
const DefaultFormat = "YYYY-MM-DD"

// tokens maps readable tokens to Go layout components, longest first so
// matching is greedy.
var tokens = []struct {
	token  string
	layout string
}{
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"M", "1"},
	{"D", "2"},
}

// Presets are named shortcuts, matched case-insensitively.
var Presets = map[string]string{
	"iso":      "YYYY-MM-DD",
	"european": "DD/MM/YYYY",
	"us":       "MM/DD/YYYY",
	"long":     "MMMM D, YYYY",
}

// inputLayouts are tried in order when a date arrives as a string, which is
// how dates reach templates from JSON payloads.
var inputLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Layout converts a token format or preset name to a Go time layout.
// Text inside brackets is kept literally: "[Week of] D MMM" keeps "Week of".
// Any other non-token character is kept as is.
func Layout(format string) (string, error) {
	if format == "" {
		format = DefaultFormat
	}
	if len(format) > MaxFormatLength {
		return "", fmt.Errorf("%w: format exceeds %d characters", ErrInvalidDateFormat, MaxFormatLength)
	}
	if preset, ok := Presets[strings.ToLower(format)]; ok {
		format = preset
	}

	var b strings.Builder
	b.Grow(len(format) + 10)

	for i := 0; i < len(format); {
		if format[i] == '[' {
			end := strings.IndexByte(format[i+1:], ']')
			if end == -1 {
				return "", fmt.Errorf("%w: unclosed bracket at position %d", ErrInvalidDateFormat, i)
			}
			b.WriteString(format[i+1 : i+1+end])
			i += end + 2
			continue
		}

		matched := false
		for _, t := range tokens {
			if strings.HasPrefix(format[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(format[i])
			i++
		}
	}

	return b.String(), nil
}

// Format renders t with a token format or preset.
func Format(t time.Time, format string) (string, error) {
	layout, err := Layout(format)
	if err != nil {
		return "", err
	}
	return t.Format(layout), nil
}

// FormatValue renders a template value as a date. v may be a time.Time or
// a string in RFC 3339 or YYYY-MM-DD form.
func FormatValue(v any, format string) (string, error) {
	switch d := v.(type) {
	case time.Time:
		return Format(d, format)
	case *time.Time:
		if d == nil {
			return "", fmt.Errorf("%w: nil time", ErrInvalidDate)
		}
		return Format(*d, format)
	case string:
		t, err := parse(d)
		if err != nil {
			return "", err
		}
		return Format(t, format)
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidDate, v)
}

func parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
