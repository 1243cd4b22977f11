package registry

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"
)

// dateLayouts are tried in order before the generic fallback parser.
var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"02.01.2006",
	"2006/01/02",
}

// nullTokens are sentinel strings that exports use for missing values.
var nullTokens = map[string]struct{}{
	"none": {},
	"null": {},
	"nan":  {},
}

// truthyTokens is the fixed set of values ParseBool treats as true.
var truthyTokens = map[string]struct{}{
	"1":           {},
	"1.0":         {},
	"t":           {},
	"true":        {},
	"yes":         {},
	"да":          {},
	"действует":   {},
	"действующий": {},
	"активен":     {},
	"активный":    {},
}

var floatSuffix = regexp.MustCompile(`^(\d+)\.0+$`)

// CleanString trims value and maps the sentinel tokens None, null, NULL and
// nan to the empty string.  Output is NFC so that "й" exported as "и" plus a
// combining breve compares equal to the stored value.
func CleanString(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if _, ok := nullTokens[strings.ToLower(v)]; ok {
		return ""
	}
	return norm.NFC.String(v)
}

// ParseDate parses value with the fixed layouts, then with dateparse.
// The result is a UTC date at midnight; ok is false when nothing parsed.
func ParseDate(value string) (t time.Time, ok bool) {
	v := CleanString(value)
	if v == "" {
		return time.Time{}, false
	}
	// spreadsheet exports turn 20200115 into "20200115.0"
	if m := floatSuffix.FindStringSubmatch(v); m != nil {
		v = m[1]
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, v); err == nil {
			return truncateDate(parsed), true
		}
	}
	parsed, err := parseAnyDate(v)
	if err != nil {
		return time.Time{}, false
	}
	return truncateDate(parsed), true
}

// parseAnyDate shields callers from panics inside the fallback parser.
func parseAnyDate(v string) (t time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = time.Time{}, errUnparsable
		}
	}()
	return dateparse.ParseIn(v, time.UTC)
}

var errUnparsable = errors.New("unparsable date")

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatePtr is ParseDate returning nil instead of ok=false.
func DatePtr(value string) *time.Time {
	t, ok := ParseDate(value)
	if !ok {
		return nil
	}
	return &t
}

// ExtractYear returns the calendar year of a date string.
func ExtractYear(value string) (int, bool) {
	t, ok := ParseDate(value)
	if !ok {
		return 0, false
	}
	return t.Year(), true
}

// ParseBool reports whether value is one of the truthy tokens, ignoring case.
func ParseBool(value string) bool {
	_, ok := truthyTokens[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// ParseYear parses a plain year column ("2019", "2019.0").  Empty input is
// not an error; a non-numeric value is.
func ParseYear(value string) (*int, error) {
	v := CleanString(value)
	if v == "" {
		return nil, nil
	}
	if m := floatSuffix.FindStringSubmatch(v); m != nil {
		v = m[1]
	}
	year, err := strconv.Atoi(v)
	if err != nil || year < 1000 || year > 9999 {
		return nil, &FieldError{Field: FieldCreationYear, Value: value}
	}
	return &year, nil
}

// FieldError reports a value that could not be converted for a field.
type FieldError struct {
	Field FieldName
	Value string
}

func (e *FieldError) Error() string {
	return "invalid value " + strconv.Quote(e.Value) + " for " + string(e.Field)
}
