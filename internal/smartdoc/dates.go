package smartdoc

import (
	"strings"
	"time"
)

// parseLayouts is tried in order; the first successful parse wins. Day-first
// precedes month-first for ambiguous numeric dates.
var parseLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"2.1.2006",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
}

// dateConventions is the output layout per country.
var dateConventions = map[string]string{
	"US": "01/02/2006",
	"PH": "01/02/2006",
	"DE": "02.01.2006",
	"AT": "02.01.2006",
	"CH": "02.01.2006",
	"RU": "02.01.2006",
	"TR": "02.01.2006",
	"NL": "02-01-2006",
	"CN": "2006-01-02",
	"JP": "2006/01/02",
	"KR": "2006.01.02",
	"CA": "2006-01-02",
	"SE": "2006-01-02",
}

// defaultDateConvention covers the day-first countries not listed above.
const defaultDateConvention = "02/01/2006"

// DateLayout returns the output date layout for a country; unknown or empty countries use ISO.
func DateLayout(country string) string {
	if country == "" {
		return time.DateOnly
	}
	if layout, ok := dateConventions[strings.ToUpper(country)]; ok {
		return layout
	}
	return defaultDateConvention
}

// ParseDate parses value against the ordered layouts.
func ParseDate(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	v = strings.Join(strings.Fields(v), " ")
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeDate reformats value to the country's convention. ok is false when
// the value did not parse; the caller keeps the original.
func normalizeDate(value, country string) (string, bool) {
	t, ok := ParseDate(value)
	if !ok {
		return value, false
	}
	return t.Format(DateLayout(country)), true
}

// ParseDateIn parses a value that may already be in the country's output
// convention, falling back to the ordered layouts.
func ParseDateIn(value, country string) (time.Time, bool) {
	v := strings.Join(strings.Fields(value), " ")
	if t, err := time.Parse(DateLayout(country), v); err == nil {
		return t, true
	}
	return ParseDate(v)
}
