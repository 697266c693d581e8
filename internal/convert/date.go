package convert

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// legacyDateRegex matches the OData v2 wire form /Date(ms[+-zzzz])/.
var legacyDateRegex = regexp.MustCompile(`^/Date\((-?\d+)([\+\-]\d{4})?\)/$`)

// IsLegacyDate reports whether a string is an OData v2 legacy date.
func IsLegacyDate(s string) bool {
	return legacyDateRegex.MatchString(s)
}

// LegacyToISO converts /Date(ms[+-zzzz])/ to RFC 3339 UTC. Invalid
// input comes back unchanged.
func LegacyToISO(s string) string {
	m := legacyDateRegex.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return s
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// isoFormats are the accepted inbound datetime layouts, most specific
// first.
var isoFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ISOToLegacy converts an ISO 8601 datetime back to the legacy wire
// form. Non-dates come back unchanged.
func ISOToLegacy(s string) string {
	for _, layout := range isoFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return fmt.Sprintf("/Date(%d)/", t.UnixMilli())
		}
	}
	return s
}

// LooksLikeISODate is a cheap shape check (YYYY-MM-DD prefix) used to
// decide whether a write-path string is worth running through
// ISOToLegacy.
func LooksLikeISODate(s string) bool {
	if len(s) < 10 {
		return false
	}
	if s[4] != '-' || s[7] != '-' {
		return false
	}
	return len(s) == 10 || s[10] == 'T'
}
