package domain

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are tried in order when parsing stored timestamps.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// FormatTimestamp renders t as the UTC RFC3339 string stored in records.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses an ISO-8601 timestamp as written by this or older
// tooling. A trailing "Z" and numeric offsets are both accepted.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", value)
}

// ParseOptionalTimestamp parses a nullable timestamp field. ok is false when
// the field is absent or blank; err is set when it is present but invalid.
func ParseOptionalTimestamp(value *string) (t time.Time, ok bool, err error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return time.Time{}, false, nil
	}
	t, err = ParseTimestamp(*value)
	if err != nil {
		return time.Time{}, true, err
	}
	return t, true, nil
}

func timestampPtr(t time.Time) *string {
	s := FormatTimestamp(t)
	return &s
}
