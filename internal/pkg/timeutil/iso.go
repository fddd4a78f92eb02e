package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISOMillis is the layout the backend and the web client exchange for report
// windows: UTC with millisecond precision and a literal Z.
const ISOMillis = "2006-01-02T15:04:05.000Z"

var windowLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FormatISO renders t in ISOMillis.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOMillis)
}

// ParseWindow parses a user supplied window bound. Values without a zone are
// taken as UTC.
func ParseWindow(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range windowLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// NormalizeWindow parses s and re-renders it in ISOMillis.
func NormalizeWindow(s string) (string, error) {
	t, err := ParseWindow(s)
	if err != nil {
		return "", err
	}
	return FormatISO(t), nil
}

// FixTimeMillis converts a position fix time to epoch milliseconds. The
// backend sends RFC 3339 ("2024-01-01T00:00:00.000+00:00"); integer epoch
// milliseconds are accepted too.
func FixTimeMillis(s string) (int64, error) {
	if ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return ms, nil
	}
	t, err := ParseWindow(s)
	if err != nil {
		return 0, fmt.Errorf("fix time: %w", err)
	}
	return t.UnixMilli(), nil
}
