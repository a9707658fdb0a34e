package extract

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"20060102150405Z0700",
	"20060102150405Z07",
	"20060102150405",
	"200601021504Z0700",
	"200601021504",
	"2006010215",
	"20060102",
	"200601",
	"2006",
}

// parseDate parses a PDF date string (D:YYYYMMDDHHmmSSOHH'mm'). Every
// component after the year is optional.
func parseDate(v string) (time.Time, error) {
	s := strings.TrimPrefix(strings.TrimSpace(v), "D:")
	s = strings.TrimSuffix(s, "'")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.TrimSuffix(s, "Z0000")

	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
