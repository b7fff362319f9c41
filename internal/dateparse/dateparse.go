// Package dateparse normalizes the date inputs accepted by the API and
// the CLI into midnight-UTC timestamps.
package dateparse

import (
	"fmt"
	"strings"
	"time"
)

var layouts = []string{
	"2006-01-02",
	"06-01-02",
	"02.01.2006",
	"02.01.06",
	"2006/01/02",
	"06/01/02",
}

// Parse turns a date string into midnight UTC of that day. Besides the
// usual ISO and European formats it accepts the keywords "now" /
// "today" (today) and "weekend" (the coming Saturday).
func Parse(value string, now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "now", "today":
		return midnight(now), nil
	case "weekend":
		daysUntilSaturday := (6 - int(now.UTC().Weekday())) % 7
		return midnight(now.AddDate(0, 0, daysUntilSaturday)), nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return midnight(t), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"unsupported date %q (use yyyy-mm-dd, dd.mm.yyyy, 'now' or 'weekend')", value)
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
