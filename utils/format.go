package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders seconds as "1h 5m 30s" style, largest unit first,
// omitting zero components. Values under one second render as "<1s".
func FormatDuration(sec int) string {
	if sec < 1 {
		return "<1s"
	}

	hours := sec / 3600
	mins := (sec % 3600) / 60
	secs := sec % 60

	parts := []string{}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}

	return strings.Join(parts, " ")
}

// FormatTime renders a clock time like "4:32am".
func FormatTime(t time.Time) string {
	return t.Format("3:04pm")
}

// FormatDateTime renders a full date-time like "10/18/2025 4:32am".
func FormatDateTime(t time.Time) string {
	return t.Format("1/2/2006 3:04pm")
}
