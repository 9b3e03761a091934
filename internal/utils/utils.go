package utils

import (
	"fmt"
	"strconv"
	"time"
)

// FormatFileSize converts a byte count to a human-readable form.
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// ParseExpirationTime interprets a client-supplied expiry value. A small
// integer is taken as hours from now, a large one as unix milliseconds, and
// anything else is tried against the common date layouts.
func ParseExpirationTime(expiresStr string) (time.Time, error) {
	if n, err := strconv.ParseInt(expiresStr, 10, 64); err == nil {
		if n < 1_000_000 {
			return time.Now().Add(time.Duration(n) * time.Hour), nil
		}
		return time.UnixMilli(n), nil
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, expiresStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date/time format")
}
