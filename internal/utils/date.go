// internal/utils/date.go
package utils

import (
	"time"
)

func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}

func IsWithin(t time.Time, d time.Duration) bool {
	return !t.IsZero() && time.Since(t) <= d
}
