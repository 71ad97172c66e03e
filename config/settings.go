package config

import (
	"os"
	"strconv"
	"time"
)

// Getenv returns the environment variable or a fallback when unset.
func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// OrgTimezone resolves the organization's local timezone. Attendance days
// are scoped to this zone, not to server time. Defaults to UTC+3.
func OrgTimezone() *time.Location {
	offset := 3
	if v := os.Getenv("TZ_OFFSET_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return time.FixedZone("ORG", offset*3600)
}
