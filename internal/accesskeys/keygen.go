package accesskeys

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultKeyPrefix = "sk-"

// GenerateKey returns a client-side key stub: prefix plus a dashless UUID.
func GenerateKey(prefix string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ExpiryFromHours converts "hours from now" to epoch seconds.
func ExpiryFromHours(now time.Time, hours *float64) *int64 {
	if hours == nil {
		return nil
	}
	at := now.Add(time.Duration(*hours * float64(time.Hour))).Unix()
	return &at
}

// HoursRemaining is the inverse of ExpiryFromHours, rounded to whole hours
// and never negative. It is empty for keys that never expire.
func HoursRemaining(now time.Time, expiresAt *int64) string {
	if expiresAt == nil {
		return ""
	}
	hours := math.Round(float64(*expiresAt-now.Unix()) / 3600)
	if hours < 0 {
		hours = 0
	}
	return strconv.FormatFloat(hours, 'f', 0, 64)
}
