package session

import (
	"strconv"
	"strings"
)

// DefaultDurationSeconds is used when a duration parameter is missing or malformed.
const DefaultDurationSeconds = 3600

// MaxDurationSeconds caps a countdown at one week.
const MaxDurationSeconds = 7 * 24 * 3600

// ParseDuration converts "HH:MM:SS", "MM:SS" or a bare seconds count into
// seconds. Empty, malformed, non-positive or oversized input yields fallback.
func ParseDuration(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return fallback
	}

	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > MaxDurationSeconds {
			return fallback
		}
		// Minutes and seconds fields are bounded when a larger unit precedes them.
		if i > 0 && n > 59 {
			return fallback
		}
		total = total*60 + n
		if total > MaxDurationSeconds {
			return fallback
		}
	}

	if total <= 0 {
		return fallback
	}
	return total
}

// FormatDuration renders seconds as "HH:MM:SS".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return pad(h) + ":" + pad(m) + ":" + pad(s)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
