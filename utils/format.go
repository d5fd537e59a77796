package utils

import (
	"strconv"
	"time"
)

// TimeAgo renders the time elapsed between ts and now using the largest
// non-zero unit: "3d", "1h", "12m" or "now".
func TimeAgo(ts, now time.Time) string {
	d := now.Sub(ts)
	minutes := int64(d / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return strconv.FormatInt(days, 10) + "d"
	case hours > 0:
		return strconv.FormatInt(hours, 10) + "h"
	case minutes > 0:
		return strconv.FormatInt(minutes, 10) + "m"
	default:
		return "now"
	}
}

// FormatNumber abbreviates counters: 1234 -> "1.2K", 1234567 -> "1.2M".
// The decimal is rounded half-up.
func FormatNumber(n int64) string {
	switch {
	case n >= 1_000_000:
		return tenths(n, 1_000_000) + "M"
	case n >= 1_000:
		return tenths(n, 1_000) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}

func tenths(n, unit int64) string {
	t := (n*10 + unit/2) / unit
	return strconv.FormatInt(t/10, 10) + "." + strconv.FormatInt(t%10, 10)
}
