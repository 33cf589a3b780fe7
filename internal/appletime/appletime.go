// Package appletime converts between the platform message store's native
// timestamp epoch (nanoseconds since 2001-01-01 UTC) and Unix seconds, and
// formats both absolute and relative human-readable times.
//
// The offset and conversion shape are grounded on the teacher's
// aftaylor2-smsDbViewer appleNanosToTime helper; this package generalizes it
// to accept arbitrary-precision inputs (big.Int) in addition to int64, adds
// the inverse conversion, and adds relative/absolute formatting per §4.1.
package appletime

import (
	"fmt"
	"math/big"
	"time"
)

// AppleEpochOffset is the number of seconds between the Unix epoch
// (1970-01-01 UTC) and the platform epoch (2001-01-01 UTC).
const AppleEpochOffset int64 = 978307200

const nanosPerSecond = 1_000_000_000

// MacToUnix converts a platform timestamp (nanoseconds since 2001-01-01 UTC)
// to Unix seconds: macToUnix(n) = floor(n / 1e9) + 978307200.
func MacToUnix(nanos int64) int64 {
	return nanos/nanosPerSecond + AppleEpochOffset
}

// MacToUnixBig converts an arbitrary-precision platform timestamp to Unix
// seconds, for values too large for int64 (e.g. decoded from a blob with
// untrusted width).
func MacToUnixBig(nanos *big.Int) int64 {
	n := new(big.Int).Set(nanos)
	div := big.NewInt(nanosPerSecond)
	seconds := new(big.Int).Div(n, div)
	return seconds.Int64() + AppleEpochOffset
}

// UnixToMac is the inverse of MacToUnix: given Unix seconds, returns the
// platform nanosecond timestamp.
func UnixToMac(unixSeconds int64) int64 {
	return (unixSeconds - AppleEpochOffset) * nanosPerSecond
}

// ToTime converts a platform nanosecond timestamp to a time.Time in UTC.
func ToTime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(MacToUnix(nanos), nanos%nanosPerSecond).UTC()
}

// FormatClock renders a time as "HH:MM AM/PM" in the given location.
func FormatClock(unixSeconds int64, loc *time.Location) string {
	return time.Unix(unixSeconds, 0).In(loc).Format("3:04 PM")
}

// FormatDate renders a time as "Mon D, YYYY" in the given location.
func FormatDate(unixSeconds int64, loc *time.Location) string {
	t := time.Unix(unixSeconds, 0).In(loc)
	return fmt.Sprintf("%s %d, %d", t.Month().String()[:3], t.Day(), t.Year())
}

// Relative fixed-threshold boundaries, in seconds.
const (
	thresholdMinute = 60
	thresholdHour   = 3600
	thresholdDay    = 86400
	thresholdWeek   = 604800
	thresholdMonth  = 2592000
	thresholdYear   = 31536000
)

// FormatRelative renders "just now" / "N minutes ago" / ... relative to now,
// using the fixed thresholds of §4.1. now is injected so callers control
// determinism in tests instead of relying on wall-clock time internally.
func FormatRelative(unixSeconds int64, now time.Time) string {
	delta := now.Unix() - unixSeconds
	if delta < 0 {
		delta = 0
	}

	switch {
	case delta < thresholdMinute:
		return "just now"
	case delta < thresholdHour:
		n := delta / thresholdMinute
		return pluralize(n, "minute")
	case delta < thresholdDay:
		n := delta / thresholdHour
		return pluralize(n, "hour")
	case delta < thresholdWeek:
		n := delta / thresholdDay
		return pluralize(n, "day")
	case delta < thresholdMonth:
		n := delta / thresholdWeek
		return pluralize(n, "week")
	case delta < thresholdYear:
		n := delta / thresholdMonth
		return pluralize(n, "month")
	default:
		n := delta / thresholdYear
		return pluralize(n, "year")
	}
}

func pluralize(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
