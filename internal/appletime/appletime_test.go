package appletime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMacToUnix_RoundTrip(t *testing.T) {
	x := int64(1_700_000_000)
	mac := x*nanosPerSecond + AppleEpochOffset*nanosPerSecond
	assert.Equal(t, x+AppleEpochOffset, MacToUnix(mac))
}

func TestMacToUnix_Zero(t *testing.T) {
	assert.Equal(t, AppleEpochOffset, MacToUnix(0))
}

func TestUnixToMac_Inverse(t *testing.T) {
	unix := int64(1_704_067_200) // 2024-01-01 UTC
	mac := UnixToMac(unix)
	assert.Equal(t, unix, MacToUnix(mac))
}

func TestFormatRelative_Thresholds(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		ago    time.Duration
		expect string
	}{
		{"just now", 10 * time.Second, "just now"},
		{"one minute", 90 * time.Second, "1 minute ago"},
		{"minutes", 5 * time.Minute, "5 minutes ago"},
		{"hours", 3 * time.Hour, "3 hours ago"},
		{"days", 2 * 24 * time.Hour, "2 days ago"},
		{"weeks", 10 * 24 * time.Hour, "1 week ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := now.Add(-tt.ago).Unix()
			assert.Equal(t, tt.expect, FormatRelative(ts, now))
		})
	}
}

func TestFormatClock(t *testing.T) {
	loc := time.UTC
	ts := time.Date(2024, 6, 15, 14, 30, 0, 0, loc).Unix()
	assert.Equal(t, "2:30 PM", FormatClock(ts, loc))
}

func TestFormatDate(t *testing.T) {
	loc := time.UTC
	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, loc).Unix()
	assert.Equal(t, "Jun 15, 2024", FormatDate(ts, loc))
}
