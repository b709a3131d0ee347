package cli

import (
	"fmt"
	"time"
)

// FormatDuration renders audio lengths and elapsed times: whole
// milliseconds under a second, tenths of a second above.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	tenths := d.Milliseconds() / 100
	if d < time.Minute {
		return fmt.Sprintf("%d.%ds", tenths/10, tenths%10)
	}
	m, rest := tenths/600, tenths%600
	return fmt.Sprintf("%dm%d.%ds", m, rest/10, rest%10)
}

var byteUnits = []string{"KB", "MB", "GB"}

// FormatBytes renders cache and upload sizes in binary units.
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n) / 1024
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[unit])
}

// FormatPercent renders a probability the way the web page does.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}
