package output

import (
	"fmt"
	"strings"
	"time"
)

// FormatElapsed renders a duration the way the run log reports phase
// timings: seconds up to a minute, MM:SS below an hour, H:MM:SS above.
func FormatElapsed(elapsed time.Duration) string {
	if elapsed <= time.Minute {
		return fmt.Sprintf("%.2f seconds", elapsed.Seconds())
	}
	allSeconds := int(elapsed.Seconds())
	seconds := allSeconds % 60
	minutes := (allSeconds / 60) % 60
	hours := allSeconds / 3600
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d hours", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d minutes", minutes, seconds)
}

// FormatLargeNumber groups digits in blocks of three for log readability.
func FormatLargeNumber(number int) string {
	raw := fmt.Sprint(number)
	var b strings.Builder
	for i, digit := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return b.String()
}
