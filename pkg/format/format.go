package format

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
)

// Bytes renders a byte count in binary units (KiB, MiB, ...).
func Bytes(bytes uint64) string {
	return units.BytesSize(float64(bytes))
}

// ParseBytes parses human-readable sizes like "20MB" into a byte count.
func ParseBytes(size string) (int64, error) {
	return units.RAMInBytes(size)
}

// Duration formats duration in a readable way
func Duration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
