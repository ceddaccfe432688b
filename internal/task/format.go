package task

import "fmt"

// ETAUnknown marks an ETA that cannot be computed (total size unknown or
// speed still settling).
const ETAUnknown = -1

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count with 1024-based units, one decimal place
// above bytes.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "0 B"
	}

	size := float64(bytes)
	for _, unit := range sizeUnits {
		if size < 1024 {
			if unit == "B" {
				return fmt.Sprintf("%d %s", int64(size), unit)
			}
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f PB", size)
}

// FormatSpeed renders bytes/second as a size per second.
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return FormatSize(int64(bytesPerSec)) + "/s"
}

// FormatETA renders seconds remaining as MM:SS or HH:MM:SS, or an em dash
// when unknown.
func FormatETA(seconds int) string {
	if seconds < 0 {
		return "—"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// FormatDuration renders a media duration as M:SS or H:MM:SS.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		return "0:00"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
