package validate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sticker-press/internal/metrics"
	"sticker-press/internal/sticker"
)

// Limits holds the device-dependent upload ceilings.
type Limits struct {
	DesktopMaxBytes int64
	MobileMaxBytes  int64
}

// DefaultLimits returns the standard upload ceilings.
func DefaultLimits() Limits {
	return Limits{
		DesktopMaxBytes: sticker.DefaultDesktopMaxBytes,
		MobileMaxBytes:  sticker.DefaultMobileMaxBytes,
	}
}

// FileInfo describes an upload to be validated.
type FileInfo struct {
	Name     string
	Size     int64
	MimeType string
}

// MaxBytes returns the ceiling that applies to a device class.
func (l Limits) MaxBytes(device sticker.DeviceClass) int64 {
	if device == sticker.DeviceMobile {
		return l.MobileMaxBytes
	}
	return l.DesktopMaxBytes
}

// Check validates an upload against the supported MIME set and the
// device-dependent size ceiling. It returns human-readable failure
// messages; an empty slice means the file is acceptable.
func Check(info FileInfo, device sticker.DeviceClass, limits Limits) []string {
	var failures []string

	if info.Size <= 0 {
		metrics.ValidationRejections.WithLabelValues("empty_file").Inc()
		failures = append(failures, "the uploaded file is empty")
	}

	mime := strings.ToLower(strings.TrimSpace(info.MimeType))
	if !sticker.SupportedMimeTypes[mime] {
		metrics.ValidationRejections.WithLabelValues("mime_type").Inc()
		failures = append(failures, fmt.Sprintf(
			"unsupported file type %q; supported types are %s",
			info.MimeType, supportedTypesList(),
		))
	}

	if max := limits.MaxBytes(device); info.Size > max {
		metrics.ValidationRejections.WithLabelValues("file_size").Inc()
		failures = append(failures, fmt.Sprintf(
			"file is %.1f MB but the %s limit is %.0f MB",
			float64(info.Size)/(1<<20), device, float64(max)/(1<<20),
		))
	}

	return failures
}

// DurationWarning returns a non-blocking notice when the clip is longer
// than the sticker limit. The encoder trims automatically, so this never
// fails validation.
func DurationWarning(d time.Duration) string {
	if d > sticker.MaxDuration {
		return fmt.Sprintf(
			"video is %.1fs long; only the first %.0fs will be used",
			d.Seconds(), sticker.MaxDuration.Seconds(),
		)
	}
	return ""
}

func supportedTypesList() string {
	types := make([]string, 0, len(sticker.SupportedMimeTypes))
	for t := range sticker.SupportedMimeTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}
