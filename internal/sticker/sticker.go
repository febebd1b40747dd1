package sticker

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// WhatsApp animated sticker constraints. Outputs that violate these are
// rejected by the WhatsApp client, so the encode command enforces all of
// them rather than trusting the input.
const (
	// MaxDuration is the longest clip WhatsApp accepts for an animated sticker.
	MaxDuration = 3 * time.Second

	// CanvasSize is the required square canvas edge in pixels.
	CanvasSize = 512

	// Quality is the lossy WebP quality factor.
	Quality = 80

	// CompressionLevel is the libwebp effort setting (0-6).
	CompressionLevel = 6

	// MaxFrameRate caps the output frame rate to keep stickers small.
	MaxFrameRate = 15
)

// DeviceClass identifies the upload ceiling that applies to a client.
type DeviceClass string

const (
	// DeviceDesktop is the default device class.
	DeviceDesktop DeviceClass = "desktop"
	// DeviceMobile applies the lower mobile upload ceiling.
	DeviceMobile DeviceClass = "mobile"
)

// Default upload ceilings per device class, overridable via configuration.
const (
	DefaultDesktopMaxBytes = 50 << 20
	DefaultMobileMaxBytes  = 25 << 20
)

// SupportedMimeTypes lists the video container types accepted for conversion.
var SupportedMimeTypes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
}

// inputExtensions maps supported MIME types to the scratch-file extension
// handed to the media engine.
var inputExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
}

// ClipInfo describes a probed video clip.
type ClipInfo struct {
	Duration time.Duration `json:"duration"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
}

// ParseDevice normalizes a client-supplied device hint, falling back to
// desktop for anything unrecognized.
func ParseDevice(v string) DeviceClass {
	if strings.EqualFold(strings.TrimSpace(v), string(DeviceMobile)) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// InputFileName returns the scratch filename for an uploaded clip of the
// given MIME type.
func InputFileName(mimeType string) string {
	if ext, ok := inputExtensions[strings.ToLower(mimeType)]; ok {
		return "input" + ext
	}
	return "input.bin"
}

// OutputFileName is the fixed scratch filename for the encoded sticker.
const OutputFileName = "output.webp"

// EncodeArgs builds the fixed FFmpeg command that turns a video into a
// WhatsApp-compatible animated WebP: trim to MaxDuration, scale into the
// canvas preserving aspect ratio, pad with transparency, lossy WebP with
// infinite loop and no audio.
func EncodeArgs(inputName, outputName string) []string {
	scale := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease:flags=lanczos,"+
			"pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=0x00000000,fps=%d",
		CanvasSize, CanvasSize, CanvasSize, CanvasSize, MaxFrameRate,
	)

	return []string{
		"-i", inputName,
		"-t", fmt.Sprintf("%g", MaxDuration.Seconds()),
		"-vf", scale,
		"-c:v", "libwebp",
		"-lossless", "0",
		"-q:v", fmt.Sprintf("%d", Quality),
		"-compression_level", fmt.Sprintf("%d", CompressionLevel),
		"-loop", "0",
		"-an",
		"-fps_mode", "passthrough",
		outputName,
	}
}

// SuggestedFilename derives the download filename from the source name and a
// timestamp, always with a .webp extension.
func SuggestedFilename(sourceName string, now time.Time) string {
	base := SanitizeName(sourceName)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" {
		base = "sticker"
	}
	return fmt.Sprintf("%s-sticker-%d.webp", base, now.Unix())
}

// SanitizeName strips path components and replaces characters that are not
// safe in filenames.
func SanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	name = strings.ReplaceAll(name, " ", "_")
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// IsWebP reports whether data starts with a RIFF/WEBP container header.
func IsWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// IsAnimatedWebP reports whether a WebP container carries an animation
// chunk. Single-frame outputs are still valid stickers, so this is
// informational only.
func IsAnimatedWebP(data []byte) bool {
	if !IsWebP(data) {
		return false
	}
	// The ANIM chunk appears in the VP8X extended header region near the
	// start of the container; scanning the first KiB is sufficient.
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	return strings.Contains(string(data[:limit]), "ANIM")
}
