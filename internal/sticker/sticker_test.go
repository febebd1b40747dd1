package sticker

import (
	"strings"
	"testing"
	"time"
)

func TestParseDevice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  DeviceClass
	}{
		{name: "Mobile lowercase", input: "mobile", want: DeviceMobile},
		{name: "Mobile mixed case", input: "Mobile", want: DeviceMobile},
		{name: "Mobile with whitespace", input: " mobile ", want: DeviceMobile},
		{name: "Desktop", input: "desktop", want: DeviceDesktop},
		{name: "Empty falls back to desktop", input: "", want: DeviceDesktop},
		{name: "Garbage falls back to desktop", input: "tablet", want: DeviceDesktop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDevice(tt.input); got != tt.want {
				t.Errorf("Expected device %q, got %q", tt.want, got)
			}
		})
	}
}

func TestInputFileName(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		want     string
	}{
		{name: "MP4", mimeType: "video/mp4", want: "input.mp4"},
		{name: "QuickTime", mimeType: "video/quicktime", want: "input.mov"},
		{name: "WebM", mimeType: "video/webm", want: "input.webm"},
		{name: "Uppercase MIME", mimeType: "VIDEO/MP4", want: "input.mp4"},
		{name: "Unknown type", mimeType: "application/octet-stream", want: "input.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InputFileName(tt.mimeType); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEncodeArgs(t *testing.T) {
	args := EncodeArgs("input.mp4", "output.webp")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-i input.mp4",
		"-t 3",
		"scale=512:512",
		"fps=15",
		"-c:v libwebp",
		"-q:v 80",
		"-loop 0",
		"-an",
		"output.webp",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected args to contain %q, got %q", want, joined)
		}
	}

	if args[len(args)-1] != "output.webp" {
		t.Errorf("Expected output name last, got %q", args[len(args)-1])
	}
}

func TestSuggestedFilename(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "Strips extension", source: "holiday.mp4", want: "holiday-sticker-1700000000.webp"},
		{name: "Replaces spaces", source: "my video.mov", want: "my_video-sticker-1700000000.webp"},
		{name: "Empty source", source: "", want: "sticker-sticker-1700000000.webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuggestedFilename(tt.source, now); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "Plain name unchanged", input: "video.mp4", want: "video.mp4"},
		{name: "Path components stripped", input: "../../etc/passwd", want: "passwd"},
		{name: "Spaces become underscores", input: "my clip.mov", want: "my_clip.mov"},
		{name: "Special characters replaced", input: "a$b%c.mp4", want: "a_b_c.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsWebP(t *testing.T) {
	webp := []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")

	if !IsWebP(webp) {
		t.Error("Expected valid WebP header to be recognized")
	}

	if IsWebP([]byte("RIFF\x24\x00\x00\x00WAVE")) {
		t.Error("Expected RIFF WAVE to be rejected")
	}

	if IsWebP([]byte("RIFF")) {
		t.Error("Expected truncated data to be rejected")
	}

	if IsWebP(nil) {
		t.Error("Expected nil data to be rejected")
	}
}

func TestIsAnimatedWebP(t *testing.T) {
	animated := append([]byte("RIFF\x24\x00\x00\x00WEBPVP8X\x00\x00\x00\x00"), []byte("ANIM\x06\x00\x00\x00")...)
	if !IsAnimatedWebP(animated) {
		t.Error("Expected ANIM chunk to mark WebP as animated")
	}

	still := []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x00\x00\x00\x00")
	if IsAnimatedWebP(still) {
		t.Error("Expected still WebP to not be animated")
	}

	if IsAnimatedWebP([]byte("not webp at all")) {
		t.Error("Expected non-WebP data to not be animated")
	}
}
