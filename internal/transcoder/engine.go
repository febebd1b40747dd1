package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"sticker-press/internal/logging"
	"sticker-press/internal/sticker"
)

// Engine wraps the FFmpeg/ffprobe binaries behind the narrow contract the
// conversion controller consumes. Load is idempotent: the binary check runs
// once and concurrent callers share its outcome.
type Engine struct {
	workDir string

	loadOnce sync.Once
	loadErr  error
}

// New creates an Engine whose scratch sessions live under workDir.
func New(workDir string) *Engine {
	return &Engine{workDir: workDir}
}

// Load verifies the media binaries are usable and opens a scratch session
// for one conversion. The verification runs once per process; concurrent
// Load calls block on the same in-flight check instead of spawning another.
func (e *Engine) Load(ctx context.Context) (*Session, error) {
	e.loadOnce.Do(func() {
		e.loadErr = checkBinaries(ctx)
	})
	if e.loadErr != nil {
		return nil, fmt.Errorf("transcoder unavailable: %w", e.loadErr)
	}

	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	dir, err := os.MkdirTemp(e.workDir, "session-")
	if err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &Session{dir: dir}, nil
}

// Available reports whether the engine's binaries passed verification.
// It triggers the shared check if it has not run yet.
func (e *Engine) Available(ctx context.Context) error {
	e.loadOnce.Do(func() {
		e.loadErr = checkBinaries(ctx)
	})
	if e.loadErr != nil {
		return fmt.Errorf("transcoder unavailable: %w", e.loadErr)
	}
	return nil
}

// ProbeFile extracts duration and dimensions from a video file on disk.
// Used by upload validation before a conversion session exists.
func (e *Engine) ProbeFile(ctx context.Context, path string) (sticker.ClipInfo, error) {
	return probe(ctx, path)
}

func checkBinaries(ctx context.Context) error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		path, err := exec.LookPath(bin)
		if err != nil {
			return fmt.Errorf("%s not found in PATH", bin)
		}
		logging.Debug("%s path: %s", bin, path)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(checkCtx, "ffmpeg", "-version")
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	if lines := strings.Split(string(output), "\n"); len(lines) > 0 {
		logging.Debug("ffmpeg version: %s", strings.TrimSpace(lines[0]))
	}

	return nil
}

// probe runs ffprobe and parses its flat key=value output.
func probe(ctx context.Context, path string) (sticker.ClipInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return sticker.ClipInfo{}, fmt.Errorf("ffprobe failed: %s", msg)
		}
		return sticker.ClipInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeOutput(out), nil
}

// parseProbeOutput parses ffprobe's flat key=value lines.
func parseProbeOutput(out []byte) sticker.ClipInfo {
	var info sticker.ClipInfo
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "width":
			info.Width, _ = strconv.Atoi(value)
		case "height":
			info.Height, _ = strconv.Atoi(value)
		case "duration":
			if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
				info.Duration = time.Duration(secs * float64(time.Second))
			}
		}
	}
	return info
}
