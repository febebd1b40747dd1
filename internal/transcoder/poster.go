package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Poster extracts the first frame of a video file as PNG bytes, used for
// preview thumbnails while a conversion is running or after it completes.
func (e *Engine) Poster(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("poster extraction failed: %s", msg)
		}
		return nil, fmt.Errorf("poster extraction failed: %w", err)
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("poster extraction produced no frame")
	}

	return stdout.Bytes(), nil
}
