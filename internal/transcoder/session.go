package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"sticker-press/internal/logging"
	"sticker-press/internal/metrics"
	"sticker-press/internal/sticker"
)

// Session is a scratch filesystem for one conversion: input and output files
// live in a private temp directory that Close removes.
type Session struct {
	dir string

	mu   sync.Mutex
	clip sticker.ClipInfo
}

// Dir returns the session's scratch directory.
func (s *Session) Dir() string {
	return s.dir
}

// WriteInput stores the uploaded clip in the session directory under name.
func (s *Session) WriteInput(name string, r io.Reader) (int64, error) {
	path := filepath.Join(s.dir, filepath.Base(name))

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create input file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write input file: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("input file %s is empty", name)
	}

	return n, nil
}

// Probe inspects a previously written input file and remembers its duration
// so Run can scale progress against it.
func (s *Session) Probe(ctx context.Context, name string) (sticker.ClipInfo, error) {
	info, err := probe(ctx, filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return sticker.ClipInfo{}, err
	}

	s.mu.Lock()
	s.clip = info
	s.mu.Unlock()

	return info, nil
}

// Run executes ffmpeg with the given args inside the session directory and
// reports completion percentage via onProgress. The command is killed when
// ctx is cancelled.
func (s *Session) Run(ctx context.Context, args []string, onProgress func(percent float64)) error {
	start := time.Now()
	metrics.TranscoderRunsInProgress.Inc()
	defer metrics.TranscoderRunsInProgress.Dec()

	full := append([]string{"-y", "-progress", "pipe:1", "-nostats", "-hide_banner", "-loglevel", "error"}, args...)

	cmd := exec.CommandContext(ctx, "ffmpeg", full...)
	cmd.Dir = s.dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		metrics.TranscoderRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Keep the last stderr line for error reporting; ffmpeg prints the
	// useful diagnostic last.
	var errMu sync.Mutex
	var lastErrLine string
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				errMu.Lock()
				lastErrLine = line
				errMu.Unlock()
			}
		}
	}()

	effective := s.effectiveDuration()
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "out_time_us="):
			if onProgress == nil || effective <= 0 {
				continue
			}
			if us, convErr := strconv.ParseFloat(strings.TrimPrefix(line, "out_time_us="), 64); convErr == nil {
				elapsed := time.Duration(us) * time.Microsecond
				ratio := float64(elapsed) / float64(effective)
				onProgress(ratio * 100)
			}
		case strings.HasPrefix(line, "progress=end"):
			if onProgress != nil {
				onProgress(100)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		metrics.TranscoderRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed reading ffmpeg progress: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		metrics.TranscoderRunsTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errMu.Lock()
		diag := lastErrLine
		errMu.Unlock()
		if diag != "" {
			return fmt.Errorf("ffmpeg failed: %s", diag)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	metrics.TranscoderRunsTotal.WithLabelValues("success").Inc()
	metrics.TranscoderRunDuration.Observe(time.Since(start).Seconds())
	return nil
}

// ReadOutput returns the encoded bytes written by a prior Run.
func (s *Session) ReadOutput(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read output file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("output file %s is empty", name)
	}
	return data, nil
}

// DeleteFile removes a scratch file. Best-effort: failures are logged, not
// propagated, since Close removes the whole directory anyway.
func (s *Session) DeleteFile(name string) {
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("failed to delete session file %s: %v", path, err)
	}
}

// Close removes the session directory and everything in it.
func (s *Session) Close() {
	if err := os.RemoveAll(s.dir); err != nil {
		logging.Warn("failed to remove session directory %s: %v", s.dir, err)
	}
}

// effectiveDuration is the denominator for progress: the clip duration
// clamped to the sticker limit, since output never exceeds the limit.
func (s *Session) effectiveDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.clip.Duration
	if d <= 0 || d > sticker.MaxDuration {
		d = sticker.MaxDuration
	}
	return d
}
