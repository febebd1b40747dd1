package convert

import (
	"context"
	"errors"
	"strings"
)

// Category names a class of conversion failure. Values double as metric
// labels, so they stay snake_case.
type Category string

const (
	CategoryUnsupportedFormat     Category = "unsupported_format"
	CategoryFileTooLarge          Category = "file_too_large"
	CategoryDurationExceeded      Category = "duration_exceeded"
	CategoryProcessingFailed      Category = "processing_failed"
	CategoryMemoryLimitExceeded   Category = "memory_limit_exceeded"
	CategoryOperationTimeout      Category = "operation_timeout"
	CategoryTranscoderUnavailable Category = "transcoder_unavailable"
	CategoryCancelled             Category = "cancelled"
	CategoryUnknown               Category = "unknown"
)

// errMemoryPressure is returned when the memory monitor refuses new work.
var errMemoryPressure = errors.New("memory limit exceeded: conversion refused under memory pressure")

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrNotRunning     = errors.New("job is not running")
	ErrAlreadyRunning = errors.New("job is already running")
)

// Classify maps a conversion error to a failure category. Context errors are
// matched structurally; everything else falls back to pattern matching on the
// message, since ffmpeg does not surface structured error codes. Unrecognized
// errors land in CategoryProcessingFailed rather than CategoryUnknown because
// they all come out of the processing pipeline.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryOperationTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "executable file not found", "not found in path", "unavailable"):
		return CategoryTranscoderUnavailable
	case containsAny(msg, "cannot allocate", "out of memory", "memory"):
		return CategoryMemoryLimitExceeded
	case containsAny(msg, "timed out", "timeout"):
		return CategoryOperationTimeout
	case containsAny(msg, "invalid data", "unsupported", "unknown format", "moov atom", "no decoder", "could not find codec"):
		return CategoryUnsupportedFormat
	case containsAny(msg, "file too large", "exceeds size limit"):
		return CategoryFileTooLarge
	case strings.Contains(msg, "cancel"):
		return CategoryCancelled
	default:
		return CategoryProcessingFailed
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Message returns the user-facing description for a category.
func (c Category) Message() string {
	switch c {
	case CategoryUnsupportedFormat:
		return "This video format is not supported or the file is corrupted."
	case CategoryFileTooLarge:
		return "The file is too large to convert."
	case CategoryDurationExceeded:
		return "The video is longer than the sticker limit; only the beginning will be used."
	case CategoryMemoryLimitExceeded:
		return "The server is low on memory right now."
	case CategoryOperationTimeout:
		return "The conversion took too long and was stopped."
	case CategoryTranscoderUnavailable:
		return "The conversion engine is not available."
	case CategoryCancelled:
		return "The conversion was cancelled."
	case CategoryProcessingFailed:
		return "The video could not be converted."
	default:
		return "Something went wrong during conversion."
	}
}

// Troubleshooting returns an actionable hint for a category, or empty when
// there is nothing useful to suggest.
func (c Category) Troubleshooting() string {
	switch c {
	case CategoryUnsupportedFormat:
		return "Try re-exporting the video as MP4 (H.264) and upload it again."
	case CategoryFileTooLarge:
		return "Trim the video or export it at a lower resolution, then retry."
	case CategoryMemoryLimitExceeded:
		return "Wait a moment and retry; the server frees memory as jobs finish."
	case CategoryOperationTimeout:
		return "Retry with a shorter or smaller video."
	case CategoryTranscoderUnavailable:
		return "The server is missing its FFmpeg installation; contact the operator."
	case CategoryProcessingFailed:
		return "Retry the conversion; if it keeps failing, try a different source file."
	default:
		return ""
	}
}

// Retryable reports whether a retry has a reasonable chance of succeeding.
func (c Category) Retryable() bool {
	switch c {
	case CategoryUnsupportedFormat, CategoryFileTooLarge, CategoryTranscoderUnavailable:
		return false
	default:
		return true
	}
}
