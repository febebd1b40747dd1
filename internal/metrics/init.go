package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"success", "error"} {
		TranscoderRunsTotal.WithLabelValues(status)
	}

	for _, state := range []string{"succeeded", "failed", "cancelled"} {
		ConversionJobsTotal.WithLabelValues(state)
	}

	for _, category := range []string{
		"unsupported_format", "file_too_large", "duration_exceeded",
		"processing_failed", "memory_limit_exceeded", "operation_timeout",
		"transcoder_unavailable", "cancelled", "unknown",
	} {
		ConversionFailuresTotal.WithLabelValues(category)
	}

	for _, outcome := range []string{"ok", "gone", "not_found"} {
		DownloadsServed.WithLabelValues(outcome)
	}

	for _, reason := range []string{"mime_type", "file_size", "empty_file"} {
		ValidationRejections.WithLabelValues(reason)
	}
}
