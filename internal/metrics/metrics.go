package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sticker_press_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sticker_press_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Conversion job metrics
var (
	ConversionJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sticker_press_conversion_jobs_total",
			Help: "Total number of conversion jobs by terminal state",
		},
		[]string{"state"},
	)

	ConversionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sticker_press_conversion_failures_total",
			Help: "Total number of failed conversions by error category",
		},
		[]string{"category"},
	)

	ConversionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sticker_press_conversion_duration_seconds",
			Help:    "End-to-end conversion duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)

	ConversionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_conversions_in_progress",
			Help: "Number of conversions currently running",
		},
	)

	ConversionJobsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_conversion_jobs_tracked",
			Help: "Number of jobs currently tracked by the controller",
		},
	)
)

// Result cache metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sticker_press_result_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sticker_press_result_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sticker_press_result_cache_evictions_total",
			Help: "Total number of entries evicted for capacity or replacement",
		},
	)

	CacheExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sticker_press_result_cache_expirations_total",
			Help: "Total number of entries purged after exceeding max age",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_result_cache_entries",
			Help: "Number of results currently cached",
		},
	)

	CacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_result_cache_bytes",
			Help: "Total size of cached results in bytes",
		},
	)
)

// Transcoder metrics
var (
	TranscoderRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sticker_press_transcoder_runs_total",
			Help: "Total number of FFmpeg runs",
		},
		[]string{"status"},
	)

	TranscoderRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sticker_press_transcoder_run_duration_seconds",
			Help:    "FFmpeg run duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	TranscoderRunsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_transcoder_runs_in_progress",
			Help: "Number of FFmpeg runs currently in progress",
		},
	)
)

// Download URL metrics
var (
	DownloadURLsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_download_urls_active",
			Help: "Number of live download tokens",
		},
	)

	DownloadURLRevocations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sticker_press_download_url_revocations_total",
			Help: "Total number of download tokens revoked",
		},
	)

	DownloadsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sticker_press_downloads_served_total",
			Help: "Total number of download requests by outcome",
		},
		[]string{"outcome"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_memory_usage_ratio",
			Help: "Current heap usage as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sticker_press_memory_paused",
			Help: "Whether conversions are paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sticker_press_memory_gc_pauses_total",
			Help: "Total number of times memory pressure forced a GC",
		},
	)
)

// Validation metrics
var (
	ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sticker_press_validation_rejections_total",
			Help: "Total number of uploads rejected by validation",
		},
		[]string{"reason"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sticker_press_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
