package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sticker-press/internal/convert"
	"sticker-press/internal/handlers"
	"sticker-press/internal/logging"
	"sticker-press/internal/memory"
	"sticker-press/internal/metrics"
	"sticker-press/internal/middleware"
	"sticker-press/internal/resultcache"
	"sticker-press/internal/startup"
	"sticker-press/internal/transcoder"
	"sticker-press/internal/urlstore"
	"sticker-press/internal/workers"
)

func main() {
	startTime := time.Now()

	// Configure GOMEMLIMIT before significant allocations
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize metrics
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	// Start memory monitor
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	// Initialize transcoding engine
	engine := transcoder.New(config.SessionDir)
	startup.LogTranscoderInit(engine.Available(context.Background()))

	// Initialize URL store and result cache
	urls := urlstore.New()

	startup.LogCacheInit(config.CacheEntries, config.CacheMaxAge)
	cache, err := resultcache.New(resultcache.Config{
		MaxEntries: config.CacheEntries,
		MaxAge:     config.CacheMaxAge,
	}, urls)
	if err != nil {
		startup.LogFatal("Failed to initialize result cache: %v", err)
	}
	cache.Start()

	// Initialize conversion controller
	workerCount := workers.ForCPU(0)
	startup.LogControllerInit(workerCount, config.ConvertTimeout)
	controller := convert.New(convert.FFmpeg(engine), cache, urls, convert.Options{
		Workers:        workerCount,
		ConvertTimeout: config.ConvertTimeout,
		JobTTL:         config.JobTTL,
		Gate:           monitor,
	})
	controller.Start()

	// Initialize handlers
	h := handlers.New(controller, engine, cache, urls, config)

	// Start metrics collector and server
	collector := metrics.NewCollector(appStats{cache: cache, controller: controller, urls: urls}, 15*time.Second)
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		collector.Start()
		metricsSrv = startMetricsServer(config.MetricsPort)
	}

	// Setup router
	router := setupRouter(h)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	// Apply metrics middleware
	meteredHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(router)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(meteredHandler)

	// Apply compression middleware
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(loggedHandler)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute, // uploads can be slow on mobile links
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, controller, cache, monitor, collector)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

// appStats aggregates per-component counters for the metrics collector.
type appStats struct {
	cache      *resultcache.Cache
	controller *convert.Controller
	urls       *urlstore.Store
}

func (s appStats) GetStats() metrics.Stats {
	cacheStats := s.cache.Stats()
	return metrics.Stats{
		CacheEntries: cacheStats.Entries,
		CacheBytes:   cacheStats.Bytes,
		TrackedJobs:  s.controller.TrackedJobs(),
		ActiveURLs:   s.urls.Len(),
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Conversion API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/convert", h.StartConversion).Methods("POST")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/retry", h.RetryJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/reset", h.ResetJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/preview", h.Preview).Methods("GET")

	// Cache administration
	api.HandleFunc("/cache/stats", h.GetCacheStats).Methods("GET")
	api.HandleFunc("/cache", h.ClearCache).Methods("DELETE")

	// Job progress WebSocket
	r.HandleFunc("/ws/jobs/{id}", h.JobEvents).Methods("GET")

	// Sticker downloads
	r.HandleFunc("/download/{token}", h.Download).Methods("GET")

	// Static files
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./static")))

	return r
}

// startMetricsServer serves Prometheus metrics on its own port so scrapes
// never compete with uploads.
func startMetricsServer(port string) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("Metrics server error: %v", err)
		}
	}()

	return srv
}

func handleShutdown(srv, metricsSrv *http.Server, controller *convert.Controller, cache *resultcache.Cache, monitor *memory.Monitor, collector *metrics.Collector) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping conversion controller")
	controller.Stop()
	startup.LogShutdownStepComplete("Conversion controller stopped")

	startup.LogShutdownStep("Closing result cache")
	cache.Close()
	startup.LogShutdownStepComplete("Result cache closed")

	startup.LogShutdownStep("Stopping memory monitor")
	monitor.Stop()
	collector.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
