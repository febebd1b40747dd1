package metrics

import (
	"time"

	"sticker-press/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics
type Stats struct {
	CacheEntries int
	CacheBytes   int64
	TrackedJobs  int
	ActiveURLs   int
}

// Collector periodically collects and updates gauge metrics that are not
// maintained inline at their mutation sites.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	CacheEntries.Set(float64(stats.CacheEntries))
	CacheBytes.Set(float64(stats.CacheBytes))
	ConversionJobsTracked.Set(float64(stats.TrackedJobs))
	DownloadURLsActive.Set(float64(stats.ActiveURLs))

	logging.Debug("Metrics collected: cache=%d entries (%d bytes), jobs=%d, urls=%d",
		stats.CacheEntries, stats.CacheBytes, stats.TrackedJobs, stats.ActiveURLs)
}
