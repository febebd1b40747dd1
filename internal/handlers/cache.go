package handlers

import (
	"net/http"

	"sticker-press/internal/resultcache"
)

// CacheStatsResponse reports cache effectiveness and live download URLs.
type CacheStatsResponse struct {
	Cache      resultcache.Stats `json:"cache"`
	ActiveURLs int               `json:"activeUrls"`
}

// GetCacheStats returns result cache counters.
func (h *Handlers) GetCacheStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, CacheStatsResponse{
		Cache:      h.cache.Stats(),
		ActiveURLs: h.urls.Len(),
	})
}

// ClearCache drops every cached result, revoking their download URLs.
func (h *Handlers) ClearCache(w http.ResponseWriter, _ *http.Request) {
	removed := h.cache.Clear()

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]int{"removed": removed})
}
