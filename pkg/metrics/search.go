package metrics

import (
	"time"

	"github.com/offerforge/offerforge/pkg/stepgraph"
)

func (m *Manager) initSearchMetrics(cfg Config) {
	m.searches = m.counterVec("journey_searches_total",
		"Candidate searches by step and result", "step", "result")
	m.searchDuration = m.histogramVec("journey_search_duration_seconds",
		"Candidate search latency", cfg.SearchDurationBuckets, "step")
	m.cacheResults = m.counterVec("inventory_cache_results_total",
		"Inventory cache lookups by step and result", "step", "result")
}

// RecordSearch records a finished search with result "completed",
// "failed" or "discarded". Discarded searches are not timed.
func (m *Manager) RecordSearch(step, result string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.searches.WithLabelValues(step, result).Inc()
	if result != "discarded" {
		m.searchDuration.WithLabelValues(step).Observe(duration.Seconds())
	}
}

// CacheResult records an inventory cache hit or miss.
func (m *Manager) CacheResult(step stepgraph.StepID, hit bool) {
	if !m.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheResults.WithLabelValues(string(step), result).Inc()
}
