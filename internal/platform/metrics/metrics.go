package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	Lookups        *prometheus.CounterVec
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	RequestRetries prometheus.Counter
	Scans          prometheus.Counter
	ScansSkipped   prometheus.Counter
	EmailsLinked   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crmscan_lookups_total",
			Help: "Classification lookups by resulting status",
		}, []string{"status"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crmscan_cache_hits_total",
			Help: "Cache hits by tier (email, domain)",
		}, []string{"tier"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crmscan_cache_misses_total",
			Help: "Cache misses by tier (email, domain)",
		}, []string{"tier"}),
		RequestRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crmscan_request_retries_total",
			Help: "CRM request attempts rescheduled after 429 or timeout",
		}),
		Scans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crmscan_scans_total",
			Help: "Completed document scans",
		}),
		ScansSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crmscan_scans_skipped_total",
			Help: "Scan requests dropped because a scan was already running or the engine was paused",
		}),
		EmailsLinked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crmscan_emails_linked_total",
			Help: "Text spans promoted to mailto links",
		}),
	}
}
