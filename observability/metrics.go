package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CrowdfundMetrics records ledger operation activity for the /metrics surface.
type CrowdfundMetrics struct {
	contributions    prometheus.Counter
	campaigns        prometheus.Counter
	settlements      *prometheus.CounterVec
	transferFailures *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

var (
	crowdfundOnce     sync.Once
	crowdfundRegistry *CrowdfundMetrics
)

// Crowdfund returns the lazily-initialised metrics registry used to record
// crowdfund engine activity.
func Crowdfund() *CrowdfundMetrics {
	crowdfundOnce.Do(func() {
		crowdfundRegistry = &CrowdfundMetrics{
			contributions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fanfund",
				Subsystem: "crowdfund",
				Name:      "contributions_total",
				Help:      "Total accepted contributions.",
			}),
			campaigns: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fanfund",
				Subsystem: "crowdfund",
				Name:      "campaigns_total",
				Help:      "Total campaigns created.",
			}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fanfund",
				Subsystem: "crowdfund",
				Name:      "settlements_total",
				Help:      "Total settlement actions segmented by kind (finalize, withdraw, refund).",
			}, []string{"kind"}),
			transferFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fanfund",
				Subsystem: "crowdfund",
				Name:      "transfer_failures_total",
				Help:      "Settlement transfers that failed after the ledger flag committed.",
			}, []string{"kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fanfund",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			crowdfundRegistry.contributions,
			crowdfundRegistry.campaigns,
			crowdfundRegistry.settlements,
			crowdfundRegistry.transferFailures,
			crowdfundRegistry.latency,
		)
	})
	return crowdfundRegistry
}

// ObserveContribution counts an accepted contribution.
func (m *CrowdfundMetrics) ObserveContribution() {
	if m == nil {
		return
	}
	m.contributions.Inc()
}

// ObserveCampaignCreated counts a created campaign.
func (m *CrowdfundMetrics) ObserveCampaignCreated() {
	if m == nil {
		return
	}
	m.campaigns.Inc()
}

// ObserveSettlement counts a settlement action by kind.
func (m *CrowdfundMetrics) ObserveSettlement(kind string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind).Inc()
}

// ObserveTransferFailure counts a post-flag transfer failure by kind.
func (m *CrowdfundMetrics) ObserveTransferFailure(kind string) {
	if m == nil {
		return
	}
	m.transferFailures.WithLabelValues(kind).Inc()
}

// ObserveLatency records handler latency for a JSON-RPC method.
func (m *CrowdfundMetrics) ObserveLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(method).Observe(d.Seconds())
}
