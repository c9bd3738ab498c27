// Package metrics exposes Prometheus counters for delivery and workflow outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_queue_items_enqueued_total",
		Help: "Total number of queue items admitted",
	})
	itemsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_queue_items_sent_total",
		Help: "Total number of queue items dispatched successfully",
	})
	itemsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_queue_items_failed_total",
		Help: "Total number of queue items that exhausted their attempts",
	})
	itemsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_queue_items_retried_total",
		Help: "Total number of retry reschedules after a transient failure",
	})
	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "herald_queue_in_flight",
		Help: "Queue items currently being dispatched",
	})
	dispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "herald_dispatch_latency_seconds",
		Help:    "Dispatch collaborator latency",
		Buckets: prometheus.DefBuckets,
	})
	executionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_executions_started_total",
		Help: "Total number of workflow executions started",
	})
	executionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_executions_completed_total",
		Help: "Total number of workflow executions completed",
	})
	executionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_executions_failed_total",
		Help: "Total number of workflow executions failed",
	})
)

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ItemEnqueued() { itemsEnqueued.Inc() }

func ItemSent() { itemsSent.Inc() }

func ItemFailed() { itemsFailed.Inc() }

func ItemRetried() { itemsRetried.Inc() }

func InFlightInc() { inFlightGauge.Inc() }

func InFlightDec() { inFlightGauge.Dec() }

func ObserveDispatch(latency time.Duration) {
	dispatchLatency.Observe(latency.Seconds())
}

func ExecutionStarted() { executionsStarted.Inc() }

func ExecutionCompleted() { executionsCompleted.Inc() }

func ExecutionFailed() { executionsFailed.Inc() }
