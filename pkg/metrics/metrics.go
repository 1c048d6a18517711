// Package metrics provides Prometheus metrics for the ingredient manager.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchOutcomesTotal tracks label resolutions by cascade stage
	MatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingredients",
			Subsystem: "matching",
			Name:      "outcomes_total",
			Help:      "Total number of label resolutions by method",
		},
		[]string{"method"},
	)

	// MatchSkippedTotal counts automatic resolutions that left a manual record in place
	MatchSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ingredients",
			Subsystem: "matching",
			Name:      "manual_preserved_total",
			Help:      "Automatic resolutions skipped because the record is curated",
		},
	)

	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ingredients",
			Subsystem: "matching",
			Name:      "resolve_product_duration_seconds",
			Help:      "Duration of whole-product resolutions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
	)

	CatalogCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ingredients",
			Subsystem: "catalog_cache",
			Name:      "entries",
			Help:      "Number of catalog entries held by the cache",
		},
	)

	CatalogCacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingredients",
			Subsystem: "catalog_cache",
			Name:      "loads_total",
			Help:      "Catalog cache loads by status",
		},
		[]string{"status"},
	)

	// RematchItemsTotal tracks bulk rematch items by final status
	RematchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingredients",
			Subsystem: "rematch",
			Name:      "items_total",
			Help:      "Bulk rematch items by status",
		},
		[]string{"status"},
	)

	RematchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ingredients",
			Subsystem: "rematch",
			Name:      "retries_total",
			Help:      "Retried bulk rematch attempts",
		},
	)

	RematchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ingredients",
			Subsystem: "rematch",
			Name:      "items_in_flight",
			Help:      "Products currently being re-resolved",
		},
	)

	ScoreEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingredients",
			Subsystem: "scoring",
			Name:      "evaluations_total",
			Help:      "Rule evaluations by rule and verdict",
		},
		[]string{"rule_id", "verdict"},
	)

	// KafkaMessagesPublished tracks messages published to Kafka
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingredients",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingredients",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka",
		},
		[]string{"topic", "status"},
	)
)

func RecordMatch(method string) {
	MatchOutcomesTotal.WithLabelValues(method).Inc()
}

func RecordRematchItem(status string) {
	RematchItemsTotal.WithLabelValues(status).Inc()
}

func RecordScore(ruleID, verdict string) {
	ScoreEvaluationsTotal.WithLabelValues(ruleID, verdict).Inc()
}

func RecordKafkaPublish(topic, status string, count int) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Add(float64(count))
}

func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}
