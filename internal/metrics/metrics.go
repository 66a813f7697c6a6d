// Package metrics exposes ingestion counters in Prometheus format.
//
// chatlog is a batch tool, so metrics are not scraped: after a run the registry is
// written to a file for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatlog"

// Ingest holds the counters for one ingestion run. A nil *Ingest discards observations.
type Ingest struct {
	Registry *prometheus.Registry

	Conversations prometheus.Counter
	Messages      prometheus.Counter
	Skipped       prometheus.Counter
	Batches       prometheus.Counter
	Duration      prometheus.Gauge
	LastSuccess   prometheus.Gauge
}

// NewIngest creates the counters on a private registry.
func NewIngest() *Ingest {
	m := &Ingest{
		Registry: prometheus.NewRegistry(),
		Conversations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_ingested_total",
			Help:      "Conversations committed to the store.",
		}),
		Messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Messages committed to the store.",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Conversation records skipped because they could not be decoded or processed.",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_committed_total",
			Help:      "Batch transactions committed.",
		}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of the last ingestion run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful ingestion run.",
		}),
	}
	m.Registry.MustRegister(m.Conversations, m.Messages, m.Skipped, m.Batches, m.Duration, m.LastSuccess)
	return m
}

// ObserveBatch records one committed batch.
func (m *Ingest) ObserveBatch(conversations, messages int) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.Conversations.Add(float64(conversations))
	m.Messages.Add(float64(messages))
}

// ObserveSkip records one skipped record.
func (m *Ingest) ObserveSkip() {
	if m == nil {
		return
	}
	m.Skipped.Inc()
}

// ObserveRun records the end of a run.
func (m *Ingest) ObserveRun(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.Duration.Set(d.Seconds())
	if ok {
		m.LastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile writes the registry atomically in the text exposition format.
func (m *Ingest) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
