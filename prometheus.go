package main

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
)

// PrometheusMetrics holds the client's collectors. All methods are safe on a
// nil receiver so components can run without metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Connection metrics
	connectionsTotal  prometheus.Counter
	disconnectsTotal  prometheus.Counter
	connected         prometheus.Gauge
	framesReceived    *prometheus.CounterVec // by payload kind
	commandsSent      *prometheus.CounterVec // by cmd
	sendErrors        *prometheus.CounterVec // by reason
	decodeErrors      prometheus.Counter
	responsesReceived *prometheus.CounterVec // by cmd

	// Spot and enrichment metrics
	spotsTotal        *prometheus.CounterVec // by band
	spotsRetained     prometheus.Gauge
	spotSNR           prometheus.Histogram
	lookupsTotal      *prometheus.CounterVec // by result
	callsignCacheSize *prometheus.GaugeVec   // by state

	// Logbook metrics
	logbookEntries      prometheus.Gauge
	importRecordErrors  prometheus.Counter
	logbookImportsTotal *prometheus.CounterVec // by stage

	// Resource metrics
	goroutineCount   prometheus.Gauge
	memoryAllocBytes prometheus.Gauge
	cpuPercent       prometheus.Gauge
}

// NewPrometheusMetrics registers all collectors on a fresh registry
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	pm := &PrometheusMetrics{
		registry: reg,

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkclient_connections_total",
			Help: "Transport connections opened",
		}),
		disconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkclient_disconnects_total",
			Help: "Transport connections closed or failed",
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sparkclient_connected",
			Help: "1 while a transport connection is open",
		}),
		framesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkclient_frames_received_total",
				Help: "Inbound frames by payload kind",
			},
			[]string{"kind"},
		),
		commandsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkclient_commands_sent_total",
				Help: "Commands written to the transport",
			},
			[]string{"cmd"},
		),
		sendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkclient_send_errors_total",
				Help: "Commands that could not be sent",
			},
			[]string{"reason"},
		),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkclient_decode_errors_total",
			Help: "Text frames that failed to decode",
		}),
		responsesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkclient_responses_received_total",
				Help: "Decoded responses by cmd",
			},
			[]string{"cmd"},
		),

		spotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkclient_spots_total",
				Help: "Spots received by band",
			},
			[]string{"band"},
		),
		spotsRetained: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sparkclient_spots_retained",
			Help: "Spots currently held after trimming",
		}),
		spotSNR: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sparkclient_spot_snr_db",
			Help:    "Reported SNR of received spots",
			Buckets: prometheus.LinearBuckets(-30, 5, 12),
		}),
		lookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkclient_callsign_lookups_total",
				Help: "Callsign lookups by result",
			},
			[]string{"result"},
		),
		callsignCacheSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sparkclient_callsign_cache_entries",
				Help: "Callsign cache entries by state",
			},
			[]string{"state"},
		),

		logbookEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sparkclient_logbook_entries",
			Help: "Entries in the active log import",
		}),
		importRecordErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkclient_import_record_errors_total",
			Help: "Log records skipped because conversion failed",
		}),
		logbookImportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sparkclient_logbook_imports_total",
				Help: "Log import transitions",
			},
			[]string{"stage"},
		),

		goroutineCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sparkclient_goroutines",
			Help: "Number of goroutines",
		}),
		memoryAllocBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sparkclient_memory_alloc_bytes",
			Help: "Currently allocated heap bytes",
		}),
		cpuPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sparkclient_host_cpu_percent",
			Help: "Host CPU utilisation",
		}),
	}

	return pm
}

// Registry returns the registry the collectors live on
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	if pm == nil {
		return nil
	}
	return pm.registry
}

// Connection tracking methods
func (pm *PrometheusMetrics) RecordConnected() {
	if pm == nil {
		return
	}
	pm.connectionsTotal.Inc()
	pm.connected.Set(1)
}

func (pm *PrometheusMetrics) RecordDisconnected() {
	if pm == nil {
		return
	}
	pm.disconnectsTotal.Inc()
	pm.connected.Set(0)
}

func (pm *PrometheusMetrics) RecordFrame(kind string) {
	if pm == nil {
		return
	}
	pm.framesReceived.WithLabelValues(kind).Inc()
}

func (pm *PrometheusMetrics) RecordCommandSent(cmd string) {
	if pm == nil {
		return
	}
	pm.commandsSent.WithLabelValues(cmd).Inc()
}

func (pm *PrometheusMetrics) RecordSendError(reason string) {
	if pm == nil {
		return
	}
	pm.sendErrors.WithLabelValues(reason).Inc()
}

func (pm *PrometheusMetrics) RecordDecodeError() {
	if pm == nil {
		return
	}
	pm.decodeErrors.Inc()
}

func (pm *PrometheusMetrics) RecordResponse(cmd string) {
	if pm == nil {
		return
	}
	pm.responsesReceived.WithLabelValues(cmd).Inc()
}

// Spot tracking methods
func (pm *PrometheusMetrics) RecordSpot(band string, snr int) {
	if pm == nil {
		return
	}
	pm.spotsTotal.WithLabelValues(band).Inc()
	pm.spotSNR.Observe(float64(snr))
}

func (pm *PrometheusMetrics) SetSpotsRetained(n int) {
	if pm == nil {
		return
	}
	pm.spotsRetained.Set(float64(n))
}

func (pm *PrometheusMetrics) RecordLookup(result string) {
	if pm == nil {
		return
	}
	pm.lookupsTotal.WithLabelValues(result).Inc()
}

// SetCallsignCacheSizes publishes the cache population per state
func (pm *PrometheusMetrics) SetCallsignCacheSizes(counts map[CallsignState]int) {
	if pm == nil {
		return
	}
	for _, state := range []CallsignState{CallsignRequested, CallsignFound, CallsignNotFound} {
		pm.callsignCacheSize.WithLabelValues(state.String()).Set(float64(counts[state]))
	}
}

// Logbook tracking methods
func (pm *PrometheusMetrics) SetLogbookEntries(n int) {
	if pm == nil {
		return
	}
	pm.logbookEntries.Set(float64(n))
}

func (pm *PrometheusMetrics) RecordImportRecordErrors(n int) {
	if pm == nil {
		return
	}
	pm.importRecordErrors.Add(float64(n))
}

func (pm *PrometheusMetrics) RecordImportStage(stage string) {
	if pm == nil {
		return
	}
	pm.logbookImportsTotal.WithLabelValues(stage).Inc()
}

// updateResourceMetrics samples runtime and host resource usage
func (pm *PrometheusMetrics) updateResourceMetrics() {
	if pm == nil {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	pm.goroutineCount.Set(float64(runtime.NumGoroutine()))
	pm.memoryAllocBytes.Set(float64(m.Alloc))

	// Zero interval compares against the previous call
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		pm.cpuPercent.Set(percents[0])
	}
}

// StartResourceUpdater samples resource metrics until ctx is done
func (pm *PrometheusMetrics) StartResourceUpdater(ctx context.Context, interval time.Duration) {
	if pm == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.updateResourceMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.updateResourceMetrics()
		}
	}
}
