package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_NilSafe(t *testing.T) {
	var pm *PrometheusMetrics
	assert.NotPanics(t, func() {
		pm.RecordConnected()
		pm.RecordDisconnected()
		pm.RecordFrame("text")
		pm.RecordCommandSent("getVersion")
		pm.RecordSendError("not_connected")
		pm.RecordDecodeError()
		pm.RecordResponse("getVersionResponse")
		pm.RecordSpot("20m", -10)
		pm.SetSpotsRetained(3)
		pm.RecordLookup("found")
		pm.SetCallsignCacheSizes(map[CallsignState]int{CallsignFound: 1})
		pm.SetLogbookEntries(10)
		pm.RecordImportRecordErrors(2)
		pm.RecordImportStage("loaded")
	})
	assert.Nil(t, pm.Registry())
}

func TestPrometheusMetrics_Record(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.RecordConnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.connectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.connected))
	pm.RecordDisconnected()
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.connected))

	pm.RecordCommandSent("setMode")
	pm.RecordCommandSent("setMode")
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.commandsSent.WithLabelValues("setMode")))

	pm.RecordSpot("20m", -12)
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.spotsTotal.WithLabelValues("20m")))

	pm.SetCallsignCacheSizes(map[CallsignState]int{CallsignFound: 4, CallsignRequested: 1})
	assert.Equal(t, 4.0, testutil.ToFloat64(pm.callsignCacheSize.WithLabelValues("found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.callsignCacheSize.WithLabelValues("not_found")))

	pm.RecordImportRecordErrors(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.importRecordErrors))

	families, err := pm.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestPrometheusMetrics_ResourceSample(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.updateResourceMetrics()
	assert.Greater(t, testutil.ToFloat64(pm.goroutineCount), 0.0)
	assert.Greater(t, testutil.ToFloat64(pm.memoryAllocBytes), 0.0)
}
