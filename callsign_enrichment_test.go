package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeLookup) Lookup(ctx context.Context, call Call) (Call, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call.Callsign)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return call, err
	}
	call.Info = &CallInfo{Call: call.Callsign, Op: "Test Operator", State: "CT"}
	return call, nil
}

func (f *fakeLookup) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// handleNext runs the next queued event the way the event loop would
func handleNext(t *testing.T, m *Model) {
	t.Helper()
	select {
	case env := <-m.events:
		require.NoError(t, m.handle(env.ev))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lookup completion")
	}
}

func lookupModel(t *testing.T, policy LookupFailurePolicy, lookup CallsignLookup) *Model {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Lookup.Enabled = true
	cfg.Lookup.BaseURL = "http://lookup.invalid"
	cfg.Lookup.OnFailure = string(policy)
	m, _ := newConnectedModel(t, cfg, ModelDeps{Lookup: lookup, Metrics: NewPrometheusMetrics()})
	return m
}

func usSpot(m *Model, call string) Spot {
	s := testSpot(call, -10)
	s.Call = NewCall(call, m.cty)
	return s
}

func TestEnrichment_OneLookupPerCallsign(t *testing.T) {
	lookup := &fakeLookup{}
	m := lookupModel(t, LookupFailureKeep, lookup)

	m.AddSpot(usSpot(m, "K1ABC"))
	m.AddSpot(usSpot(m, "k1abc"))

	info, ok := m.CallsignInfo("K1ABC")
	require.True(t, ok)
	assert.Equal(t, CallsignRequested, info.State)
	assert.False(t, m.spots[0].Call.Enriched())

	handleNext(t, m)
	assert.Equal(t, []string{"K1ABC"}, lookup.requested())

	info, ok = m.CallsignInfo("K1ABC")
	require.True(t, ok)
	assert.Equal(t, CallsignFound, info.State)

	// Spots stored before the answer arrived are rewritten
	for _, s := range m.spots {
		assert.Equal(t, "CT", s.Call.State())
		assert.Equal(t, "United States", s.Call.Country)
	}

	// Later spots are enriched from the cache without another request
	m.AddSpot(usSpot(m, "K1ABC"))
	assert.Equal(t, "Test Operator", m.spots[2].Call.Op())
	assert.Len(t, lookup.requested(), 1)
}

func TestEnrichment_OutsideJurisdictionNotLookedUp(t *testing.T) {
	lookup := &fakeLookup{}
	m := lookupModel(t, LookupFailureKeep, lookup)

	m.AddSpot(usSpot(m, "JA1ABC"))
	m.AddSpot(usSpot(m, "KL7ABC"))
	m.AddSpot(usSpot(m, "QQ1QQ"))

	assert.Empty(t, m.callsigns)
	assert.Len(t, m.spots, 3)
	select {
	case env := <-m.events:
		t.Fatalf("unexpected event %T", env.ev)
	default:
	}
	assert.Empty(t, lookup.requested())
}

func TestEnrichment_DisabledLookup(t *testing.T) {
	m, _ := newConnectedModel(t, nil, ModelDeps{})
	m.AddSpot(usSpot(m, "K1ABC"))
	assert.Empty(t, m.callsigns)
}

func TestEnrichment_FailurePolicies(t *testing.T) {
	failing := errors.New("service unavailable")

	t.Run("keep", func(t *testing.T) {
		lookup := &fakeLookup{err: failing}
		m := lookupModel(t, LookupFailureKeep, lookup)

		m.AddSpot(usSpot(m, "W1AW"))
		handleNext(t, m)

		info, ok := m.CallsignInfo("W1AW")
		require.True(t, ok)
		assert.Equal(t, CallsignRequested, info.State)

		m.AddSpot(usSpot(m, "W1AW"))
		assert.Len(t, lookup.requested(), 1, "a kept entry suppresses retries")
	})

	t.Run("not_found", func(t *testing.T) {
		lookup := &fakeLookup{err: failing}
		m := lookupModel(t, LookupFailureNotFound, lookup)

		m.AddSpot(usSpot(m, "W1AW"))
		handleNext(t, m)

		info, ok := m.CallsignInfo("W1AW")
		require.True(t, ok)
		assert.Equal(t, CallsignNotFound, info.State)

		m.AddSpot(usSpot(m, "W1AW"))
		assert.Len(t, lookup.requested(), 1)
		assert.False(t, m.spots[1].Call.Enriched())
	})

	t.Run("forget", func(t *testing.T) {
		lookup := &fakeLookup{err: failing}
		m := lookupModel(t, LookupFailureForget, lookup)

		m.AddSpot(usSpot(m, "W1AW"))
		handleNext(t, m)

		_, ok := m.CallsignInfo("W1AW")
		assert.False(t, ok)

		m.AddSpot(usSpot(m, "W1AW"))
		handleNext(t, m)
		assert.Len(t, lookup.requested(), 2, "a forgotten entry is retried")
	})
}

func TestEnrichment_LateFailureDoesNotDowngradeFound(t *testing.T) {
	m := lookupModel(t, LookupFailureNotFound, &fakeLookup{})

	m.CacheCallsignInfo(Call{Callsign: "w1aw", Country: "United States", Info: &CallInfo{State: "CT"}})
	require.NoError(t, m.handle(lookupCompletedEvent{Key: "W1AW", Err: errors.New("timeout")}))

	info, ok := m.CallsignInfo("W1AW")
	require.True(t, ok)
	assert.Equal(t, CallsignFound, info.State)
	assert.Equal(t, "W1AW", info.Call.Callsign)
}

func TestEnrichment_CacheCounts(t *testing.T) {
	m := lookupModel(t, LookupFailureKeep, &fakeLookup{})
	m.CacheCallsignInfo(Call{Callsign: "K1ABC"})
	m.callsigns["W1AW"] = CallsignInfo{State: CallsignRequested}
	m.callsigns["N0CALL"] = CallsignInfo{State: CallsignNotFound}

	counts := m.Snapshot().CallsignCache
	assert.Equal(t, 1, counts[CallsignFound])
	assert.Equal(t, 1, counts[CallsignRequested])
	assert.Equal(t, 1, counts[CallsignNotFound])
}

func TestHTTPCallsignLookup(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.URL.Path != "/out/KD2/KD2ABC.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"call":"KD2ABC","op":"Jane Doe","state":"NY","class":"E"}`))
	}))
	defer srv.Close()

	lookup := NewHTTPCallsignLookup(srv.URL+"/", time.Second, 0, 1)

	call, err := lookup.Lookup(context.Background(), Call{Callsign: "KD2ABC", Country: "United States"})
	require.NoError(t, err)
	require.True(t, call.Enriched())
	assert.Equal(t, "NY", call.State())
	assert.Equal(t, "Jane Doe", call.Op())
	assert.Equal(t, "United States", call.Country)

	_, err = lookup.Lookup(context.Background(), Call{Callsign: "W1XYZ"})
	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, http.StatusNotFound, lookupErr.StatusCode)
	assert.Equal(t, "W1XYZ", lookupErr.Callsign)

	_, err = lookup.Lookup(context.Background(), Call{Callsign: "NOPREFIX"})
	require.ErrorAs(t, err, &lookupErr)
	assert.Zero(t, lookupErr.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/out/KD2/KD2ABC.json", "/out/W1/W1XYZ.json"}, paths)
}

func TestEnrichment_CacheGaugesFollowCache(t *testing.T) {
	m := lookupModel(t, LookupFailureNotFound, &fakeLookup{})
	require.Zero(t, m.cfg.SparkSDR.PollInterval)
	gauge := func(state CallsignState) float64 {
		return testutil.ToFloat64(m.metrics.callsignCacheSize.WithLabelValues(state.String()))
	}

	m.AddSpot(usSpot(m, "K1ABC"))
	assert.Equal(t, 1.0, gauge(CallsignRequested))
	assert.Equal(t, 0.0, gauge(CallsignFound))

	handleNext(t, m)
	assert.Equal(t, 0.0, gauge(CallsignRequested))
	assert.Equal(t, 1.0, gauge(CallsignFound))

	m.lookup = &fakeLookup{err: errors.New("service unavailable")}
	m.AddSpot(usSpot(m, "W1AW"))
	handleNext(t, m)
	assert.Equal(t, 1.0, gauge(CallsignNotFound))
	assert.Equal(t, 0.0, gauge(CallsignRequested))
}
