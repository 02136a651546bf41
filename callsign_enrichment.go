package main

import (
	"strings"
	"time"
)

// enrichSpot applies what the cache knows about the spot's callsign and
// starts a lookup when there is no entry yet and the call is eligible.
func (m *Model) enrichSpot(spot *Spot) {
	key := spot.Call.Callsign
	if key == "" {
		return
	}

	if info, ok := m.callsigns[key]; ok {
		// Requested and NotFound leave the spot as it is
		if info.State == CallsignFound {
			spot.Call = info.Call
		}
		return
	}

	if !m.lookupEligible(spot.Call) {
		return
	}
	m.callsigns[key] = CallsignInfo{State: CallsignRequested, RequestedAt: time.Now()}
	m.metrics.RecordLookup("requested")
	m.updateCacheGauges()
	m.startLookup(spot.Call)
}

// lookupEligible reports whether call belongs to the jurisdiction the lookup service covers
func (m *Model) lookupEligible(call Call) bool {
	if m.lookup == nil || call.Country == "" {
		return false
	}
	if !strings.EqualFold(call.Country, m.cfg.Lookup.Jurisdiction) {
		return false
	}
	return LookupPrefix(call.Callsign) != ""
}

// startLookup runs the lookup off the event loop and posts its completion back
func (m *Model) startLookup(call Call) {
	ctx := m.ctx
	lookup := m.lookup
	go func() {
		result, err := lookup.Lookup(ctx, call)
		m.Post(lookupCompletedEvent{Key: call.Callsign, Call: result, Err: err})
	}()
}

func (m *Model) completeLookup(ev lookupCompletedEvent) {
	if ev.Err == nil {
		m.metrics.RecordLookup("found")
		m.CacheCallsignInfo(ev.Call)
		return
	}

	m.metrics.RecordLookup("failed")
	m.log.WithError(ev.Err).WithField("callsign", ev.Key).Debug("Callsign lookup failed")

	info, ok := m.callsigns[ev.Key]
	if !ok || info.State != CallsignRequested {
		return
	}
	switch LookupFailurePolicy(m.cfg.Lookup.OnFailure) {
	case LookupFailureNotFound:
		m.callsigns[ev.Key] = CallsignInfo{State: CallsignNotFound, RequestedAt: info.RequestedAt}
	case LookupFailureForget:
		delete(m.callsigns, ev.Key)
	default:
		// keep: the entry stays Requested and suppresses further lookups
	}
	m.updateCacheGauges()
}

// CacheCallsignInfo records call as Found and rewrites every stored spot
// with the same callsign.
func (m *Model) CacheCallsignInfo(call Call) {
	key := NormalizeCallsign(call.Callsign)
	if key == "" {
		return
	}
	call.Callsign = key
	m.callsigns[key] = CallsignInfo{State: CallsignFound, Call: call}
	m.updateCacheGauges()

	updated := 0
	for i := range m.spots {
		if m.spots[i].Call.Callsign == key {
			m.spots[i].Call = call
			updated++
		}
	}
	m.log.WithField("callsign", key).WithField("spots", updated).Debug("Cached callsign info")
}

func (m *Model) updateCacheGauges() {
	m.metrics.SetCallsignCacheSizes(m.callsigns.Counts())
}

// CallsignInfo returns the cache entry for callsign
func (m *Model) CallsignInfo(callsign string) (CallsignInfo, bool) {
	info, ok := m.callsigns[NormalizeCallsign(callsign)]
	return info, ok
}
