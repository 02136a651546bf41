package main

import (
	"context"

	"github.com/google/uuid"
)

// SpotView is a spot with its log cross-check flags, computed on access
type SpotView struct {
	Spot
	NewCountry bool `json:"new_country"`
	NewState   bool `json:"new_state"`
}

// StateSnapshot is a copy of the model's state safe to hand to other goroutines
type StateSnapshot struct {
	Connected        bool                  `json:"connected"`
	Version          *Version              `json:"version,omitempty"`
	Radios           []Radio               `json:"radios"`
	Receivers        []Receiver            `json:"receivers"`
	DefaultReceiver  *uuid.UUID            `json:"default_receiver,omitempty"`
	ShowReceiverList bool                  `json:"show_receiver_list"`
	SpotCount        int                   `json:"spot_count"`
	CallsignCache    map[CallsignState]int `json:"callsign_cache"`
	ActiveImport     *ImportSummary        `json:"active_import,omitempty"`
	PendingImport    *ImportSummary        `json:"pending_import,omitempty"`
}

// SpotViews returns the newest limit spots (all when limit <= 0), oldest first
func (m *Model) SpotViews(limit int) []SpotView {
	spots := m.spots
	if limit > 0 && len(spots) > limit {
		spots = spots[len(spots)-limit:]
	}
	views := make([]SpotView, len(spots))
	for i, s := range spots {
		views[i].Spot = s
		views[i].NewCountry, views[i].NewState = m.logbook.Active.CrossCheck(s.Call)
	}
	return views
}

func (m *Model) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Connected:        m.IsConnected(),
		Radios:           append([]Radio{}, m.radios...),
		Receivers:        append([]Receiver{}, m.receivers...),
		ShowReceiverList: m.showReceiverList,
		SpotCount:        len(m.spots),
		CallsignCache:    m.callsigns.Counts(),
		ActiveImport:     m.logbook.Active.Summary(),
		PendingImport:    m.logbook.Pending.Summary(),
	}
	if m.version != nil {
		v := *m.version
		snap.Version = &v
	}
	if m.defaultReceiver != nil {
		id := *m.defaultReceiver
		snap.DefaultReceiver = &id
	}
	return snap
}

// QuerySnapshot reads a snapshot through the event loop
func (m *Model) QuerySnapshot(ctx context.Context) (StateSnapshot, error) {
	return query(ctx, m, (*Model).Snapshot)
}

// QuerySpots reads spot views through the event loop
func (m *Model) QuerySpots(ctx context.Context, limit int) ([]SpotView, error) {
	return query(ctx, m, func(m *Model) []SpotView { return m.SpotViews(limit) })
}

// QueryCallsign reads one callsign cache entry through the event loop
func (m *Model) QueryCallsign(ctx context.Context, callsign string) (CallsignInfo, bool, error) {
	type result struct {
		info CallsignInfo
		ok   bool
	}
	r, err := query(ctx, m, func(m *Model) result {
		info, ok := m.CallsignInfo(callsign)
		return result{info, ok}
	})
	return r.info, r.ok, err
}
