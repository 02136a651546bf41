package main

import (
	"time"

	"github.com/google/uuid"
)

// Mode is a SparkSDR receiver demodulation mode (e.g. "USB", "FT8")
type Mode string

// ReceiverModes lists the modes SparkSDR accepts for setMode
var ReceiverModes = []Mode{
	"LSB", "USB", "CW", "AM", "SAM", "FM", "DIGL", "DIGU",
	"FT8", "FT4", "JT65", "JT9", "WSPR", "FST4", "FST4W", "JS8",
}

// IsKnownMode reports whether m is one of ReceiverModes
func IsKnownMode(m Mode) bool {
	for _, known := range ReceiverModes {
		if known == m {
			return true
		}
	}
	return false
}

// Receiver is a tunable channel exposed by a radio
type Receiver struct {
	ID         uuid.UUID `json:"ID"`
	Mode       Mode      `json:"Mode"`
	Frequency  float64   `json:"Frequency"` // Hz
	FilterLow  float64   `json:"FilterLow,omitempty"`
	FilterHigh float64   `json:"FilterHigh,omitempty"`
}

// Radio is a physical or virtual device hosting receivers
type Radio struct {
	ID      uuid.UUID `json:"ID"`
	Name    string    `json:"Name"`
	Running bool      `json:"Running"`
}

// Version is the getVersion response of the connected server
type Version struct {
	Host            string `json:"Host"`
	HostVersion     string `json:"HostVersion"`
	ProtocolVersion string `json:"ProtocolVersion"`
}

// CallInfo is the enrichment record served by the callsign lookup service
// under /out/{prefix}/{callsign}.json
type CallInfo struct {
	Call           string `json:"call"`
	Op             string `json:"op,omitempty"`
	Address        string `json:"address,omitempty"`
	QTH            string `json:"qth,omitempty"`
	State          string `json:"state,omitempty"`
	Zip            string `json:"zip,omitempty"`
	Class          string `json:"class,omitempty"`
	LoTW           bool   `json:"lotw,omitempty"`
	LastLoTWUpload string `json:"last_lotw_upload,omitempty"`
}

// Call is a station callsign plus what we know about it. Country and
// Continent come from the CTY database, Info from the lookup service.
type Call struct {
	Callsign  string    `json:"callsign"`
	Country   string    `json:"country,omitempty"`
	Continent string    `json:"continent,omitempty"`
	Info      *CallInfo `json:"info,omitempty"`
}

// NewCall normalizes callsign and resolves its country with db (db may be nil)
func NewCall(callsign string, db *CTYDatabase) Call {
	call := Call{Callsign: NormalizeCallsign(callsign)}
	if db == nil || call.Callsign == "" {
		return call
	}
	if result := db.LookupCallsignFull(call.Callsign); result != nil {
		call.Country = result.Country
		call.Continent = result.Continent
	}
	return call
}

// State returns the enriched state/province, or "" when not enriched
func (c Call) State() string {
	if c.Info == nil {
		return ""
	}
	return c.Info.State
}

// Op returns the operator name, or "" when not enriched
func (c Call) Op() string {
	if c.Info == nil {
		return ""
	}
	return c.Info.Op
}

// Enriched reports whether lookup data has been attached
func (c Call) Enriched() bool {
	return c.Info != nil
}

// Spot is a decoded signal report received from the server
type Spot struct {
	Call           Call      `json:"call"`
	Time           time.Time `json:"time"`
	SNR            int       `json:"snr"`
	DT             float64   `json:"dt"`
	Frequency      float64   `json:"frequency"`
	TunedFrequency float64   `json:"tuned_frequency"`
	Mode           string    `json:"mode"`
	Distance       *float64  `json:"distance,omitempty"` // km
	Locator        string    `json:"locator,omitempty"`
	Msg            string    `json:"msg"`
	Band           string    `json:"band"`
}

// LogEntry is a single imported logbook contact
type LogEntry struct {
	Call      string    `json:"call"`
	Country   string    `json:"country,omitempty"`
	State     string    `json:"state,omitempty"`
	Band      string    `json:"band,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Frequency float64   `json:"frequency,omitempty"` // Hz
	QSOTime   time.Time `json:"qso_time,omitempty"`
}
