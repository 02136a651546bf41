package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/cases"
)

const maxLogFileSize = 64 << 20

// LogImport is one parsed log file. It is immutable once built and is
// replaced as a unit, never merged.
type LogImport struct {
	Name     string
	Entries  []LogEntry
	Errors   []*ImportRecordError
	LoadedAt time.Time

	countries map[string]struct{}
	states    map[string]struct{}
}

// Logbook holds the active import used for cross-checks and an optional
// pending import awaiting confirmation.
type Logbook struct {
	Active  *LogImport
	Pending *LogImport
}

// ImportSummary describes an import without its entries
type ImportSummary struct {
	Name     string    `json:"name"`
	Entries  int       `json:"entries"`
	Errors   int       `json:"errors"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (l *LogImport) Summary() *ImportSummary {
	if l == nil {
		return nil
	}
	return &ImportSummary{Name: l.Name, Entries: len(l.Entries), Errors: len(l.Errors), LoadedAt: l.LoadedAt}
}

// NewLogImport indexes entries for cross-checking
func NewLogImport(name string, entries []LogEntry, errs []*ImportRecordError) *LogImport {
	imp := &LogImport{
		Name:      name,
		Entries:   entries,
		Errors:    errs,
		LoadedAt:  time.Now(),
		countries: make(map[string]struct{}),
		states:    make(map[string]struct{}),
	}
	for _, e := range entries {
		if e.Country != "" {
			imp.countries[foldKey(e.Country)] = struct{}{}
		}
		if e.State != "" {
			imp.states[foldKey(e.State)] = struct{}{}
		}
	}
	return imp
}

// CrossCheck computes the render-time flags for call. A nil import, or a
// call whose country or state is unknown, yields neutral (false) flags.
func (l *LogImport) CrossCheck(call Call) (newCountry, newState bool) {
	if l == nil {
		return false, false
	}
	if call.Country != "" {
		_, worked := l.countries[foldKey(call.Country)]
		newCountry = !worked
	}
	if state := call.State(); state != "" {
		_, worked := l.states[foldKey(state)]
		newState = !worked
	}
	return newCountry, newState
}

func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// LoadLogData parses an ADIF payload, gzip-compressed or not, and converts
// each record. Records that fail conversion are reported and skipped.
func LoadLogData(name string, data []byte, db *CTYDatabase) (*LogImport, error) {
	if isGzip(data) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip log: %w", err)
		}
		defer zr.Close()
		data, err = io.ReadAll(io.LimitReader(zr, maxLogFileSize))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress log: %w", err)
		}
	}

	records, err := ParseADIF(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log %s: %w", name, err)
	}

	entries := make([]LogEntry, 0, len(records))
	var errs []*ImportRecordError
	for i, rec := range records {
		entry, err := ConvertADIFRecord(rec, db)
		if err != nil {
			errs = append(errs, &ImportRecordError{Index: i, Err: err})
			continue
		}
		entries = append(entries, entry)
	}
	return NewLogImport(name, entries, errs), nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

var errMissingCall = errors.New("missing CALL field")

// ConvertADIFRecord builds a LogEntry. The country is resolved through db
// so it matches the names spots carry; the record's COUNTRY is the fallback.
func ConvertADIFRecord(rec ADIFRecord, db *CTYDatabase) (LogEntry, error) {
	callsign := NormalizeCallsign(rec["CALL"])
	if callsign == "" {
		return LogEntry{}, errMissingCall
	}

	entry := LogEntry{
		Call:  callsign,
		State: strings.ToUpper(strings.TrimSpace(rec["STATE"])),
		Mode:  strings.ToUpper(strings.TrimSpace(rec["MODE"])),
	}

	entry.Country = db.Country(callsign)
	if entry.Country == "" {
		entry.Country = strings.TrimSpace(rec["COUNTRY"])
	}

	// FT4 and friends are logged as MFSK with a SUBMODE
	if sub := strings.ToUpper(strings.TrimSpace(rec["SUBMODE"])); sub != "" && entry.Mode == "MFSK" {
		entry.Mode = sub
	}

	if f := strings.TrimSpace(rec["FREQ"]); f != "" {
		mhz, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return LogEntry{}, fmt.Errorf("invalid FREQ %q: %w", f, err)
		}
		entry.Frequency = mhz * 1e6
	}

	entry.Band = strings.ToLower(strings.TrimSpace(rec["BAND"]))
	if entry.Band == "" && entry.Frequency > 0 {
		entry.Band = FrequencyToBand(entry.Frequency)
	}

	if d := strings.TrimSpace(rec["QSO_DATE"]); d != "" {
		t, err := parseADIFTime(d, strings.TrimSpace(rec["TIME_ON"]))
		if err != nil {
			return LogEntry{}, err
		}
		entry.QSOTime = t
	}
	return entry, nil
}

func parseADIFTime(date, clock string) (time.Time, error) {
	layout := "20060102"
	value := date
	switch len(clock) {
	case 4:
		layout += "1504"
		value += clock
	case 6:
		layout += "150405"
		value += clock
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid QSO_DATE/TIME_ON %q %q: %w", date, clock, err)
	}
	return t.UTC(), nil
}
