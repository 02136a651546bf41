package main

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

//go:embed cty/cty_default.dat
var defaultCTYData string

// CTYEntity is one DXCC entity from cty.dat
type CTYEntity struct {
	Name       string
	PrimaryPfx string
	CQZone     int
	ITUZone    int
	Continent  string
	Latitude   float64 // degrees north
	Longitude  float64 // degrees east
	TimeOffset float64 // hours from UTC
	IsWAEDC    bool
}

// CTYPrefix is a prefix or exact callsign with its optional overrides
type CTYPrefix struct {
	Prefix     string
	IsExact    bool
	CQZone     int
	ITUZone    int
	Continent  string
	Latitude   float64
	Longitude  float64
	HasLatLon  bool
	TimeOffset float64
	HasOffset  bool
}

type ctyPrefixEntry struct {
	Entity *CTYEntity
	Prefix CTYPrefix
}

// CTYLookupResult is a resolved callsign with overrides applied
type CTYLookupResult struct {
	Country    string  `json:"country"`
	PrimaryPfx string  `json:"primary_prefix"`
	CQZone     int     `json:"cq_zone"`
	ITUZone    int     `json:"itu_zone"`
	Continent  string  `json:"continent"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	TimeOffset float64 `json:"time_offset"`
}

// CTYDatabase resolves callsigns to DXCC entities. Exact callsigns are keyed
// with a leading "=", prefixes without.
type CTYDatabase struct {
	mu           sync.RWMutex
	entities     []*CTYEntity
	prefixes     map[string]*ctyPrefixEntry
	maxPrefixLen int
}

// LoadCTYDatabase loads a cty.dat file, or the embedded table when path is empty
func LoadCTYDatabase(path string) (*CTYDatabase, error) {
	if path == "" {
		return ParseCTY(strings.NewReader(defaultCTYData))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CTY database: %w", err)
	}
	defer f.Close()
	return ParseCTY(f)
}

// ParseCTY parses the cty.dat format: an entity header line of eight
// colon-terminated fields followed by a comma separated prefix list ending in ';'.
func ParseCTY(r io.Reader) (*CTYDatabase, error) {
	db := &CTYDatabase{prefixes: make(map[string]*ctyPrefixEntry)}

	scanner := bufio.NewScanner(r)
	var current *CTYEntity
	var pending strings.Builder
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if current == nil {
			entity, err := parseCTYHeader(line)
			if err != nil {
				return nil, fmt.Errorf("cty line %d: %w", lineNo, err)
			}
			current = entity
			db.entities = append(db.entities, entity)
			pending.Reset()
			continue
		}

		pending.WriteString(strings.TrimSpace(line))
		if !strings.HasSuffix(strings.TrimSpace(line), ";") {
			continue
		}

		list := strings.TrimSuffix(pending.String(), ";")
		for _, token := range strings.Split(list, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			db.addPrefix(current, parseCTYPrefix(token))
		}
		current = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read CTY data: %w", err)
	}
	if current != nil {
		return nil, fmt.Errorf("cty: prefix list for %s is not terminated", current.Name)
	}
	if len(db.entities) == 0 {
		return nil, fmt.Errorf("cty: no entities found")
	}
	return db, nil
}

func parseCTYHeader(line string) (*CTYEntity, error) {
	fields := strings.Split(line, ":")
	if len(fields) < 8 {
		return nil, fmt.Errorf("expected 8 header fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	entity := &CTYEntity{
		Name:      fields[0],
		Continent: fields[3],
	}
	var err error
	if entity.CQZone, err = strconv.Atoi(fields[1]); err != nil {
		return nil, fmt.Errorf("invalid CQ zone %q", fields[1])
	}
	if entity.ITUZone, err = strconv.Atoi(fields[2]); err != nil {
		return nil, fmt.Errorf("invalid ITU zone %q", fields[2])
	}
	if entity.Latitude, err = strconv.ParseFloat(fields[4], 64); err != nil {
		return nil, fmt.Errorf("invalid latitude %q", fields[4])
	}
	lon, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q", fields[5])
	}
	// cty.dat uses west-positive longitude and west-positive offsets
	entity.Longitude = -lon
	offset, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid time offset %q", fields[6])
	}
	entity.TimeOffset = -offset

	pfx := fields[7]
	if strings.HasPrefix(pfx, "*") {
		entity.IsWAEDC = true
		pfx = pfx[1:]
	}
	entity.PrimaryPfx = pfx
	return entity, nil
}

// parseCTYPrefix splits a token like "=W1AW(5)[8]{NA}<42.0/71.0>~5.0~"
func parseCTYPrefix(token string) CTYPrefix {
	var p CTYPrefix
	if strings.HasPrefix(token, "=") {
		p.IsExact = true
		token = token[1:]
	}

	end := strings.IndexAny(token, "([{<~")
	if end < 0 {
		p.Prefix = strings.ToUpper(token)
		return p
	}
	p.Prefix = strings.ToUpper(token[:end])
	overrides := token[end:]

	if v, ok := between(overrides, '(', ')'); ok {
		p.CQZone, _ = strconv.Atoi(v)
	}
	if v, ok := between(overrides, '[', ']'); ok {
		p.ITUZone, _ = strconv.Atoi(v)
	}
	if v, ok := between(overrides, '{', '}'); ok {
		p.Continent = v
	}
	if v, ok := between(overrides, '<', '>'); ok {
		if lat, lon, found := strings.Cut(v, "/"); found {
			latF, errLat := strconv.ParseFloat(lat, 64)
			lonF, errLon := strconv.ParseFloat(lon, 64)
			if errLat == nil && errLon == nil {
				p.Latitude = latF
				p.Longitude = -lonF
				p.HasLatLon = true
			}
		}
	}
	if v, ok := between(overrides, '~', '~'); ok {
		if off, err := strconv.ParseFloat(v, 64); err == nil {
			p.TimeOffset = -off
			p.HasOffset = true
		}
	}
	return p
}

func between(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(s[start+1:], close)
	if end < 0 {
		return "", false
	}
	return s[start+1 : start+1+end], true
}

func (db *CTYDatabase) addPrefix(entity *CTYEntity, p CTYPrefix) {
	key := p.Prefix
	if p.IsExact {
		key = "=" + key
	} else if len(key) > db.maxPrefixLen {
		db.maxPrefixLen = len(key)
	}
	// First definition wins, as in the published file ordering
	if _, exists := db.prefixes[key]; exists {
		return
	}
	db.prefixes[key] = &ctyPrefixEntry{Entity: entity, Prefix: p}
}

// LookupCallsignFull resolves callsign, trying an exact match first and
// then the longest matching prefix. Returns nil when nothing matches.
func (db *CTYDatabase) LookupCallsignFull(callsign string) *CTYLookupResult {
	callsign = NormalizeCallsign(callsign)
	if callsign == "" {
		return nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	if entry, ok := db.prefixes["="+callsign]; ok {
		return entry.result()
	}

	base := baseCallForCountry(callsign)
	if entry, ok := db.prefixes["="+base]; ok {
		return entry.result()
	}

	n := len(base)
	if n > db.maxPrefixLen {
		n = db.maxPrefixLen
	}
	for ; n > 0; n-- {
		if entry, ok := db.prefixes[base[:n]]; ok {
			return entry.result()
		}
	}
	return nil
}

// Country returns the entity name for callsign, or "" if unresolved
func (db *CTYDatabase) Country(callsign string) string {
	if db == nil {
		return ""
	}
	if result := db.LookupCallsignFull(callsign); result != nil {
		return result.Country
	}
	return ""
}

// EntityCount returns the number of loaded entities and prefix keys
func (db *CTYDatabase) EntityCount() (entities, prefixes int) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.entities), len(db.prefixes)
}

func (e *ctyPrefixEntry) result() *CTYLookupResult {
	r := &CTYLookupResult{
		Country:    e.Entity.Name,
		PrimaryPfx: e.Entity.PrimaryPfx,
		CQZone:     e.Entity.CQZone,
		ITUZone:    e.Entity.ITUZone,
		Continent:  e.Entity.Continent,
		Latitude:   e.Entity.Latitude,
		Longitude:  e.Entity.Longitude,
		TimeOffset: e.Entity.TimeOffset,
	}
	if e.Prefix.CQZone != 0 {
		r.CQZone = e.Prefix.CQZone
	}
	if e.Prefix.ITUZone != 0 {
		r.ITUZone = e.Prefix.ITUZone
	}
	if e.Prefix.Continent != "" {
		r.Continent = e.Prefix.Continent
	}
	if e.Prefix.HasLatLon {
		r.Latitude = e.Prefix.Latitude
		r.Longitude = e.Prefix.Longitude
	}
	if e.Prefix.HasOffset {
		r.TimeOffset = e.Prefix.TimeOffset
	}
	return r
}
