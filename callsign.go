package main

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// NormalizeCallsign folds full-width characters, trims whitespace and
// upper-cases. Two spots from the same station normalize to the same key.
func NormalizeCallsign(callsign string) string {
	folded := width.Fold.String(strings.TrimSpace(callsign))
	// Casers carry state and must not be shared across goroutines
	return cases.Upper(language.Und).String(folded)
}

// LookupPrefix returns the directory prefix the lookup service files a
// callsign under: the leading non-digits plus the first digit (KD2ABC -> KD2).
// Returns "" when the callsign has no such prefix.
func LookupPrefix(callsign string) string {
	for i, r := range callsign {
		if unicode.IsDigit(r) {
			if i == 0 {
				return ""
			}
			return callsign[:i+1]
		}
	}
	return ""
}

// portableSuffixes are stripped before country resolution
var portableSuffixes = map[string]bool{
	"P": true, "M": true, "MM": true, "AM": true, "QRP": true, "A": true,
}

// baseCallForCountry picks the part of a compound callsign that determines
// its country: K1ABC/P -> K1ABC, VE3/K1ABC -> VE3, K1ABC/VE3 -> VE3.
func baseCallForCountry(callsign string) string {
	parts := strings.Split(callsign, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || portableSuffixes[p] {
			continue
		}
		// A lone digit suffix (K1ABC/4) changes the call area, not the country
		if len(p) == 1 && p[0] >= '0' && p[0] <= '9' {
			continue
		}
		kept = append(kept, p)
	}
	switch len(kept) {
	case 0:
		return callsign
	case 1:
		return kept[0]
	}
	shortest := kept[0]
	for _, p := range kept[1:] {
		if len(p) < len(shortest) {
			shortest = p
		}
	}
	return shortest
}
