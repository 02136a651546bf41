package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// CallsignState is the lookup state of one cached callsign
type CallsignState int

const (
	CallsignRequested CallsignState = iota
	CallsignFound
	CallsignNotFound
)

func (s CallsignState) String() string {
	switch s {
	case CallsignRequested:
		return "requested"
	case CallsignFound:
		return "found"
	case CallsignNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("CallsignState(%d)", int(s))
	}
}

func (s CallsignState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CallsignState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "requested":
		*s = CallsignRequested
	case "found":
		*s = CallsignFound
	case "not_found":
		*s = CallsignNotFound
	default:
		return fmt.Errorf("unknown callsign state %q", text)
	}
	return nil
}

// CallsignInfo tracks one callsign. Call is only meaningful when Found.
type CallsignInfo struct {
	State       CallsignState `json:"state"`
	Call        Call          `json:"call"`
	RequestedAt time.Time     `json:"requested_at"`
}

// CallsignCache holds at most one entry per normalized callsign
type CallsignCache map[string]CallsignInfo

// Counts returns the number of entries in each state
func (c CallsignCache) Counts() map[CallsignState]int {
	counts := make(map[CallsignState]int, 3)
	for _, info := range c {
		counts[info.State]++
	}
	return counts
}

// LookupFailurePolicy decides what a failed lookup does to its Requested entry
type LookupFailurePolicy string

const (
	// LookupFailureKeep leaves the entry Requested, so the callsign is never retried
	LookupFailureKeep LookupFailurePolicy = "keep"
	// LookupFailureNotFound records NotFound
	LookupFailureNotFound LookupFailurePolicy = "not_found"
	// LookupFailureForget removes the entry so the next spot retries
	LookupFailureForget LookupFailurePolicy = "forget"
)

func (p LookupFailurePolicy) Valid() bool {
	switch p {
	case LookupFailureKeep, LookupFailureNotFound, LookupFailureForget:
		return true
	}
	return false
}

// CallsignLookup enriches a call with data from an external service
type CallsignLookup interface {
	Lookup(ctx context.Context, call Call) (Call, error)
}

// HTTPCallsignLookup fetches {base}/out/{prefix}/{callsign}.json
type HTTPCallsignLookup struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPCallsignLookup creates a lookup client. A non-positive perSecond disables throttling.
func NewHTTPCallsignLookup(baseURL string, timeout time.Duration, perSecond float64, burst int) *HTTPCallsignLookup {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &HTTPCallsignLookup{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Lookup returns call with Info attached. Country and Continent are kept
// from the input since the service does not know them.
func (l *HTTPCallsignLookup) Lookup(ctx context.Context, call Call) (Call, error) {
	prefix := LookupPrefix(call.Callsign)
	if prefix == "" {
		return call, &LookupError{Callsign: call.Callsign, Err: errors.New("callsign has no lookup prefix")}
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return call, &LookupError{Callsign: call.Callsign, Err: err}
	}

	endpoint := fmt.Sprintf("%s/out/%s/%s.json", l.baseURL, url.PathEscape(prefix), url.PathEscape(call.Callsign))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return call, &LookupError{Callsign: call.Callsign, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "sparkclient/"+AppVersion)

	resp, err := l.client.Do(req)
	if err != nil {
		return call, &LookupError{Callsign: call.Callsign, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return call, &LookupError{Callsign: call.Callsign, StatusCode: resp.StatusCode}
	}

	var info CallInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return call, &LookupError{Callsign: call.Callsign, Err: fmt.Errorf("invalid lookup record: %w", err)}
	}

	enriched := call
	enriched.Info = &info
	return enriched, nil
}
