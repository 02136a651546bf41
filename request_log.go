package main

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RequestLogEntry is one API request
type RequestLogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	ClientIP     string    `json:"client_ip"`
	Method       string    `json:"method"`
	URI          string    `json:"uri"`
	StatusCode   int       `json:"status_code"`
	BytesWritten int64     `json:"bytes_written"`
	DurationMs   float64   `json:"duration_ms"`
	UserAgent    string    `json:"user_agent"`
}

// RequestLog keeps the most recent API requests in memory
type RequestLog struct {
	mu      sync.RWMutex
	entries []RequestLogEntry
	maxSize int
}

func NewRequestLog(maxSize int) *RequestLog {
	return &RequestLog{
		entries: make([]RequestLogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends entry, dropping the oldest beyond maxSize
func (l *RequestLog) Add(entry RequestLogEntry) {
	if l == nil || l.maxSize == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxSize {
		l.entries = l.entries[len(l.entries)-l.maxSize:]
	}
}

// Entries returns a copy of the buffer, oldest first
func (l *RequestLog) Entries() []RequestLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]RequestLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// Flush keeps streaming responses (MCP) working through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records every request that passes through it
func (l *RequestLog) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		l.Add(RequestLogEntry{
			Timestamp:    start,
			ClientIP:     clientIP(r),
			Method:       r.Method,
			URI:          r.RequestURI,
			StatusCode:   status,
			BytesWritten: rec.bytes,
			DurationMs:   float64(time.Since(start).Microseconds()) / 1000.0,
			UserAgent:    r.UserAgent(),
		})
	})
}

// RequestLogResponse is returned by GET /api/logs/http
type RequestLogResponse struct {
	Count   int               `json:"count"`
	Total   int               `json:"total"`
	MaxSize int               `json:"max_size"`
	Logs    []RequestLogEntry `json:"logs"`
}

// Query parameters:
//   - limit: most recent entries to return (default 100, max 1000)
//   - filter_path: substring of the URI
//   - filter_method: exact method
//   - min_status: lowest status code to include
func (s *APIServer) handleRequestLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid limit", v)
			return
		}
		limit = min(max(n, 1), 1000)
	}
	minStatus := 0
	if v := q.Get("min_status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid min_status", v)
			return
		}
		minStatus = n
	}
	filterPath := q.Get("filter_path")
	filterMethod := strings.ToUpper(q.Get("filter_method"))

	var filtered []RequestLogEntry
	for _, e := range s.requests.Entries() {
		if filterPath != "" && !strings.Contains(e.URI, filterPath) {
			continue
		}
		if filterMethod != "" && e.Method != filterMethod {
			continue
		}
		if e.StatusCode < minStatus {
			continue
		}
		filtered = append(filtered, e)
	}

	result := filtered
	if len(filtered) > limit {
		result = filtered[len(filtered)-limit:]
	}
	respondJSON(w, http.StatusOK, RequestLogResponse{
		Count:   len(result),
		Total:   len(filtered),
		MaxSize: s.requests.maxSize,
		Logs:    result,
	})
}
