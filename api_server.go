package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const maxImportBody = 64 << 20

// APIServer exposes the model's intents and read models over HTTP
type APIServer struct {
	model    *Model
	cty      *CTYDatabase
	config   *Config
	metrics  *PrometheusMetrics
	mcp      http.Handler
	requests *RequestLog
	limiter  *CommandRateLimiter
	router   *mux.Router
	server   *http.Server
	log      *logrus.Entry
}

// NewAPIServer builds the router. mcpHandler may be nil.
func NewAPIServer(config *Config, model *Model, cty *CTYDatabase, metrics *PrometheusMetrics, mcpHandler http.Handler) *APIServer {
	router := mux.NewRouter()
	s := &APIServer{
		model:    model,
		cty:      cty,
		config:   config,
		metrics:  metrics,
		mcp:      mcpHandler,
		requests: NewRequestLog(config.Server.RequestLogSize),
		limiter:  NewCommandRateLimiter(config.Server.CommandRate),
		router:   router,
		log:      NewLogger("api"),
		server: &http.Server{
			Addr:         config.Server.Listen,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

func (s *APIServer) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Read models
	api.HandleFunc("/state", s.handleState).Methods("GET", "OPTIONS")
	api.HandleFunc("/spots", s.handleSpots).Methods("GET", "OPTIONS")
	api.HandleFunc("/spots/stats", s.handleSpotStats).Methods("GET", "OPTIONS")
	api.HandleFunc("/callsigns/{callsign}", s.handleCallsign).Methods("GET", "OPTIONS")
	api.HandleFunc("/cty/lookup", s.handleCTYLookup).Methods("GET", "OPTIONS")
	api.HandleFunc("/logs/http", s.handleRequestLogs).Methods("GET", "OPTIONS")

	// Connection
	api.HandleFunc("/connect", s.handleConnect).Methods("POST", "OPTIONS")
	api.HandleFunc("/disconnect", s.handleDisconnect).Methods("POST", "OPTIONS")

	// Receivers and radios
	api.HandleFunc("/receivers/default", s.handleDefaultReceiver).Methods("POST", "OPTIONS")
	api.HandleFunc("/receivers/{id}/frequency", s.handleFrequencyStep).Methods("POST", "OPTIONS")
	api.HandleFunc("/receivers/{id}/mode", s.handleMode).Methods("POST", "OPTIONS")
	api.HandleFunc("/receivers/{id}", s.handleRemoveReceiver).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/radios/{id}/receivers", s.handleAddReceiver).Methods("POST", "OPTIONS")
	api.HandleFunc("/radios/{id}/power", s.handleTogglePower).Methods("POST", "OPTIONS")
	api.HandleFunc("/receiver-list/toggle", s.handleToggleReceiverList).Methods("POST", "OPTIONS")

	// Log import
	api.HandleFunc("/import", s.handleImportLoad).Methods("POST", "OPTIONS")
	api.HandleFunc("/import/confirm", s.handleImportConfirm).Methods("POST", "OPTIONS")
	api.HandleFunc("/import/cancel", s.handleImportCancel).Methods("POST", "OPTIONS")

	if s.config.Prometheus.Enabled && s.metrics != nil {
		metricsHandler := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})
		s.router.Handle("/metrics", s.metricsAccess(metricsHandler)).Methods("GET")
	}
	if s.mcp != nil {
		s.router.PathPrefix("/mcp").Handler(s.mcp)
	}

	s.router.Use(s.requests.Middleware, corsMiddleware, s.limiter.Middleware)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsAccess restricts scraping to prometheus.allowed_hosts
func (s *APIServer) metricsAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.config.Prometheus.IsAllowed(net.ParseIP(host)) {
			respondError(w, http.StatusForbidden, "Forbidden", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the root handler, for tests and embedding
func (s *APIServer) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *APIServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("listen", s.server.Addr).Info("Starting API server")
		errCh <- s.server.ListenAndServe()
	}()

	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cleanup.C:
			s.limiter.Cleanup()
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.server.Shutdown(shutdownCtx)
		}
	}
}

func (s *APIServer) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.model.QuerySnapshot(r.Context())
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *APIServer) handleSpots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit", v)
			return
		}
		limit = n
	}
	views, err := s.model.QuerySpots(r.Context(), limit)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SpotsResponse{Count: len(views), Spots: views})
}

func (s *APIServer) handleSpotStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.model.QuerySpotStats(r.Context())
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *APIServer) handleCallsign(w http.ResponseWriter, r *http.Request) {
	callsign := NormalizeCallsign(mux.Vars(r)["callsign"])
	resp := CallsignResponse{Callsign: callsign}
	if s.cty != nil {
		resp.CTY = s.cty.LookupCallsignFull(callsign)
	}
	info, ok, err := s.model.QueryCallsign(r.Context(), callsign)
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	if ok {
		resp.Cache = &info
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleCTYLookup(w http.ResponseWriter, r *http.Request) {
	callsign := r.URL.Query().Get("callsign")
	if strings.TrimSpace(callsign) == "" {
		respondError(w, http.StatusBadRequest, "Missing callsign parameter", "")
		return
	}
	if s.cty == nil {
		respondError(w, http.StatusServiceUnavailable, "CTY database not loaded", "")
		return
	}
	result := s.cty.LookupCallsignFull(callsign)
	if result == nil {
		respondError(w, http.StatusNotFound, "Callsign not found", NormalizeCallsign(callsign))
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *APIServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
	}
	address := req.Address
	if address == "" {
		address = s.config.SparkSDR.Address
	}
	if address == "" {
		respondError(w, http.StatusBadRequest, "No address", "set sparksdr.address or pass an address")
		return
	}
	s.dispatch(w, r, ConnectIntent{Address: address}, "Connecting")
}

func (s *APIServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, DisconnectIntent{}, "Disconnected")
}

func (s *APIServer) handleDefaultReceiver(w http.ResponseWriter, r *http.Request) {
	var req DefaultReceiverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	s.dispatch(w, r, SetDefaultReceiverIntent{Receiver: req.ID}, "Default receiver set")
}

func (s *APIServer) handleFrequencyStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req FrequencyStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	var up bool
	switch strings.ToLower(req.Direction) {
	case "up":
		up = true
	case "down":
	default:
		respondError(w, http.StatusBadRequest, "Invalid direction", "must be up or down")
		return
	}
	s.dispatch(w, r, FrequencyStepIntent{Receiver: id, Digit: req.Digit, Up: up}, "Frequency changed")
}

func (s *APIServer) handleMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if !IsKnownMode(req.Mode) {
		respondError(w, http.StatusBadRequest, "Unknown mode", string(req.Mode))
		return
	}
	s.dispatch(w, r, ModeChangeIntent{Receiver: id, Mode: req.Mode}, "Mode set successfully")
}

func (s *APIServer) handleRemoveReceiver(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	s.dispatch(w, r, RemoveReceiverIntent{Receiver: id}, "Receiver removed")
}

func (s *APIServer) handleAddReceiver(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	s.dispatch(w, r, AddReceiverIntent{Radio: id}, "Receiver requested")
}

func (s *APIServer) handleTogglePower(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := s.model.Dispatch(r.Context(), TogglePowerIntent{Radio: id}); err != nil {
		s.respondModelError(w, err)
		return
	}
	type power struct{ running, ok bool }
	state, err := query(r.Context(), s.model, func(m *Model) power {
		running, ok := m.RadioPowerState(id)
		return power{running, ok}
	})
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PowerResponse{Radio: id, Running: state.running})
}

func (s *APIServer) handleToggleReceiverList(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, ToggleReceiverListIntent{}, "Receiver list toggled")
}

func (s *APIServer) handleImportLoad(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "Failed to read log file", err.Error())
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.adi"
	}
	if err := s.model.Dispatch(r.Context(), ImportLoadIntent{Name: name, Data: data}); err != nil {
		s.respondModelError(w, err)
		return
	}
	snap, err := s.model.QuerySnapshot(r.Context())
	if err != nil {
		s.respondModelError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap.PendingImport)
}

func (s *APIServer) handleImportConfirm(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, ImportConfirmIntent{}, "Import confirmed")
}

func (s *APIServer) handleImportCancel(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, ImportCancelIntent{}, "Import cleared")
}

// dispatch sends an intent to the model and writes the outcome
func (s *APIServer) dispatch(w http.ResponseWriter, r *http.Request, ev Event, message string) {
	if err := s.model.Dispatch(r.Context(), ev); err != nil {
		s.respondModelError(w, err)
		return
	}
	respondSuccess(w, message)
}

func (s *APIServer) respondModelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownReceiver):
		respondError(w, http.StatusNotFound, "Unknown receiver", err.Error())
	case errors.Is(err, ErrUnknownRadio):
		respondError(w, http.StatusNotFound, "Unknown radio", err.Error())
	case errors.Is(err, ErrInvalidDigit):
		respondError(w, http.StatusBadRequest, "Invalid digit", err.Error())
	case errors.Is(err, ErrNoPendingImport):
		respondError(w, http.StatusConflict, "No pending import", "")
	case errors.Is(err, ErrModelStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
	default:
		s.log.WithError(err).Warn("Request failed")
		respondError(w, http.StatusBadRequest, "Request failed", err.Error())
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func respondSuccess(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: message,
	})
}
