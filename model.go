package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const eventQueueSize = 256

// SpotPublisher receives every spot as it is stored
type SpotPublisher interface {
	PublishSpot(spot Spot)
}

type envelope struct {
	ev   Event
	done chan error
}

// Model is the single writer of all client state. Every mutation runs on the
// goroutine executing Run; other goroutines go through Post, Dispatch or query.
type Model struct {
	cfg       *Config
	conn      Connection
	lookup    CallsignLookup
	cty       *CTYDatabase
	metrics   *PrometheusMetrics
	publisher SpotPublisher
	log       *logrus.Entry

	receivers        []Receiver
	radios           []Radio
	version          *Version
	defaultReceiver  *uuid.UUID
	spots            []Spot
	showReceiverList bool

	callsigns CallsignCache
	logbook   Logbook

	session   uuid.UUID
	connected bool

	ctx     context.Context
	events  chan envelope
	stopped chan struct{}
}

// ModelDeps are the collaborators of a Model. Any of them may be nil.
type ModelDeps struct {
	Lookup    CallsignLookup
	CTY       *CTYDatabase
	Metrics   *PrometheusMetrics
	Publisher SpotPublisher
}

func NewModel(cfg *Config, deps ModelDeps) *Model {
	return &Model{
		cfg:       cfg,
		lookup:    deps.Lookup,
		cty:       deps.CTY,
		metrics:   deps.Metrics,
		publisher: deps.Publisher,
		log:       NewLogger("model"),
		callsigns: make(CallsignCache),
		ctx:       context.Background(),
		events:    make(chan envelope, eventQueueSize),
		stopped:   make(chan struct{}),
	}
}

// SetConnection attaches the connection; call before Run
func (m *Model) SetConnection(conn Connection) {
	m.conn = conn
}

// Post enqueues ev without waiting for it to be handled
func (m *Model) Post(ev Event) {
	select {
	case m.events <- envelope{ev: ev}:
	case <-m.stopped:
	}
}

// Dispatch enqueues ev and waits for its handler's result
func (m *Model) Dispatch(ctx context.Context, ev Event) error {
	done := make(chan error, 1)
	select {
	case m.events <- envelope{ev: ev, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrModelStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrModelStopped
	}
}

// query runs fn on the event loop and returns its result
func query[T any](ctx context.Context, m *Model, fn func(*Model) T) (T, error) {
	var result T
	err := m.Dispatch(ctx, queryEvent{fn: func(m *Model) { result = fn(m) }})
	return result, err
}

// Run processes events until ctx is done. It connects first when
// auto_connect is set and drives the poll tick when poll_interval is set.
func (m *Model) Run(ctx context.Context) error {
	m.ctx = ctx
	defer close(m.stopped)
	defer func() {
		if m.conn != nil {
			m.conn.Disconnect()
		}
	}()

	var tick <-chan time.Time
	if m.cfg.SparkSDR.PollInterval > 0 {
		ticker := time.NewTicker(time.Duration(m.cfg.SparkSDR.PollInterval) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	if m.cfg.SparkSDR.AutoConnect && m.cfg.SparkSDR.Address != "" {
		m.Connect(m.cfg.SparkSDR.Address)
	}

	m.log.Info("Event loop started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Event loop stopped")
			return nil
		case env := <-m.events:
			err := m.handle(env.ev)
			if env.done != nil {
				env.done <- err
			}
		case <-tick:
			m.handle(tickEvent{})
		}
	}
}

func (m *Model) handle(ev Event) error {
	switch e := ev.(type) {
	case ConnectedEvent:
		if !m.currentSession(e.Session) {
			return nil
		}
		m.connected = true
		m.sendInitialCommands()
	case DisconnectedEvent:
		if !m.currentSession(e.Session) {
			return nil
		}
		m.releaseConnection()
		if e.Err != nil {
			m.log.WithError(e.Err).Info("Disconnected")
		}
	case ResponseEvent:
		if !m.currentSession(e.Session) {
			return nil
		}
		if e.Err != nil {
			m.log.WithError(e.Err).Warn("Dropping undecodable frame")
			return nil
		}
		m.handleResponse(e.Response)
	case AudioEvent:
		if !m.currentSession(e.Session) {
			return nil
		}
		m.log.WithField("bytes", len(e.Data)).Trace("Ignoring audio frame")

	case ConnectIntent:
		m.Connect(e.Address)
	case DisconnectIntent:
		m.Disconnect()
	case FrequencyStepIntent:
		if e.Up {
			return m.FrequencyUp(e.Receiver, e.Digit)
		}
		return m.FrequencyDown(e.Receiver, e.Digit)
	case ModeChangeIntent:
		return m.ChangeReceiverMode(e.Receiver, e.Mode)
	case SetDefaultReceiverIntent:
		return m.SetDefaultReceiver(e.Receiver)
	case AddReceiverIntent:
		return m.AddReceiver(e.Radio)
	case RemoveReceiverIntent:
		return m.RemoveReceiver(e.Receiver)
	case TogglePowerIntent:
		return m.TogglePower(e.Radio)
	case ToggleReceiverListIntent:
		m.ToggleReceiverList()
	case ImportLoadIntent:
		return m.LoadLog(e.Name, e.Data)
	case ImportConfirmIntent:
		return m.ConfirmImport()
	case ImportCancelIntent:
		m.CancelImport()
	case LogReplaceEvent:
		return m.ImportLog(e.Name, e.Data)

	case lookupCompletedEvent:
		m.completeLookup(e)
	case tickEvent:
		m.poll()
	case queryEvent:
		e.fn(m)
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
	return nil
}

// currentSession filters out events from a replaced or released connection
func (m *Model) currentSession(session uuid.UUID) bool {
	if session == uuid.Nil || session != m.session {
		m.log.WithField("session", session).Debug("Ignoring event from stale connection")
		return false
	}
	return true
}

// Connect replaces any existing connection with one to address
func (m *Model) Connect(address string) {
	if m.conn == nil {
		m.log.Warn("No connection configured")
		return
	}
	m.connected = false
	m.session = m.conn.Connect(m.ctx, address)
}

// Disconnect releases the transport; the state mirror is kept
func (m *Model) Disconnect() {
	m.releaseConnection()
}

func (m *Model) releaseConnection() {
	m.connected = false
	m.session = uuid.Nil
	if m.conn != nil {
		m.conn.Disconnect()
	}
}

func (m *Model) IsConnected() bool {
	return m.connected && m.conn != nil && m.conn.IsConnected()
}

// send transmits cmd. Failures are logged by the connection and not escalated.
func (m *Model) send(cmd Command) {
	if m.conn == nil {
		m.log.WithField("cmd", cmd.CommandName()).Warn("Attempted to send without a connection")
		return
	}
	if err := m.conn.Send(cmd); err != nil && !errors.Is(err, ErrNotConnected) {
		m.log.WithError(err).Warn("Send failed")
	}
}

func (m *Model) sendInitialCommands() {
	m.send(GetVersionCommand{})
	m.send(GetRadiosCommand{})
	m.send(GetReceiversCommand{})
	if m.cfg.SparkSDR.SubscribeSpots {
		m.send(SubscribeToSpotsCommand{Enable: true})
	}
}

func (m *Model) poll() {
	if !m.connected {
		return
	}
	m.send(GetReceiversCommand{})
	m.send(GetRadiosCommand{})
}

func (m *Model) handleResponse(resp CommandResponse) {
	m.metrics.RecordResponse(resp.ResponseName())

	switch r := resp.(type) {
	case VersionResponse:
		m.SetVersion(r.Version)
		if err := CheckProtocolVersion(r.Version); err != nil {
			m.log.WithError(err).Warn("Server protocol may be unsupported")
		}
	case RadiosResponse:
		m.SetRadios(r.Radios)
	case ReceiversResponse:
		m.SetReceivers(r.Receivers)
	case ReceiverResponse:
		if m.UpdateReceiver(r.ID, r.Mode, r.Frequency) == nil {
			i := m.receiverIndex(r.ID)
			m.receivers[i].FilterLow = r.FilterLow
			m.receivers[i].FilterHigh = r.FilterHigh
		}
	case SpotResponse:
		for _, rec := range r.Spots {
			m.AddSpot(m.spotFromRecord(rec))
		}
		m.TrimSpots(m.cfg.SparkSDR.MaxSpots)
	case ServerErrorResponse:
		m.log.WithField("message", r.Message).Warn("Server rejected command")
	}
}

func (m *Model) spotFromRecord(rec SpotRecord) Spot {
	spot := Spot{
		Call:           NewCall(rec.Call, m.cty),
		Time:           rec.Time,
		SNR:            rec.SNR,
		DT:             rec.DT,
		Frequency:      rec.Frequency,
		TunedFrequency: rec.TunedFrequency,
		Mode:           rec.Mode,
		Distance:       rec.Distance,
		Locator:        strings.ToUpper(strings.TrimSpace(rec.Locator)),
		Msg:            rec.Msg,
		Band:           FrequencyToBand(rec.Frequency),
	}
	if spot.Distance == nil && spot.Locator != "" && m.cfg.Station.Locator != "" {
		if km, err := LocatorDistanceKm(m.cfg.Station.Locator, spot.Locator); err == nil {
			spot.Distance = &km
		}
	}
	return spot
}

// SetReceivers replaces the receiver list. A default receiver that is gone
// is cleared; an unset default selects the first receiver.
func (m *Model) SetReceivers(receivers []Receiver) {
	m.receivers = append([]Receiver(nil), receivers...)
	m.fixDefaultReceiver()
}

func (m *Model) fixDefaultReceiver() {
	if m.defaultReceiver != nil && m.receiverIndex(*m.defaultReceiver) < 0 {
		m.defaultReceiver = nil
	}
	if m.defaultReceiver == nil && len(m.receivers) > 0 {
		id := m.receivers[0].ID
		m.defaultReceiver = &id
	}
}

func (m *Model) SetRadios(radios []Radio) {
	m.radios = append([]Radio(nil), radios...)
}

func (m *Model) SetVersion(v Version) {
	m.version = &v
}

// SetDefaultReceiver selects id, or clears the selection when id is nil
func (m *Model) SetDefaultReceiver(id *uuid.UUID) error {
	if id == nil {
		m.defaultReceiver = nil
		return nil
	}
	if m.receiverIndex(*id) < 0 {
		m.log.WithField("receiver", *id).Info("Cannot select unknown receiver")
		return ErrUnknownReceiver
	}
	selected := *id
	m.defaultReceiver = &selected
	return nil
}

// ChangeReceiverMode sets the mode locally and sends setMode. An unknown id
// changes nothing and sends nothing.
func (m *Model) ChangeReceiverMode(id uuid.UUID, mode Mode) error {
	i := m.receiverIndex(id)
	if i < 0 {
		return ErrUnknownReceiver
	}
	m.receivers[i].Mode = mode
	m.send(SetModeCommand{ID: id, Mode: mode})
	return nil
}

// FrequencyUp adds 10^(8-digit) Hz to the receiver and sends setFrequency
func (m *Model) FrequencyUp(id uuid.UUID, digit int) error {
	return m.stepFrequency(id, digit, 1)
}

// FrequencyDown subtracts 10^(8-digit) Hz. The result is not clamped.
func (m *Model) FrequencyDown(id uuid.UUID, digit int) error {
	return m.stepFrequency(id, digit, -1)
}

func (m *Model) stepFrequency(id uuid.UUID, digit int, sign float64) error {
	if digit < 0 || digit > 8 {
		return fmt.Errorf("%w: %d", ErrInvalidDigit, digit)
	}
	i := m.receiverIndex(id)
	if i < 0 {
		m.log.WithField("receiver", id).Info("Frequency step for unknown receiver")
		return ErrUnknownReceiver
	}
	r := &m.receivers[i]
	r.Frequency += sign * math.Pow10(8-digit)
	m.send(SetFrequencyCommand{ID: id, Frequency: strconv.FormatInt(int64(r.Frequency), 10)})
	return nil
}

// UpdateReceiver applies a server-side receiver update. Unknown ids are
// logged and ignored; no receiver is ever created here.
func (m *Model) UpdateReceiver(id uuid.UUID, mode Mode, frequency float64) error {
	i := m.receiverIndex(id)
	if i < 0 {
		m.log.WithField("receiver", id).Info("Update for unknown receiver")
		return ErrUnknownReceiver
	}
	m.receivers[i].Mode = mode
	m.receivers[i].Frequency = frequency
	return nil
}

func (m *Model) ToggleReceiverList() {
	m.showReceiverList = !m.showReceiverList
}

// TrimSpots keeps the newest limit spots in arrival order
func (m *Model) TrimSpots(limit int) {
	if limit < 0 {
		limit = 0
	}
	if len(m.spots) > limit {
		drop := len(m.spots) - limit
		m.spots = append([]Spot(nil), m.spots[drop:]...)
	}
	m.metrics.SetSpotsRetained(len(m.spots))
}

// RadioPowerState returns the running flag of a radio; ok is false if unknown
func (m *Model) RadioPowerState(id uuid.UUID) (running, ok bool) {
	i := m.radioIndex(id)
	if i < 0 {
		return false, false
	}
	return m.radios[i].Running, true
}

// TogglePower flips the radio's running flag and sends setRunning
func (m *Model) TogglePower(id uuid.UUID) error {
	i := m.radioIndex(id)
	if i < 0 {
		m.log.WithField("radio", id).Info("Power toggle for unknown radio")
		return ErrUnknownRadio
	}
	m.radios[i].Running = !m.radios[i].Running
	m.send(SetRunningCommand{ID: id, Running: m.radios[i].Running})
	return nil
}

// AddReceiver asks radio for a new receiver; the list refreshes from the server
func (m *Model) AddReceiver(radio uuid.UUID) error {
	if m.radioIndex(radio) < 0 {
		m.log.WithField("radio", radio).Info("Add receiver on unknown radio")
		return ErrUnknownRadio
	}
	m.send(AddReceiverCommand{ID: radio})
	m.send(GetReceiversCommand{})
	return nil
}

// RemoveReceiver drops the receiver locally and asks the server to remove it
func (m *Model) RemoveReceiver(id uuid.UUID) error {
	i := m.receiverIndex(id)
	if i < 0 {
		m.log.WithField("receiver", id).Info("Remove for unknown receiver")
		return ErrUnknownReceiver
	}
	m.receivers = append(m.receivers[:i:i], m.receivers[i+1:]...)
	m.fixDefaultReceiver()
	m.send(RemoveReceiverCommand{ID: id})
	m.send(GetReceiversCommand{})
	return nil
}

// AddSpot enriches spot from the callsign cache, possibly starting a lookup,
// and appends it.
func (m *Model) AddSpot(spot Spot) {
	m.enrichSpot(&spot)
	m.spots = append(m.spots, spot)
	m.metrics.RecordSpot(spot.Band, spot.SNR)
	if m.publisher != nil {
		m.publisher.PublishSpot(spot)
	}
}

func (m *Model) receiverIndex(id uuid.UUID) int {
	for i := range m.receivers {
		if m.receivers[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Model) radioIndex(id uuid.UUID) int {
	for i := range m.radios {
		if m.radios[i].ID == id {
			return i
		}
	}
	return -1
}
