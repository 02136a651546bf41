package main

import "github.com/google/uuid"

// Event is anything delivered to the model's event loop. Transport events
// carry the session id of the connection that produced them.
type Event interface {
	isEvent()
}

// Transport events

type ConnectedEvent struct {
	Session uuid.UUID
}

// DisconnectedEvent covers both a clean close and a transport error
type DisconnectedEvent struct {
	Session uuid.UUID
	Err     error
}

// ResponseEvent carries a decoded frame, or the decode error for it
type ResponseEvent struct {
	Session  uuid.UUID
	Response CommandResponse
	Err      error
}

type AudioEvent struct {
	Session uuid.UUID
	Data    []byte
}

// Intents from outer surfaces (HTTP API, MCP tools, CLI)

type ConnectIntent struct {
	Address string
}

type DisconnectIntent struct{}

type FrequencyStepIntent struct {
	Receiver uuid.UUID
	Digit    int
	Up       bool
}

type ModeChangeIntent struct {
	Receiver uuid.UUID
	Mode     Mode
}

// SetDefaultReceiverIntent selects the active receiver; nil clears it
type SetDefaultReceiverIntent struct {
	Receiver *uuid.UUID
}

type AddReceiverIntent struct {
	Radio uuid.UUID
}

type RemoveReceiverIntent struct {
	Receiver uuid.UUID
}

type TogglePowerIntent struct {
	Radio uuid.UUID
}

type ToggleReceiverListIntent struct{}

// ImportLoadIntent parses an ADIF payload into the pending import
type ImportLoadIntent struct {
	Name string
	Data []byte
}

type ImportConfirmIntent struct{}

type ImportCancelIntent struct{}

// LogReplaceEvent loads and activates an import in one step
type LogReplaceEvent struct {
	Name string
	Data []byte
}

// Internal events

type lookupCompletedEvent struct {
	Key  string
	Call Call
	Err  error
}

type tickEvent struct{}

type queryEvent struct {
	fn func(*Model)
}

func (ConnectedEvent) isEvent()           {}
func (DisconnectedEvent) isEvent()        {}
func (ResponseEvent) isEvent()            {}
func (AudioEvent) isEvent()               {}
func (ConnectIntent) isEvent()            {}
func (DisconnectIntent) isEvent()         {}
func (FrequencyStepIntent) isEvent()      {}
func (ModeChangeIntent) isEvent()         {}
func (SetDefaultReceiverIntent) isEvent() {}
func (AddReceiverIntent) isEvent()        {}
func (RemoveReceiverIntent) isEvent()     {}
func (TogglePowerIntent) isEvent()        {}
func (ToggleReceiverListIntent) isEvent() {}
func (ImportLoadIntent) isEvent()         {}
func (ImportConfirmIntent) isEvent()      {}
func (ImportCancelIntent) isEvent()       {}
func (LogReplaceEvent) isEvent()          {}
func (lookupCompletedEvent) isEvent()     {}
func (tickEvent) isEvent()                {}
func (queryEvent) isEvent()               {}
