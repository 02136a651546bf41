package main

import "github.com/google/uuid"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ConnectRequest represents a connect request; an empty address uses sparksdr.address
type ConnectRequest struct {
	Address string `json:"address"`
}

// FrequencyStepRequest steps one digit of a receiver's frequency
type FrequencyStepRequest struct {
	Digit     int    `json:"digit"`     // 0 steps 10^8 Hz, 8 steps 1 Hz
	Direction string `json:"direction"` // up or down
}

// ModeRequest represents a mode change request
type ModeRequest struct {
	Mode Mode `json:"mode"`
}

// DefaultReceiverRequest selects the active receiver; a null id clears it
type DefaultReceiverRequest struct {
	ID *uuid.UUID `json:"id"`
}

// PowerResponse reports a radio's power state after a toggle
type PowerResponse struct {
	Radio   uuid.UUID `json:"radio"`
	Running bool      `json:"running"`
}

// SpotsResponse wraps spot views
type SpotsResponse struct {
	Count int        `json:"count"`
	Spots []SpotView `json:"spots"`
}

// CallsignResponse reports what is known about a callsign
type CallsignResponse struct {
	Callsign string           `json:"callsign"`
	CTY      *CTYLookupResult `json:"cty,omitempty"`
	Cache    *CallsignInfo    `json:"cache,omitempty"`
}
