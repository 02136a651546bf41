package main

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when no transport is open
	ErrNotConnected = errors.New("not connected")
	// ErrUnknownReceiver is returned when a mutation targets a receiver id we don't have
	ErrUnknownReceiver = errors.New("unknown receiver")
	// ErrUnknownRadio is returned when a mutation targets a radio id we don't have
	ErrUnknownRadio = errors.New("unknown radio")
	// ErrInvalidDigit is returned for frequency digits outside 0-8
	ErrInvalidDigit = errors.New("frequency digit out of range")
	// ErrUnknownResponse marks a frame whose cmd discriminator we don't recognise
	ErrUnknownResponse = errors.New("unknown response")
	// ErrNoPendingImport is returned when confirming with nothing loaded
	ErrNoPendingImport = errors.New("no pending log import")
	// ErrModelStopped is returned when dispatching to a model whose loop has exited
	ErrModelStopped = errors.New("model stopped")
)

// DecodeError reports a text frame that could not be decoded into a response.
// The connection stays open; only this frame is dropped.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	frame := string(e.Frame)
	if len(frame) > 120 {
		frame = frame[:120] + "..."
	}
	return fmt.Sprintf("failed to decode response %q: %v", frame, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ImportRecordError reports a log record that could not be converted
type ImportRecordError struct {
	Index int
	Err   error
}

func (e *ImportRecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *ImportRecordError) Unwrap() error { return e.Err }

// LookupError reports a failed callsign lookup
type LookupError struct {
	Callsign   string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("callsign lookup for %s failed: status %d", e.Callsign, e.StatusCode)
	}
	return fmt.Sprintf("callsign lookup for %s failed: %v", e.Callsign, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
