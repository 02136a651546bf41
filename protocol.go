package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Command is an outbound SparkSDR request. The wire form is a JSON object
// whose "cmd" field carries CommandName and whose remaining fields are the
// command struct's own.
type Command interface {
	CommandName() string
}

type GetVersionCommand struct{}

type GetRadiosCommand struct{}

type GetReceiversCommand struct{}

type SetFrequencyCommand struct {
	ID        uuid.UUID `json:"ID"`
	Frequency string    `json:"Frequency"` // integer Hz
}

type SetModeCommand struct {
	ID   uuid.UUID `json:"ID"`
	Mode Mode      `json:"Mode"`
}

type SubscribeToSpotsCommand struct {
	Enable bool `json:"Enable"`
}

type SubscribeToAudioCommand struct {
	RxID   uuid.UUID `json:"RxID"`
	Enable bool      `json:"Enable"`
}

// AddReceiverCommand asks the radio identified by ID for a new receiver
type AddReceiverCommand struct {
	ID uuid.UUID `json:"ID"`
}

type RemoveReceiverCommand struct {
	ID uuid.UUID `json:"ID"`
}

// SetRunningCommand powers the radio identified by ID on or off
type SetRunningCommand struct {
	ID      uuid.UUID `json:"ID"`
	Running bool      `json:"Running"`
}

func (GetVersionCommand) CommandName() string       { return "getVersion" }
func (GetRadiosCommand) CommandName() string        { return "getRadios" }
func (GetReceiversCommand) CommandName() string     { return "getReceivers" }
func (SetFrequencyCommand) CommandName() string     { return "setFrequency" }
func (SetModeCommand) CommandName() string          { return "setMode" }
func (SubscribeToSpotsCommand) CommandName() string { return "subscribeToSpots" }
func (SubscribeToAudioCommand) CommandName() string { return "subscribeToAudio" }
func (AddReceiverCommand) CommandName() string      { return "addReceiver" }
func (RemoveReceiverCommand) CommandName() string   { return "removeReceiver" }
func (SetRunningCommand) CommandName() string       { return "setRunning" }

// EncodeCommand serializes cmd into a text frame
func EncodeCommand(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", cmd.CommandName(), err)
	}
	name, err := json.Marshal(cmd.CommandName())
	if err != nil {
		return nil, fmt.Errorf("failed to encode command name: %w", err)
	}

	frame := make([]byte, 0, len(body)+len(name)+8)
	frame = append(frame, `{"cmd":`...)
	frame = append(frame, name...)
	if len(body) > 2 {
		// body is a JSON object: splice its fields in after the discriminator
		frame = append(frame, ',')
		frame = append(frame, body[1:]...)
	} else {
		frame = append(frame, '}')
	}
	return frame, nil
}

// CommandResponse is an inbound SparkSDR message
type CommandResponse interface {
	ResponseName() string
}

type VersionResponse struct {
	Version
}

type RadiosResponse struct {
	Radios []Radio `json:"Radios"`
}

type ReceiversResponse struct {
	Receivers []Receiver `json:"Receivers"`
}

// ReceiverResponse is a server-originated update of a single receiver
type ReceiverResponse struct {
	ID         uuid.UUID `json:"ID"`
	Mode       Mode      `json:"Mode"`
	Frequency  float64   `json:"Frequency"`
	FilterLow  float64   `json:"FilterLow"`
	FilterHigh float64   `json:"FilterHigh"`
}

type SpotResponse struct {
	Spots []SpotRecord `json:"Spots"`
}

// ServerErrorResponse is sent by the server when it rejects a command
type ServerErrorResponse struct {
	Message string `json:"Message"`
}

func (VersionResponse) ResponseName() string     { return "getVersionResponse" }
func (RadiosResponse) ResponseName() string      { return "getRadiosResponse" }
func (ReceiversResponse) ResponseName() string   { return "getReceiversResponse" }
func (ReceiverResponse) ResponseName() string    { return "receiverResponse" }
func (SpotResponse) ResponseName() string        { return "spotResponse" }
func (ServerErrorResponse) ResponseName() string { return "error" }

// SpotRecord is a spot as it appears on the wire
type SpotRecord struct {
	Time           time.Time `json:"time"`
	Frequency      float64   `json:"frequency"`
	TunedFrequency float64   `json:"tunedfrequency"`
	Power          float64   `json:"power"`
	Drift          float64   `json:"drift"`
	SNR            int       `json:"snr"`
	DT             float64   `json:"dt"`
	Msg            string    `json:"msg"`
	Mode           string    `json:"mode"`
	Distance       *float64  `json:"distance,omitempty"`
	Call           string    `json:"call"`
	Locator        string    `json:"locator,omitempty"`
	Valid          bool      `json:"valid"`
}

// DecodeResponse decodes a text frame. Any failure, including an unknown
// cmd, is returned as a *DecodeError for this frame only.
func DecodeResponse(frame []byte) (CommandResponse, error) {
	var envelope struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}

	var resp CommandResponse
	var err error
	switch envelope.Cmd {
	case "getVersionResponse":
		var r VersionResponse
		err = json.Unmarshal(frame, &r)
		resp = r
	case "getRadiosResponse":
		var r RadiosResponse
		err = json.Unmarshal(frame, &r)
		resp = r
	case "getReceiversResponse":
		var r ReceiversResponse
		err = json.Unmarshal(frame, &r)
		resp = r
	case "receiverResponse":
		var r ReceiverResponse
		err = json.Unmarshal(frame, &r)
		resp = r
	case "spotResponse":
		var r SpotResponse
		err = json.Unmarshal(frame, &r)
		resp = r
	case "error":
		var r ServerErrorResponse
		err = json.Unmarshal(frame, &r)
		resp = r
	case "":
		err = fmt.Errorf("%w: missing cmd field", ErrUnknownResponse)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownResponse, envelope.Cmd)
	}
	if err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}
	return resp, nil
}
