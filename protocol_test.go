package main

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand_NoFields(t *testing.T) {
	frame, err := EncodeCommand(GetReceiversCommand{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"getReceivers"}`, string(frame))
}

func TestEncodeCommand_SplicesFields(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	frame, err := EncodeCommand(SetFrequencyCommand{ID: id, Frequency: "14074000"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"setFrequency","ID":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","Frequency":"14074000"}`, string(frame))

	frame, err = EncodeCommand(SetRunningCommand{ID: id, Running: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"setRunning","ID":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","Running":true}`, string(frame))

	frame, err = EncodeCommand(SubscribeToSpotsCommand{Enable: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cmd":"subscribeToSpots","Enable":true}`, string(frame))
}

func TestEncodeCommand_FrameIsValidJSON(t *testing.T) {
	cmds := []Command{
		GetVersionCommand{}, GetRadiosCommand{}, GetReceiversCommand{},
		SetModeCommand{ID: uuid.New(), Mode: "USB"},
		SubscribeToAudioCommand{RxID: uuid.New(), Enable: false},
		AddReceiverCommand{ID: uuid.New()},
		RemoveReceiverCommand{ID: uuid.New()},
	}
	for _, cmd := range cmds {
		frame, err := EncodeCommand(cmd)
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(frame, &decoded), string(frame))
		assert.Equal(t, cmd.CommandName(), decoded["cmd"])
	}
}

func TestDecodeResponse_Version(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"cmd":"getVersionResponse","Host":"SparkSDR","HostVersion":"2.0.8","ProtocolVersion":"1.0"}`))
	require.NoError(t, err)

	v, ok := resp.(VersionResponse)
	require.True(t, ok)
	assert.Equal(t, "SparkSDR", v.Host)
	assert.Equal(t, "2.0.8", v.HostVersion)
	assert.Equal(t, "1.0", v.ProtocolVersion)
}

func TestDecodeResponse_Receivers(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"cmd":"getReceiversResponse","Receivers":[
		{"ID":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","Mode":"FT8","Frequency":14074000},
		{"ID":"6ba7b811-9dad-11d1-80b4-00c04fd430c8","Mode":"CW","Frequency":7030000.5}
	]}`))
	require.NoError(t, err)

	r, ok := resp.(ReceiversResponse)
	require.True(t, ok)
	require.Len(t, r.Receivers, 2)
	assert.Equal(t, Mode("FT8"), r.Receivers[0].Mode)
	assert.Equal(t, 14074000.0, r.Receivers[0].Frequency)
	assert.Equal(t, 7030000.5, r.Receivers[1].Frequency)
}

func TestDecodeResponse_Spots(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"cmd":"spotResponse","Spots":[
		{"time":"2024-05-01T12:00:15Z","frequency":14075123,"tunedfrequency":14074000,"snr":-12,"dt":0.3,
		 "msg":"CQ JA1ABC PM95","mode":"FT8","call":"JA1ABC","locator":"PM95","valid":true}
	]}`))
	require.NoError(t, err)

	r, ok := resp.(SpotResponse)
	require.True(t, ok)
	require.Len(t, r.Spots, 1)
	assert.Equal(t, "JA1ABC", r.Spots[0].Call)
	assert.Equal(t, -12, r.Spots[0].SNR)
	assert.Nil(t, r.Spots[0].Distance)
	assert.Equal(t, "PM95", r.Spots[0].Locator)
}

func TestDecodeResponse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		unknown bool
	}{
		{"malformed", `{"cmd":`, false},
		{"missing cmd", `{"Receivers":[]}`, true},
		{"unknown cmd", `{"cmd":"somethingNew"}`, true},
		{"wrong field type", `{"cmd":"getRadiosResponse","Radios":"nope"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse([]byte(tt.frame))
			assert.Nil(t, resp)
			require.Error(t, err)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, tt.frame, string(decodeErr.Frame))
			assert.Equal(t, tt.unknown, errors.Is(err, ErrUnknownResponse))
		})
	}
}

func TestDecodeResponse_ServerError(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"cmd":"error","Message":"bad receiver"}`))
	require.NoError(t, err)
	assert.Equal(t, ServerErrorResponse{Message: "bad receiver"}, resp)
}
