package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMCPFixture(t *testing.T) (*MCPServer, *fakeConnection) {
	t.Helper()
	f := newAPIFixture(t)
	return NewMCPServer(f.model, loadTestCTY(t)), f.conn
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func TestMCP_GetState(t *testing.T) {
	s, _ := newMCPFixture(t)

	res, err := s.handleGetState(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var snap StateSnapshot
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &snap))
	assert.Len(t, snap.Receivers, 2)
	assert.Len(t, snap.Radios, 1)
}

func TestMCP_GetSpotsText(t *testing.T) {
	s, _ := newMCPFixture(t)

	res, err := s.handleGetSpots(context.Background(), toolRequest(map[string]any{"format": "text"}))
	require.NoError(t, err)
	assert.Equal(t, "No spots received yet.", resultText(t, res))

	_, err = query(context.Background(), s.model, func(m *Model) struct{} {
		m.AddSpot(Spot{Call: NewCall("DL1ABC", m.cty), SNR: -12, Frequency: 14075500, Band: "20m", Msg: "CQ DL1ABC JO62"})
		return struct{}{}
	})
	require.NoError(t, err)

	res, err = s.handleGetSpots(context.Background(), toolRequest(map[string]any{"format": "text", "limit": 10.0}))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "1 spots:")
	assert.Contains(t, text, "DL1ABC")
	assert.Contains(t, text, "Germany")
}

func TestMCP_LookupCountry(t *testing.T) {
	s, _ := newMCPFixture(t)

	res, err := s.handleLookupCountry(context.Background(), toolRequest(map[string]any{"callsign": "ve7xyz"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var result CTYLookupResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &result))
	assert.Equal(t, "Canada", result.Country)

	res, err = s.handleLookupCountry(context.Background(), toolRequest(map[string]any{"callsign": " "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleLookupCountry(context.Background(), toolRequest(map[string]any{"callsign": "QQ1QQ"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMCP_FrequencyStep(t *testing.T) {
	s, conn := newMCPFixture(t)
	conn.Connect(context.Background(), "ws://radio:4649/Spark")

	res, err := s.handleSetFrequencyStep(context.Background(), toolRequest(map[string]any{
		"receiver": rx1.String(), "digit": 4.0, "direction": "up",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	assert.Contains(t, resultText(t, res), "14084000 Hz")

	cmds := conn.commands()
	require.NotEmpty(t, cmds)
	assert.Equal(t, SetFrequencyCommand{ID: rx1, Frequency: "14084000"}, cmds[len(cmds)-1])

	res, err = s.handleSetFrequencyStep(context.Background(), toolRequest(map[string]any{
		"receiver": rx1.String(), "digit": 9.0, "direction": "up",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "Digit must be between 0 and 8", resultText(t, res))

	res, err = s.handleSetFrequencyStep(context.Background(), toolRequest(map[string]any{
		"receiver": rx3.String(), "digit": 1.0, "direction": "down",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Unknown receiver", resultText(t, res))
}

func TestMCP_SetModeAndPower(t *testing.T) {
	s, _ := newMCPFixture(t)

	res, err := s.handleSetMode(context.Background(), toolRequest(map[string]any{"receiver": rx2.String(), "mode": "ft4"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "FT4")

	res, err = s.handleSetMode(context.Background(), toolRequest(map[string]any{"receiver": rx2.String(), "mode": "warble"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleTogglePower(context.Background(), toolRequest(map[string]any{"radio": rd1.String()}))
	require.NoError(t, err)
	var power PowerResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &power))
	assert.True(t, power.Running)

	res, err = s.handleTogglePower(context.Background(), toolRequest(map[string]any{"radio": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
