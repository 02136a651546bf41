package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the client state and a few controls as MCP tools
type MCPServer struct {
	model      *Model
	cty        *CTYDatabase
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(model *Model, cty *CTYDatabase) *MCPServer {
	m := &MCPServer{
		model: model,
		cty:   cty,
	}

	m.mcpServer = server.NewMCPServer(
		"sparkclient",
		AppVersion,
		server.WithToolCapabilities(true),
	)

	m.registerTools()

	m.httpServer = server.NewStreamableHTTPServer(m.mcpServer)

	return m
}

// registerTools registers all available MCP tools
func (m *MCPServer) registerTools() {
	m.mcpServer.AddTool(
		mcp.NewTool("get_state",
			mcp.WithDescription("Get the connection status, server version, radios, receivers and the current default receiver. Receiver frequencies are in Hz."),
		),
		m.handleGetState,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("get_spots",
			mcp.WithDescription("Get the most recent decoded spots with callsign, country, SNR, frequency and message. Each spot carries new_country and new_state flags against the imported logbook."),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of spots to return, newest last (default: 50, 0 = all retained)"),
				mcp.DefaultNumber(50.0),
			),
			mcp.WithString("format",
				mcp.Description("Output format: 'json' for structured data or 'text' for human-readable summary"),
				mcp.DefaultString("json"),
			),
		),
		m.handleGetSpots,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("get_spot_stats",
			mcp.WithDescription("Get aggregate statistics over the retained spots: SNR mean, median and deviation, distance, and counts by band and country."),
		),
		m.handleGetSpotStats,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("lookup_country",
			mcp.WithDescription("Resolve a callsign to its DXCC entity using the CTY prefix table, including CQ/ITU zones and continent."),
			mcp.WithString("callsign",
				mcp.Required(),
				mcp.Description("Callsign to resolve (e.g. 'JA1ABC', 'W1AW/P')"),
			),
		),
		m.handleLookupCountry,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("set_frequency_step",
			mcp.WithDescription("Step a receiver's frequency by one digit position. Digit 0 is the 100 MHz position and digit 8 is the 1 Hz position."),
			mcp.WithString("receiver",
				mcp.Required(),
				mcp.Description("Receiver ID (UUID) from get_state"),
			),
			mcp.WithNumber("digit",
				mcp.Required(),
				mcp.Description("Digit position 0-8"),
			),
			mcp.WithString("direction",
				mcp.Description("'up' or 'down' (default: up)"),
				mcp.DefaultString("up"),
			),
		),
		m.handleSetFrequencyStep,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("set_mode",
			mcp.WithDescription("Set a receiver's demodulation mode."),
			mcp.WithString("receiver",
				mcp.Required(),
				mcp.Description("Receiver ID (UUID) from get_state"),
			),
			mcp.WithString("mode",
				mcp.Required(),
				mcp.Description("Mode, e.g. 'USB', 'CW', 'FT8'"),
			),
		),
		m.handleSetMode,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("toggle_power",
			mcp.WithDescription("Start or stop a radio. Returns the new running state."),
			mcp.WithString("radio",
				mcp.Required(),
				mcp.Description("Radio ID (UUID) from get_state"),
			),
		),
		m.handleTogglePower,
	)
}

// ServeHTTP handles MCP protocol requests over HTTP
func (m *MCPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.httpServer.ServeHTTP(w, r)
}

// Tool handlers

func (m *MCPServer) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := m.model.QuerySnapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read state: %v", err)), nil
	}
	return jsonResult(snap)
}

func (m *MCPServer) handleGetSpots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(request.GetFloat("limit", 50.0))
	if limit < 0 {
		limit = 0
	}
	format := request.GetString("format", "json")

	views, err := m.model.QuerySpots(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read spots: %v", err)), nil
	}

	if format == "text" {
		if len(views) == 0 {
			return mcp.NewToolResultText("No spots received yet."), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d spots:\n", len(views))
		for _, v := range views {
			country := v.Call.Country
			if country == "" {
				country = "unknown"
			}
			fmt.Fprintf(&sb, "%s %-10s %4d dB %.3f kHz %-5s %s (%s)",
				v.Time.Format("15:04:05"), v.Call.Callsign, v.SNR, v.Frequency/1000, v.Band, v.Msg, country)
			if v.NewCountry {
				sb.WriteString(" NEW COUNTRY")
			}
			if v.NewState {
				sb.WriteString(" NEW STATE")
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}

	return jsonResult(SpotsResponse{Count: len(views), Spots: views})
}

func (m *MCPServer) handleGetSpotStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := m.model.QuerySpotStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to compute statistics: %v", err)), nil
	}
	return jsonResult(stats)
}

func (m *MCPServer) handleLookupCountry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	callsign := request.GetString("callsign", "")
	if strings.TrimSpace(callsign) == "" {
		return mcp.NewToolResultError("callsign is required"), nil
	}
	if m.cty == nil {
		return mcp.NewToolResultError("CTY database not loaded"), nil
	}
	result := m.cty.LookupCallsignFull(callsign)
	if result == nil {
		return mcp.NewToolResultError(fmt.Sprintf("No CTY entry for %s", NormalizeCallsign(callsign))), nil
	}
	return jsonResult(result)
}

func (m *MCPServer) handleSetFrequencyStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("receiver", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid receiver id: %v", err)), nil
	}
	digit := int(request.GetFloat("digit", -1))
	direction := strings.ToLower(request.GetString("direction", "up"))
	if direction != "up" && direction != "down" {
		return mcp.NewToolResultError("direction must be 'up' or 'down'"), nil
	}

	ev := FrequencyStepIntent{Receiver: id, Digit: digit, Up: direction == "up"}
	if err := m.model.Dispatch(ctx, ev); err != nil {
		return toolError(err), nil
	}

	rx, err := query(ctx, m.model, func(m *Model) Receiver {
		if i := m.receiverIndex(id); i >= 0 {
			return m.receivers[i]
		}
		return Receiver{}
	})
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Receiver %s now at %.0f Hz", id, rx.Frequency)), nil
}

func (m *MCPServer) handleSetMode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("receiver", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid receiver id: %v", err)), nil
	}
	mode := Mode(strings.ToUpper(request.GetString("mode", "")))
	if !IsKnownMode(mode) {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown mode %q", mode)), nil
	}
	if err := m.model.Dispatch(ctx, ModeChangeIntent{Receiver: id, Mode: mode}); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Receiver %s set to %s", id, mode)), nil
}

func (m *MCPServer) handleTogglePower(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := uuid.Parse(request.GetString("radio", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid radio id: %v", err)), nil
	}
	if err := m.model.Dispatch(ctx, TogglePowerIntent{Radio: id}); err != nil {
		return toolError(err), nil
	}
	running, err := query(ctx, m.model, func(m *Model) bool {
		running, _ := m.RadioPowerState(id)
		return running
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(PowerResponse{Radio: id, Running: running})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal data: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, ErrUnknownReceiver):
		return mcp.NewToolResultError("Unknown receiver")
	case errors.Is(err, ErrUnknownRadio):
		return mcp.NewToolResultError("Unknown radio")
	case errors.Is(err, ErrInvalidDigit):
		return mcp.NewToolResultError("Digit must be between 0 and 8")
	}
	return mcp.NewToolResultError(err.Error())
}
