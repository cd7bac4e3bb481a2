package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/vidout/internal/display"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandGetStatus         CommandType = "GET_STATUS"
	CommandGetModes          CommandType = "GET_MODES"
	CommandSetMode           CommandType = "SET_MODE"
	CommandUpdateResolutions CommandType = "UPDATE_RESOLUTIONS"
	CommandSuspend           CommandType = "SUSPEND"
	CommandResume            CommandType = "RESUME"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Session       string       `json:"session"`
	Backend       string       `json:"backend"`
	State         string       `json:"state"`
	Mode          display.Mode `json:"mode"`
	WindowName    string       `json:"window_name,omitempty"`
	FullScreen    bool         `json:"fullscreen"`
	Suspended     bool         `json:"suspended"`
	Frames        uint64       `json:"frames"`
	Resources     int          `json:"resources"`
	AudioSink     string       `json:"audio_sink,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	DaemonRunning bool         `json:"daemon_running"`
}

// ModesData represents the data returned by GET_MODES and
// UPDATE_RESOLUTIONS: the last published catalog.
type ModesData struct {
	Modes   []display.Mode `json:"modes"`
	Current display.Mode   `json:"current"`
}

// SetModePayload represents the payload for SET_MODE. Mode uses the
// WIDTHxHEIGHT[i][@RATE] form; a missing rate picks the highest available.
type SetModePayload struct {
	Mode string `json:"mode"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
