package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/vidout/internal/runtimepath"
)

// Controller is what the server drives. The daemon implements it by
// forwarding every call to the goroutine that owns the display.
type Controller interface {
	Status() StatusData
	Modes() ModesData
	SetMode(mode string) (StatusData, error)
	UpdateResolutions() (ModesData, error)
	Suspend() error
	Resume() error
}

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	ctrl         Controller
	logger       *slog.Logger
	startTime    time.Time
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a server on the default runtime socket.
func NewServer(ctrl Controller, logger *slog.Logger) (*Server, error) {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
	}
	return NewServerAt(socketPath, ctrl, logger), nil
}

// NewServerAt creates a server listening on socketPath.
func NewServerAt(socketPath string, ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	// Remove a stale socket left by a previous run.
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		logger:     logger.With("component", "ipc"),
		startTime:  time.Now(),
	}
}

// SocketPath returns the socket the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection serves one newline-terminated JSON request.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	resp := s.handleCommand(req)

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Warn("failed to send response", "error", err)
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	s.logger.Debug("IPC request", "command", req.Command)

	switch req.Command {
	case CommandGetStatus:
		return s.handleGetStatus()
	case CommandGetModes:
		return okResponse(s.ctrl.Modes())
	case CommandSetMode:
		return s.handleSetMode(req.Payload)
	case CommandUpdateResolutions:
		modes, err := s.ctrl.UpdateResolutions()
		if err != nil {
			return NewErrorResponse(fmt.Sprintf("Failed to update resolutions: %v", err))
		}
		return okResponse(modes)
	case CommandSuspend:
		if err := s.ctrl.Suspend(); err != nil {
			return NewErrorResponse(fmt.Sprintf("Failed to suspend: %v", err))
		}
		return okResponse(nil)
	case CommandResume:
		if err := s.ctrl.Resume(); err != nil {
			return NewErrorResponse(fmt.Sprintf("Failed to resume: %v", err))
		}
		return okResponse(nil)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleGetStatus() *Response {
	status := s.ctrl.Status()
	status.UptimeSeconds = int64(time.Since(s.startTime).Seconds())
	status.DaemonRunning = true
	return okResponse(status)
}

func (s *Server) handleSetMode(payload json.RawMessage) *Response {
	var req SetModePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid set mode payload: %v", err))
	}
	if req.Mode == "" {
		return NewErrorResponse("mode is required")
	}

	s.logger.Info("IPC: switching mode", "mode", req.Mode)
	status, err := s.ctrl.SetMode(req.Mode)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to set mode: %v", err))
	}
	status.UptimeSeconds = int64(time.Since(s.startTime).Seconds())
	status.DaemonRunning = true
	return okResponse(status)
}

func okResponse(data any) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}
