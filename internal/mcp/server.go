package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/vidout/internal/ipc"
)

const (
	ServerName    = "vidout"
	ServerVersion = "0.1.0"
)

// DaemonClient is the part of the IPC client the tools call.
type DaemonClient interface {
	GetStatus() (*ipc.StatusData, error)
	GetModes() (*ipc.ModesData, error)
	SetMode(mode string) (*ipc.StatusData, error)
	UpdateResolutions() (*ipc.ModesData, error)
	Suspend() error
	Resume() error
}

var _ DaemonClient = (*ipc.Client)(nil)

// Server exposes the running daemon's display controls as MCP tools.
type Server struct {
	mcpServer *mcpsdk.Server
	client    DaemonClient
	logger    *slog.Logger
}

// NewServer creates a new MCP server that forwards to the daemon over IPC.
func NewServer(client DaemonClient, logger *slog.Logger) *Server {
	if client == nil {
		client = ipc.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		client: client,
		logger: logger.With("component", "mcp"),
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "display_status",
		Description: "Report the vidout daemon's display state: lifecycle state, active mode, presented frame count and whether rendering is suspended.",
	}, s.handleDisplayStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_modes",
		Description: "List every output mode the display hardware offers, in the order the hardware reports them, plus the active mode.",
	}, s.handleListModes)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_mode",
		Description: "Switch the output to a mode such as 1920x1080@60 or 1920x1080i@50. Without a rate the highest rate for that size is chosen. The previous mode stays active if the hardware rejects the switch.",
	}, s.handleSetMode)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "update_resolutions",
		Description: "Re-query the hardware for connected outputs and republish the mode list. Use after plugging in a display.",
	}, s.handleUpdateResolutions)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "suspend_display",
		Description: "Tell display resources the display is lost and pause rendering until resume_display.",
	}, s.handleSuspend)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "resume_display",
		Description: "Tell display resources the display is usable again and resume rendering.",
	}, s.handleResume)
}
