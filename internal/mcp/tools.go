package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/vidout/internal/ipc"
)

func statusOutput(st *ipc.StatusData) StatusOutput {
	out := StatusOutput{
		State:      st.State,
		Width:      st.Mode.Width,
		Height:     st.Mode.Height,
		Interlaced: st.Mode.Interlaced,
		RefreshHz:  st.Mode.RefreshRate,
		Frames:     st.Frames,
		Suspended:  st.Suspended,
		Backend:    st.Backend,
		AudioSink:  st.AudioSink,
		Uptime:     st.UptimeSeconds,
	}
	if !st.Mode.IsZero() {
		out.Mode = st.Mode.String()
	}
	return out
}

func modesOutput(md *ipc.ModesData) ListModesOutput {
	out := ListModesOutput{Modes: make([]ModeInfo, 0, len(md.Modes))}
	for _, m := range md.Modes {
		out.Modes = append(out.Modes, modeInfo(m, md.Current))
	}
	if !md.Current.IsZero() {
		out.Current = md.Current.String()
	}
	return out
}

func (s *Server) handleDisplayStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st, err := s.client.GetStatus()
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(st), nil
}

func (s *Server) handleListModes(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListModesOutput, error) {
	md, err := s.client.GetModes()
	if err != nil {
		return nil, ListModesOutput{}, err
	}
	return nil, modesOutput(md), nil
}

func (s *Server) handleSetMode(_ context.Context, _ *mcpsdk.CallToolRequest, args SetModeInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	mode := strings.TrimSpace(args.Mode)
	if mode == "" {
		return nil, StatusOutput{}, fmt.Errorf("mode is required")
	}
	s.logger.Info("set_mode requested", "mode", mode)
	st, err := s.client.SetMode(mode)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, statusOutput(st), nil
}

func (s *Server) handleUpdateResolutions(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListModesOutput, error) {
	md, err := s.client.UpdateResolutions()
	if err != nil {
		return nil, ListModesOutput{}, err
	}
	return nil, modesOutput(md), nil
}

func (s *Server) handleSuspend(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, AckOutput, error) {
	if err := s.client.Suspend(); err != nil {
		return nil, AckOutput{}, err
	}
	return nil, AckOutput{OK: true, Suspended: true}, nil
}

func (s *Server) handleResume(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, AckOutput, error) {
	if err := s.client.Resume(); err != nil {
		return nil, AckOutput{}, err
	}
	return nil, AckOutput{OK: true}, nil
}
