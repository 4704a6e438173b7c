// Package mcp serves deskrig's inspection tools over the Model Context
// Protocol: work-area computation, panel fixtures, registered tests, pending
// snapshots and environment status.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/deskrig/internal/cases"
	"github.com/1broseidon/deskrig/internal/config"
	"github.com/1broseidon/deskrig/internal/orchestrator"
	"github.com/1broseidon/deskrig/internal/suite"
)

const (
	ServerName    = "deskrig"
	ServerVersion = "0.1.0"
)

// Server is the MCP server for deskrig.
type Server struct {
	mcpServer *mcpsdk.Server
	config    *config.Config
	registry  *suite.Registry
	orch      *orchestrator.Orchestrator
	logger    *slog.Logger
}

// NewServer creates a server for cfg. orch answers environment_status.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := suite.NewRegistry()
	cases.Register(reg)

	s := &Server{
		config:   cfg,
		registry: reg,
		orch:     orch,
		logger:   logger,
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
		Name:        "compute_work_area",
		Description: "Compute the work area left on a monitor after docked panels reserve their edges. Each edge reserves the thickest panel on it plus one pixel. Returns the rectangle and the `deskrig workarea` line form.",
	}, s.handleComputeWorkArea)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "fixture_oracle",
		Description: "Return a panel fixture's panels and the work-area line a geometry check expects for it on the configured monitor.",
	}, s.handleFixtureOracle)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_fixtures",
		Description: "List the panel fixtures available to geometry checks with their expected work areas.",
	}, s.handleListFixtures)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_tests",
		Description: "List the registered UI test cases, optionally filtered by substring.",
	}, s.handleListTests)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "pending_snapshots",
		Description: "List unconfirmed snapshots (.new.png) waiting for review in the snapshots directory.",
	}, s.handlePendingSnapshots)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "approve_snapshot",
		Description: "Promote an unconfirmed snapshot to the baseline for its step, replacing the old baseline and removing the diff image.",
	}, s.handleApproveSnapshot)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "environment_status",
		Description: "Report the isolated desktop environment's state, build backend and whether another deskrig process holds it.",
	}, s.handleEnvironmentStatus)
}
