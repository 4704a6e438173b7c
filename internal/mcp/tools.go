package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/deskrig/internal/fixtures"
	"github.com/1broseidon/deskrig/internal/geometry"
	"github.com/1broseidon/deskrig/internal/snapshot"
)

func (s *Server) handleComputeWorkArea(_ context.Context, _ *mcpsdk.CallToolRequest, args ComputeWorkAreaInput) (*mcpsdk.CallToolResult, ComputeWorkAreaOutput, error) {
	monitor := s.config.Monitor
	if args.Monitor != nil {
		monitor = *args.Monitor
	}
	for i, p := range args.Panels {
		if err := p.Validate(); err != nil {
			return nil, ComputeWorkAreaOutput{}, fmt.Errorf("panels[%d]: %w", i, err)
		}
	}
	area, err := geometry.WorkArea(monitor, args.Panels)
	if err != nil {
		return nil, ComputeWorkAreaOutput{}, err
	}
	s.logger.Debug("mcp compute_work_area", "monitor", monitor.String(), "panels", len(args.Panels), "work_area", area.String())
	return nil, ComputeWorkAreaOutput{
		Monitor:  monitor,
		WorkArea: area,
		Line:     geometry.FormatRects([]geometry.Rect{area}),
	}, nil
}

func (s *Server) fixturesRoot() string { return s.config.Path(s.config.FixturesDir) }

func (s *Server) fixtureInfo(name string) (FixtureInfo, error) {
	fx, err := fixtures.Load(s.fixturesRoot(), name)
	if err != nil {
		return FixtureInfo{}, err
	}
	info := FixtureInfo{Name: fx.Name, Description: fx.Description, Panels: fx.Panels}
	if info.Panels == nil {
		info.Panels = []geometry.Panel{}
	}
	if line, err := fx.Oracle(s.config.Monitor); err != nil {
		info.Error = err.Error()
	} else {
		info.Expected = line
	}
	return info, nil
}

func (s *Server) handleFixtureOracle(_ context.Context, _ *mcpsdk.CallToolRequest, args FixtureOracleInput) (*mcpsdk.CallToolResult, FixtureInfo, error) {
	name := strings.TrimSpace(args.Fixture)
	if name == "" {
		return nil, FixtureInfo{}, fmt.Errorf("fixture is required")
	}
	info, err := s.fixtureInfo(name)
	if err != nil {
		return nil, FixtureInfo{}, err
	}
	return nil, info, nil
}

func (s *Server) handleListFixtures(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListFixturesInput) (*mcpsdk.CallToolResult, ListFixturesOutput, error) {
	names, err := fixtures.List(s.fixturesRoot())
	if err != nil {
		return nil, ListFixturesOutput{}, err
	}
	out := ListFixturesOutput{Fixtures: make([]FixtureInfo, 0, len(names))}
	for _, name := range names {
		info, err := s.fixtureInfo(name)
		if err != nil {
			out.Fixtures = append(out.Fixtures, FixtureInfo{Name: name, Panels: []geometry.Panel{}, Error: err.Error()})
			continue
		}
		out.Fixtures = append(out.Fixtures, info)
	}
	return nil, out, nil
}

func (s *Server) handleListTests(_ context.Context, _ *mcpsdk.CallToolRequest, args ListTestsInput) (*mcpsdk.CallToolResult, ListTestsOutput, error) {
	tests := s.registry.Match(args.Filter)
	if tests == nil {
		tests = []string{}
	}
	return nil, ListTestsOutput{Tests: tests}, nil
}

func (s *Server) snapshotsRoot() string { return s.config.Path(s.config.Snapshots.Dir) }

func (s *Server) handlePendingSnapshots(_ context.Context, _ *mcpsdk.CallToolRequest, _ PendingSnapshotsInput) (*mcpsdk.CallToolResult, PendingSnapshotsOutput, error) {
	root := s.snapshotsRoot()
	pending, err := snapshot.Pending(root)
	if err != nil {
		return nil, PendingSnapshotsOutput{}, err
	}
	if pending == nil {
		pending = []string{}
	}
	return nil, PendingSnapshotsOutput{Dir: root, Pending: pending}, nil
}

// handleApproveSnapshot only promotes files inside the snapshots directory.
func (s *Server) handleApproveSnapshot(_ context.Context, _ *mcpsdk.CallToolRequest, args ApproveSnapshotInput) (*mcpsdk.CallToolResult, ApproveSnapshotOutput, error) {
	root := s.snapshotsRoot()
	path := args.Path
	if !filepath.IsAbs(path) {
		path = s.config.Path(path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, ApproveSnapshotOutput{}, fmt.Errorf("%s is outside the snapshots directory %s", args.Path, root)
	}
	baseline, err := snapshot.Approve(path)
	if err != nil {
		return nil, ApproveSnapshotOutput{}, err
	}
	s.logger.Info("snapshot approved", "baseline", baseline)
	return nil, ApproveSnapshotOutput{Baseline: baseline}, nil
}

func (s *Server) handleEnvironmentStatus(ctx context.Context, _ *mcpsdk.CallToolRequest, _ EnvironmentStatusInput) (*mcpsdk.CallToolResult, EnvironmentStatusOutput, error) {
	if s.orch == nil {
		return nil, EnvironmentStatusOutput{}, fmt.Errorf("no environment configured")
	}
	st, err := s.orch.Status(ctx)
	if err != nil {
		return nil, EnvironmentStatusOutput{}, err
	}
	out := EnvironmentStatusOutput{
		Name:    st.Name,
		Backend: st.Backend,
		State:   string(st.State),
		Builder: st.Builder,
		Target:  st.Target.String(),
		Locked:  st.Locked,
	}
	if st.Last != nil {
		out.LastSession = st.Last.ID
		started := st.Last.Started
		out.LastStarted = &started
	}
	return nil, out, nil
}
