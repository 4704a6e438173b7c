package mcp

import (
	"time"

	"github.com/1broseidon/deskrig/internal/geometry"
)

// ComputeWorkAreaInput is the input for the compute_work_area tool.
type ComputeWorkAreaInput struct {
	Monitor *geometry.Rect   `json:"monitor,omitempty" jsonschema:"Monitor geometry (default: the configured monitor, 1600x900 at 0,0)"`
	Panels  []geometry.Panel `json:"panels" jsonschema:"Panels docked to the monitor. edge is one of top, bottom, left, right, none"`
}

// ComputeWorkAreaOutput is the output for the compute_work_area tool.
type ComputeWorkAreaOutput struct {
	Monitor  geometry.Rect `json:"monitor"`
	WorkArea geometry.Rect `json:"work_area"`
	// Line is the work area in `deskrig workarea` output form.
	Line string `json:"line"`
}

// FixtureOracleInput is the input for the fixture_oracle tool.
type FixtureOracleInput struct {
	Fixture string `json:"fixture" jsonschema:"Panel fixture name, e.g. top26 or left26-bottom48"`
}

// FixtureInfo describes one panel fixture and its expected work area.
type FixtureInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Panels      []geometry.Panel `json:"panels"`
	Expected    string           `json:"expected,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// ListFixturesInput is the input for the list_fixtures tool.
type ListFixturesInput struct{}

// ListFixturesOutput is the output for the list_fixtures tool.
type ListFixturesOutput struct {
	Fixtures []FixtureInfo `json:"fixtures"`
}

// ListTestsInput is the input for the list_tests tool.
type ListTestsInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"Substring filter over test names (default: all tests)"`
}

// ListTestsOutput is the output for the list_tests tool.
type ListTestsOutput struct {
	Tests []string `json:"tests"`
}

// PendingSnapshotsInput is the input for the pending_snapshots tool.
type PendingSnapshotsInput struct{}

// PendingSnapshotsOutput is the output for the pending_snapshots tool.
type PendingSnapshotsOutput struct {
	Dir     string   `json:"dir"`
	Pending []string `json:"pending"`
}

// ApproveSnapshotInput is the input for the approve_snapshot tool.
type ApproveSnapshotInput struct {
	Path string `json:"path" jsonschema:"Path of an unconfirmed snapshot ending in .new.png, as returned by pending_snapshots"`
}

// ApproveSnapshotOutput is the output for the approve_snapshot tool.
type ApproveSnapshotOutput struct {
	Baseline string `json:"baseline"`
}

// EnvironmentStatusInput is the input for the environment_status tool.
type EnvironmentStatusInput struct{}

// EnvironmentStatusOutput is the output for the environment_status tool.
type EnvironmentStatusOutput struct {
	Name        string     `json:"name"`
	Backend     string     `json:"backend"`
	State       string     `json:"state"`
	Builder     string     `json:"builder"`
	Target      string     `json:"target"`
	Locked      bool       `json:"locked"`
	LastSession string     `json:"last_session,omitempty"`
	LastStarted *time.Time `json:"last_started,omitempty"`
}
