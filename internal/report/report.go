// Package report renders run summaries for the terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/1broseidon/deskrig/internal/dispatch"
	"github.com/1broseidon/deskrig/internal/env"
	"github.com/1broseidon/deskrig/internal/orchestrator"
	"github.com/1broseidon/deskrig/internal/suite"
)

var (
	StylePass = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	StyleFail = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	StyleSkip = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	StyleInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

// Printer writes summaries, colored only when w is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

func New(w io.Writer) *Printer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{w: w, color: color}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Tests prints the summary of a suite run.
func (p *Printer) Tests(res suite.Result) {
	fmt.Fprintf(p.w, "total tests: %d\n", res.Total)
	if res.Failed > 0 {
		fmt.Fprintln(p.w, p.style(StyleFail, fmt.Sprintf("failed tests: %d", res.Failed)))
	} else {
		fmt.Fprintln(p.w, p.style(StylePass, "all tests succeeded"))
	}
	if fails := res.Fails(); len(fails) > 0 {
		fmt.Fprintln(p.w, "found issues:")
		for _, f := range fails {
			fmt.Fprintf(p.w, "    %s\n", f)
		}
	}
}

// Run prints the host-side summary of a dispatched run. err is the error
// Run returned, if any.
func (p *Printer) Run(res *dispatch.RunResult, err error) {
	if res == nil {
		if err != nil {
			fmt.Fprintln(p.w, p.style(StyleFail, "error: "+err.Error()))
		}
		return
	}
	fmt.Fprintln(p.w, p.style(StyleInfo, "run "+res.ID))

	switch {
	case res.Suite == nil:
		fmt.Fprintln(p.w, p.style(StyleSkip, "suite: not run"))
	case res.Suite.Passed():
		fmt.Fprintf(p.w, "suite: %s (%s)\n", p.style(StylePass, "ok"), res.Suite.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(p.w, "suite: %s (exit %d, %s)\n", p.style(StyleFail, "FAIL"), res.Suite.ExitCode, res.Suite.Duration.Round(time.Millisecond))
	}

	if len(res.Geometry) > 0 {
		fmt.Fprintln(p.w, "geometry:")
		for _, g := range res.Geometry {
			if g.Passed {
				fmt.Fprintf(p.w, "    %s %s %s\n", p.style(StylePass, "ok  "), g.Check, g.Actual)
				continue
			}
			fmt.Fprintf(p.w, "    %s %s (fixture %s)\n", p.style(StyleFail, "FAIL"), g.Check, g.Fixture)
			fmt.Fprintf(p.w, "        expected: %s\n", g.Expected)
			fmt.Fprintf(p.w, "        actual:   %s\n", g.Actual)
		}
	}

	if len(res.Unconfirmed) > 0 {
		fmt.Fprintln(p.w, "unconfirmed snapshots:")
		for _, path := range res.Unconfirmed {
			fmt.Fprintf(p.w, "    %s\n", path)
		}
		fmt.Fprintln(p.w, p.style(StyleSkip, "review them and run: deskrig approve <file.new.png>"))
	}
	fmt.Fprintf(p.w, "artifacts: %s\n", res.ArtifactsDir)

	if err != nil {
		fmt.Fprintln(p.w, p.style(StyleFail, "error: "+strings.TrimSpace(err.Error())))
	}
}

// Status prints an environment status.
func (p *Printer) Status(st orchestrator.Status) {
	state := string(st.State)
	switch st.State {
	case env.StateRunning:
		state = p.style(StylePass, state)
	case env.StateMissing, env.StateStopped:
		state = p.style(StyleSkip, state)
	}
	fmt.Fprintf(p.w, "environment: %s (%s)\n", st.Name, st.Backend)
	fmt.Fprintf(p.w, "state: %s\n", state)
	fmt.Fprintf(p.w, "builder: %s for %s\n", st.Builder, st.Target)
	if st.Locked {
		fmt.Fprintln(p.w, p.style(StyleInfo, "in use by another deskrig process"))
	}
	if st.Last != nil {
		fmt.Fprintf(p.w, "last session: %s started %s\n", st.Last.ID, st.Last.Started.Format(time.RFC3339))
	}
}
