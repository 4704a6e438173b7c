package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/1broseidon/deskrig/internal/config"
	"github.com/1broseidon/deskrig/internal/dispatch"
	"github.com/1broseidon/deskrig/internal/orchestrator"
	"github.com/1broseidon/deskrig/internal/report"
	"github.com/1broseidon/deskrig/internal/runerr"
)

var newOrchestratorFn = func(cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(cfg, orchestrator.Options{Logger: logger})
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := addCommonFlags(fs)
	record := fs.Bool("record", false, "Record missing snapshot baselines instead of failing")
	skipGeometry := fs.Bool("skip-geometry", false, "Skip the configured geometry checks")
	keep := fs.Bool("keep", false, "Leave a newly created environment running afterwards")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: deskrig run [--record] [--skip-geometry] [--keep] [--config PATH] [name]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Provision the desktop environment, build and ship the test binary, run the")
		fmt.Fprintln(stderr, "tests whose name contains [name] (all by default), then the geometry checks.")
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}
	if rc, ok := parseFlags(fs, args); !ok {
		return rc
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return runerr.ExitUsage
	}

	res, logger, err := common.load()
	if err != nil {
		return fail(err)
	}
	orch, err := newOrchestratorFn(res.Config, logger)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	d := dispatch.New(res.Config, orch, dispatch.Options{Logger: logger, Out: stdout})
	result, err := d.Run(ctx, dispatch.RunOptions{
		Filter:       fs.Arg(0),
		Record:       *record,
		SkipGeometry: *skipGeometry,
		Keep:         *keep,
	})
	report.New(stdout).Run(result, err)
	return runerr.ExitCode(err)
}

func printEnvUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: deskrig env <command> [--config PATH]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up        Provision the environment, wait until ready and leave it running")
	fmt.Fprintln(w, "  down      Remove the environment (no-op when it does not exist)")
	fmt.Fprintln(w, "  status    Show environment and builder state")
}

func runEnv(args []string) int {
	if len(args) == 0 {
		printEnvUsage(stderr)
		return runerr.ExitUsage
	}
	switch args[0] {
	case "up", "down", "status":
	case "help", "-h", "--help":
		printEnvUsage(stdout)
		return runerr.ExitOK
	default:
		fmt.Fprintf(stderr, "Unknown env command: %s\n\n", args[0])
		printEnvUsage(stderr)
		return runerr.ExitUsage
	}

	fs := flag.NewFlagSet("env "+args[0], flag.ContinueOnError)
	common := addCommonFlags(fs)
	if rc, ok := parseFlags(fs, args[1:]); !ok {
		return rc
	}
	res, logger, err := common.load()
	if err != nil {
		return fail(err)
	}
	orch, err := newOrchestratorFn(res.Config, logger)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	switch args[0] {
	case "up":
		s, err := orch.Provision(ctx)
		if err != nil {
			return fail(err)
		}
		defer orch.Release(s)
		if _, err := orch.WaitReady(ctx, s); err != nil {
			return fail(err)
		}
		verb := "started"
		if s.RuntimeReused {
			verb = "already running"
		}
		fmt.Fprintf(stdout, "environment %s %s (session %s)\n", res.Config.Runtime.Name, verb, s.ID)
		if res.Config.Runtime.Backend == config.BackendDocker && len(res.Config.Runtime.Publish) > 0 {
			fmt.Fprintf(stdout, "published: %s\n", strings.Join(res.Config.Runtime.Publish, ", "))
		}
	case "down":
		if err := orch.Teardown(ctx, nil); err != nil {
			return fail(err)
		}
		fmt.Fprintf(stdout, "environment %s removed\n", res.Config.Runtime.Name)
	case "status":
		st, err := orch.Status(ctx)
		if err != nil {
			return fail(err)
		}
		report.New(stdout).Status(st)
	}
	return runerr.ExitOK
}
