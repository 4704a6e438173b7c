package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/1broseidon/deskrig/internal/mcp"
	"github.com/1broseidon/deskrig/internal/runerr"
)

func printMCPUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: deskrig mcp <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Start the MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'deskrig mcp <command> --help' for command-specific options.")
}

func runMCP(args []string) int {
	if len(args) == 0 {
		printMCPUsage(stderr)
		return runerr.ExitUsage
	}

	switch args[0] {
	case "serve":
		return runMCPServe(args[1:])
	case "help", "-h", "--help":
		printMCPUsage(stdout)
		return runerr.ExitOK
	default:
		fmt.Fprintf(stderr, "Unknown mcp command: %s\n\n", args[0])
		printMCPUsage(stderr)
		return runerr.ExitUsage
	}
}

func runMCPServe(args []string) int {
	fs := flag.NewFlagSet("mcp serve", flag.ContinueOnError)
	common := addCommonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: deskrig mcp serve [--config PATH]")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Start the MCP server on stdio. Designed to be invoked by MCP clients, e.g.:")
		fmt.Fprintln(stderr, "  claude mcp add deskrig -- deskrig mcp serve")
	}
	if rc, ok := parseFlags(fs, args); !ok {
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
	server := mcp.NewServer(res.Config, orch, logger)

	ctx, cancel := signalContext()
	defer cancel()

	if err := server.Run(ctx); err != nil {
		return fail(fmt.Errorf("MCP server error: %w", err))
	}
	return runerr.ExitOK
}
