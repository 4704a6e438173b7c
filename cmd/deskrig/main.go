package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/deskrig/internal/config"
	"github.com/1broseidon/deskrig/internal/runerr"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runRun(os.Args[2:]))
	case "env":
		os.Exit(runEnv(os.Args[2:]))
	case "test":
		os.Exit(runTest(os.Args[2:]))
	case "list":
		os.Exit(runList(os.Args[2:]))
	case "workarea":
		os.Exit(runWorkarea(os.Args[2:]))
	case "approve":
		os.Exit(runApprove(os.Args[2:]))
	case "ready":
		os.Exit(runReady(os.Args[2:]))
	case "fixtures":
		os.Exit(runFixtures(os.Args[2:]))
	case "oracle":
		os.Exit(runOracle(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(runerr.ExitUsage)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: deskrig <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Controller commands (host):")
	fmt.Fprintln(w, "  run                 Provision, build, run the suite and geometry checks")
	fmt.Fprintln(w, "  env up              Provision the desktop environment and leave it running")
	fmt.Fprintln(w, "  env down            Remove the desktop environment")
	fmt.Fprintln(w, "  env status          Show environment and builder state")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Test binary commands (inside the environment):")
	fmt.Fprintln(w, "  test                Run registered UI tests")
	fmt.Fprintln(w, "  list                List registered UI tests")
	fmt.Fprintln(w, "  workarea            Print the work area of every monitor")
	fmt.Fprintln(w, "  approve             Promote an unconfirmed snapshot to a baseline")
	fmt.Fprintln(w, "  ready               Wait until the display accepts input")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  fixtures list       List panel fixtures and their expected work areas")
	fmt.Fprintln(w, "  oracle              Print the expected work area for a fixture")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'deskrig <command> --help' for command-specific options.")
}

// commonFlags are accepted by every command that reads the configuration.
type commonFlags struct {
	config  *string
	verbose *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:  fs.String("config", "", "Config file path (default: ./deskrig.yaml, then ~/.config/deskrig/config.yaml)"),
		verbose: fs.Bool("verbose", false, "Log at debug level"),
	}
}

func (f commonFlags) load() (*config.LoadResult, *slog.Logger, error) {
	res, err := config.Load(*f.config)
	if err != nil {
		return nil, nil, runerr.Wrap(err, runerr.KindConfig, "load config")
	}
	if *f.verbose {
		res.Config.Logging.Level = "debug"
	}
	return res, res.Config.Logger(stderr), nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// parseFlags parses args and maps -h to exit 0 and other errors to usage.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return runerr.ExitOK, false
		}
		return runerr.ExitUsage, false
	}
	return 0, true
}

func fail(err error) int {
	fmt.Fprintln(stderr, "error:", err)
	return runerr.ExitCode(err)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
