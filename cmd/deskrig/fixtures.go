package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/1broseidon/deskrig/internal/fixtures"
	"github.com/1broseidon/deskrig/internal/runerr"
)

func printFixturesUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: deskrig fixtures list [--config PATH]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "List panel fixtures with the work area each produces on the configured monitor.")
}

func runFixtures(args []string) int {
	if len(args) == 0 {
		printFixturesUsage(stderr)
		return runerr.ExitUsage
	}
	switch args[0] {
	case "list":
	case "help", "-h", "--help":
		printFixturesUsage(stdout)
		return runerr.ExitOK
	default:
		fmt.Fprintf(stderr, "Unknown fixtures command: %s\n\n", args[0])
		printFixturesUsage(stderr)
		return runerr.ExitUsage
	}

	fs := flag.NewFlagSet("fixtures list", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if rc, ok := parseFlags(fs, args[1:]); !ok {
		return rc
	}
	res, _, err := common.load()
	if err != nil {
		return fail(err)
	}
	cfg := res.Config
	root := cfg.Path(cfg.FixturesDir)

	names, err := fixtures.List(root)
	if err != nil {
		return fail(runerr.Wrap(err, runerr.KindConfig, "list fixtures"))
	}
	if len(names) == 0 {
		fmt.Fprintf(stdout, "no fixtures in %s\n", root)
		return runerr.ExitOK
	}
	rc := runerr.ExitOK
	for _, name := range names {
		fx, err := fixtures.Load(root, name)
		if err != nil {
			fmt.Fprintf(stdout, "%-24s error: %v\n", name, err)
			rc = runerr.ExitFailed
			continue
		}
		line, err := fx.Oracle(cfg.Monitor)
		if err != nil {
			fmt.Fprintf(stdout, "%-24s error: %v\n", name, err)
			rc = runerr.ExitFailed
			continue
		}
		fmt.Fprintf(stdout, "%-24s %s\n", name, line)
	}
	return rc
}

func runOracle(args []string) int {
	fs := flag.NewFlagSet("oracle", flag.ContinueOnError)
	common := addCommonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: deskrig oracle [--config PATH] <fixture>")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Print the `deskrig workarea` line a geometry check expects for a fixture.")
	}
	if rc, ok := parseFlags(fs, args); !ok {
		return rc
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return runerr.ExitUsage
	}
	res, _, err := common.load()
	if err != nil {
		return fail(err)
	}
	cfg := res.Config
	fx, err := fixtures.Load(cfg.Path(cfg.FixturesDir), fs.Arg(0))
	if err != nil {
		return fail(runerr.Wrap(err, runerr.KindConfig, "load fixture"))
	}
	line, err := fx.Oracle(cfg.Monitor)
	if err != nil {
		return fail(runerr.Wrap(err, runerr.KindConfig, "compute work area"))
	}
	fmt.Fprintln(stdout, line)
	return runerr.ExitOK
}
