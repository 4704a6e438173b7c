package main

import (
	"flag"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/deskrig/internal/config"
	"github.com/1broseidon/deskrig/internal/runerr"
)

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  deskrig config validate [--config PATH]")
		fmt.Fprintln(stderr, "  deskrig config print [--config PATH] [--defaults]")
		fmt.Fprintln(stderr, "  deskrig config explain [--config PATH] <yaml.path>")
		return runerr.ExitUsage
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		common := addCommonFlags(fs)
		if rc, ok := parseFlags(fs, args[1:]); !ok {
			return rc
		}
		res, _, err := common.load()
		if err != nil {
			return fail(err)
		}
		if res.File == "" {
			fmt.Fprintln(stdout, "config: ok (built-in defaults)")
			return runerr.ExitOK
		}
		fmt.Fprintf(stdout, "config: ok (%s)\n", res.File)
		return runerr.ExitOK

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		common := addCommonFlags(fs)
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if rc, ok := parseFlags(fs, args[1:]); !ok {
			return rc
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, _, err := common.load()
			if err != nil {
				return fail(err)
			}
			cfg = res.Config
			if res.File != "" {
				fmt.Fprintf(stdout, "# file: %s\n", res.File)
			}
		}
		data, err := cfg.Marshal()
		if err != nil {
			return fail(err)
		}
		fmt.Fprint(stdout, string(data))
		return runerr.ExitOK

	case "explain":
		fs := flag.NewFlagSet("explain", flag.ContinueOnError)
		common := addCommonFlags(fs)
		if rc, ok := parseFlags(fs, args[1:]); !ok {
			return rc
		}
		if fs.NArg() < 1 {
			fmt.Fprintln(stderr, "explain requires <yaml.path>")
			return runerr.ExitUsage
		}
		queryPath := fs.Arg(0)

		res, _, err := common.load()
		if err != nil {
			return fail(err)
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			return fail(runerr.Wrap(err, runerr.KindConfig, "explain"))
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(stdout, "path: %s\n", queryPath)
		fmt.Fprintf(stdout, "source: %s\n", src)
		fmt.Fprintf(stdout, "value:\n%s", string(out))
		return runerr.ExitOK

	default:
		fmt.Fprintf(stderr, "Unknown config subcommand: %s\n", args[0])
		return runerr.ExitUsage
	}
}
