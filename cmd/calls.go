package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/voxbridge/host/internal/config"
	"github.com/voxbridge/host/internal/storage"
)

const callsUsage = `Usage: voxbridge calls [options]

Lists recorded calls, newest first.

Options:
  --config <path>   Config file (default: ~/.voxbridge/config.toml)
  --db <path>       Call database path (overrides config)
  --limit <n>       Maximum rows to show (default: 20)
`

func runCalls(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("calls", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file path")
	dbPath := fs.String("db", "", "Call database path")
	limit := fs.Int("limit", 20, "Maximum rows to show")
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, callsUsage) }
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg.Apply()

	path := cfg.CallDB
	if *dbPath != "" {
		path = *dbPath
	}
	if path == "" {
		fmt.Fprintln(stderr, "Error: no call database configured")
		return 1
	}

	store, err := storage.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	calls, err := store.ListCalls(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(calls) == 0 {
		fmt.Fprintln(stdout, "No calls recorded.")
		return 0
	}

	for _, c := range calls {
		fmt.Fprintln(stdout, c.String())
	}
	return 0
}
