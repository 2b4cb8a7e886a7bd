package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/voxbridge/host/internal/config"
	"github.com/voxbridge/host/internal/monitor"
	"github.com/voxbridge/host/internal/session"
)

const monitorUsage = `Usage: voxbridge monitor [options] <conversation-id>

Attaches to a running conversation's event socket and prints each turn as it
happens. Exits when the conversation ends.

Options:
  --config <path>   Config file (default: ~/.voxbridge/config.toml)
`

func runMonitor(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file path")
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, monitorUsage) }
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprint(stderr, monitorUsage)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg.Apply()

	path := monitor.SocketPath(cfg.RunDir, fs.Arg(0))
	conn, err := monitor.Dial(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot attach to %s: %v\n", path, err)
		return 1
	}
	defer conn.Close()

	for {
		var ev session.Event
		if err := conn.ReadJSON(&ev); err != nil {
			// The worker closing the socket is the normal end of stream.
			return 0
		}
		printEvent(stdout, ev)
		if ev.Kind == "ended" {
			return 0
		}
	}
}

func printEvent(w io.Writer, ev session.Event) {
	switch ev.Kind {
	case "began":
		fmt.Fprintf(w, "[%s] call began (result=%s)\n", ev.At.Format("15:04:05"), ev.Result)
	case "ended":
		fmt.Fprintf(w, "[%s] call ended: %s\n", ev.At.Format("15:04:05"), ev.Detail)
	default:
		fmt.Fprintf(w, "[%s] %s %d: %q -> %q\n", ev.At.Format("15:04:05"), ev.Kind, ev.Seq, ev.Detail, ev.Result)
	}
}
