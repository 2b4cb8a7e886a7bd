package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `voxbridge - CGI front end bridging voice-markup clients to detached conversation workers

Usage:
  voxbridge <command> [options]

Commands:
  serve         Handle one CGI invocation (spawn, relay, or serve a conversation)
  calls         List recorded calls
  monitor <id>  Tail the live event stream of a running conversation

Run 'voxbridge <command> --help' for more information on a command.

When invoked by a web server as a CGI program with no arguments, voxbridge
behaves as if 'serve' were given.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// CGI servers exec the binary with no arguments; that is the whole
	// point of the program, so it maps to serve rather than usage text.
	if len(args) < 2 {
		if os.Getenv("GATEWAY_INTERFACE") != "" || os.Getenv("REQUEST_METHOD") != "" {
			return runServe(nil, stdout, stderr)
		}
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "calls":
		return runCalls(args[2:], stdout, stderr)
	case "monitor":
		return runMonitor(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "voxbridge %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
