package main

import (
	"fmt"
	"os"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `pesitd - PeSIT-E (Hors-SIT) file-transfer server

Usage:
  pesitd <command> [flags]

Commands:
  init     Interactively create a sample configuration file
  start    Start the PeSIT-E server
  status   Show the configured listeners and recent journal transfers
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/pesitd/config.yaml)

Examples:
  pesitd init
  pesitd start
  pesitd start --config /etc/pesitd/config.yaml
  pesitd status

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: PESITD_<SECTION>_<KEY> (use underscores for nested keys)

  Example:
    PESITD_LOGGING_LEVEL=DEBUG
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "status":
		runStatus()
	case "help", "--help", "-h":
		fmt.Print(usage)
	case "version", "--version", "-v":
		fmt.Printf("pesitd %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}
