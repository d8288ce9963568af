package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/horssit/pesitd/internal/cli/output"
	"github.com/horssit/pesitd/internal/config"
	"github.com/horssit/pesitd/internal/journal"
)

// runStatus renders the configured listeners and the journal's most recent
// transfers. There is no admin network API (out of scope per §1), so this
// reads the same configuration and journal backend a running server does
// rather than querying a live process.
func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/pesitd/config.yaml)")
	limit := fs.Int("limit", 20, "Number of recent transfers to show")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.MustLoad(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Listeners:")
	listenerRows := output.NewListenerRows("SERVER ID", "BIND", "PORT", "RECEIVE DIR", "AUTO START")
	for _, lc := range cfg.Listeners {
		autoStart := "no"
		if lc.AutoStart {
			autoStart = "yes"
		}
		listenerRows.AddRow(lc.ServerID, lc.BindAddress, fmt.Sprintf("%d", lc.Port), lc.ReceiveDirectory, autoStart)
	}
	_ = output.PrintTable(os.Stdout, listenerRows)

	ctx := context.Background()
	j, closeJournal, err := config.BuildJournal(ctx, cfg.Journal)
	if err != nil {
		log.Fatalf("opening journal: %v", err)
	}
	if closeJournal != nil {
		defer func() { _ = closeJournal() }()
	}

	records, err := j.List(ctx, journal.ListFilter{Limit: *limit})
	if err != nil {
		log.Fatalf("listing transfers: %v", err)
	}

	fmt.Println("\nRecent transfers:")
	transferRows := output.NewListenerRows("TRANSFER ID", "SERVER ID", "PARTNER", "FILE", "DIRECTION", "STATUS", "BYTES")
	for _, r := range records {
		transferRows.AddRow(r.ID, r.ServerID, r.PartnerID, r.FileName, string(r.Direction), string(r.Status), fmt.Sprintf("%d", r.BytesTransferred))
	}
	_ = output.PrintTable(os.Stdout, transferRows)
}
