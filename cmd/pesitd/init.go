package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/horssit/pesitd/internal/bytesize"
	"github.com/horssit/pesitd/internal/cli/prompt"
	"github.com/horssit/pesitd/internal/config"
)

// runInit interactively builds a sample configuration document and writes
// it to disk, the way the teacher's `dittofs init` does for its own config
// format.
func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/pesitd/config.yaml)")
	force := fs.Bool("force", false, "Overwrite an existing config file without prompting")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	path := *configFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !*force {
		overwrite, err := prompt.Confirm(fmt.Sprintf("Configuration already exists at %s, overwrite", path), false)
		if err != nil {
			log.Fatalf("prompt: %v", err)
		}
		if !overwrite {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()

	serverID, err := prompt.InputRequired("Server ID (PeSIT partner name for this node, max 8 chars)")
	if err != nil {
		log.Fatalf("prompt: %v", err)
	}
	port, err := prompt.InputPort("Listening port", 6219)
	if err != nil {
		log.Fatalf("prompt: %v", err)
	}
	receiveDir, err := prompt.InputRequired("Directory to receive incoming files into")
	if err != nil {
		log.Fatalf("prompt: %v", err)
	}
	sendDir, err := prompt.Input("Directory to serve outgoing files from", receiveDir)
	if err != nil {
		log.Fatalf("prompt: %v", err)
	}
	journalBackend, err := prompt.SelectString("Transfer journal backend", []string{"memory", "badger", "postgres"})
	if err != nil {
		log.Fatalf("prompt: %v", err)
	}
	clusterMode, err := prompt.SelectString("Cluster mode", []string{"standalone", "raft"})
	if err != nil {
		log.Fatalf("prompt: %v", err)
	}

	cfg.Listeners = []config.ListenerConfig{{
		ServerID:         strings.ToUpper(serverID),
		Port:             port,
		ReceiveDirectory: receiveDir,
		SendDirectory:    sendDir,
		MaxEntitySize:    bytesize.ByteSize(64 * 1024 * 1024),
		AutoStart:        true,
	}}
	cfg.Journal.Backend = journalBackend
	cfg.Cluster.Mode = clusterMode
	config.ApplyDefaults(cfg)

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("generated configuration failed validation: %v", err)
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		log.Fatalf("writing configuration: %v", err)
	}

	fmt.Printf("Configuration written to: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review and adjust the generated file (partners, logical files, secrets)")
	fmt.Printf("  2. Start the server: pesitd start --config %s\n", path)
}
