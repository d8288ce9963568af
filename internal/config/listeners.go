package config

import (
	"github.com/horssit/pesitd/internal/audit"
	"github.com/horssit/pesitd/internal/cluster"
	"github.com/horssit/pesitd/internal/fileio"
	"github.com/horssit/pesitd/internal/journal"
	"github.com/horssit/pesitd/internal/listener"
	"github.com/horssit/pesitd/internal/logicalfile"
	"github.com/horssit/pesitd/internal/metrics"
	"github.com/horssit/pesitd/internal/partner"
	"github.com/horssit/pesitd/internal/pesit/engine"
	"github.com/horssit/pesitd/internal/pesit/handlers"
	"github.com/horssit/pesitd/internal/secrets"
	"github.com/horssit/pesitd/internal/transport"
)

// BuildListenerConfig translates one configured listener into the
// transport/maintenance-timer shape internal/listener runs.
func BuildListenerConfig(lc ListenerConfig, nodeID string) listener.Config {
	return listener.Config{
		ServerID:  lc.ServerID,
		NodeID:    nodeID,
		AutoStart: lc.AutoStart,

		ReceiveDir: lc.ReceiveDirectory,
		SendDir:    lc.SendDirectory,

		Transport: transport.Config{
			BindAddress:            lc.BindAddress,
			Port:                   lc.Port,
			ConnectionTimeout:      lc.ConnectionTimeout,
			ReadTimeout:            lc.ReadTimeout,
			TLS:                    buildTLSConfig(lc.TLS),
			HandshakeFilterEnabled: lc.EBCDICFilter,
		},

		DrainTimeout: lc.DrainTimeout,

		GCInterval:  lc.GCInterval,
		GCRetention: lc.GCRetention,

		StaleSessionInterval: lc.StaleSessionInterval,
		StaleSessionTimeout:  lc.StaleSessionTimeout,
	}
}

func buildTLSConfig(tc *TLSConfig) *transport.TLSConfig {
	if tc == nil {
		return nil
	}
	return &transport.TLSConfig{
		CertFile:     tc.CertFile,
		KeyFile:      tc.KeyFile,
		ClientAuth:   tc.ClientAuth,
		ClientCAFile: tc.ClientCAFile,
	}
}

// BuildPolicy translates one configured listener into the handler-facing
// policy its sessions enforce.
func BuildPolicy(lc ListenerConfig) handlers.Policy {
	return handlers.Policy{
		ServerID:        lc.ServerID,
		ProtocolVersion: lc.ProtocolVersion,
		MaxEntitySize:   int64(lc.MaxEntitySize),
		SyncIntervalKB:  uint32(lc.SyncIntervalKB),
		ReceiveDir:      lc.ReceiveDirectory,
		SendDir:         lc.SendDirectory,
	}
}

// Runtime bundles the collaborators built once at startup and shared by
// every listener's engine.
type Runtime struct {
	Journal      journal.Journal
	JournalClose func() error
	Partners     partner.Store
	LogicalFiles logicalfile.Store
	Secrets      *secrets.Service
	Archival     *fileio.Archiver
	Cluster      cluster.Provider
	Metrics      metrics.Metrics
	Audit        *audit.Sink
}

// BuildSupervisor constructs a listener.Supervisor and registers every
// configured listener against it, wiring each one to its own *engine.Engine.
func BuildSupervisor(cfg *Config, rt *Runtime, nodeID string) (*listener.Supervisor, error) {
	sup := listener.NewSupervisor(rt.Cluster, rt.Journal, rt.Metrics, nodeID, nil)

	for _, lc := range cfg.Listeners {
		deps := &handlers.Deps{
			Policy:       BuildPolicy(lc),
			Partners:     rt.Partners,
			LogicalFiles: rt.LogicalFiles,
			Secrets:      rt.Secrets,
			Journal:      rt.Journal,
			Audit:        rt.Audit,
			Metrics:      rt.Metrics,
			Archival:     rt.Archival,
			Paths:        handlers.NewPathRegistry(),
			Files:        handlers.NewFileHandles(),
		}
		eng := engine.New(deps)
		lcfg := BuildListenerConfig(lc, nodeID)
		if err := sup.CreateWithHandler(lcfg, eng.Handle); err != nil {
			return nil, err
		}
	}
	return sup, nil
}
