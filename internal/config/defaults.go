package config

import (
	"time"

	"github.com/horssit/pesitd/internal/telemetry"
)

// DefaultConfig returns a Config with every section defaulted but zero
// listeners and zero partner/logical-file seeds — a deployment must still
// name at least one listener.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills any unspecified configuration fields with sensible
// defaults, mirroring the teacher's one-applyXDefaults-per-section
// dispatcher shape.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyListenerDefaults(cfg.Listeners)
	applyJournalDefaults(&cfg.Journal)
	applyPartnerDefaults(&cfg.Partners)
	applyLogicalFileDefaults(&cfg.LogicalFiles)
	applyClusterDefaults(&cfg.Cluster)
	applyArchivalDefaults(&cfg.Archival)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *telemetry.Config) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pesitd"
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 9464
	}
}

// applyListenerDefaults fills per-listener maintenance-timer defaults. It
// never invents a ServerID, Port, or ReceiveDirectory — those have no safe
// default and are caught by Validate instead.
func applyListenerDefaults(listeners []ListenerConfig) {
	for i := range listeners {
		l := &listeners[i]
		if l.BindAddress == "" {
			l.BindAddress = "0.0.0.0"
		}
		if l.ProtocolVersion == 0 {
			l.ProtocolVersion = 2
		}
		if l.MaxConnections == 0 {
			l.MaxConnections = 64
		}
		if l.ConnectionTimeout == 0 {
			l.ConnectionTimeout = 30 * time.Second
		}
		if l.ReadTimeout == 0 {
			l.ReadTimeout = 5 * time.Minute
		}
		if l.MaxEntitySize == 0 {
			l.MaxEntitySize = 64 * 1024 * 1024
		}
		if l.SyncIntervalKB == 0 {
			l.SyncIntervalKB = 1024
		}
		if l.GCInterval == 0 {
			l.GCInterval = 10 * time.Minute
		}
		if l.GCRetention == 0 {
			l.GCRetention = 7 * 24 * time.Hour
		}
		if l.StaleSessionInterval == 0 {
			l.StaleSessionInterval = time.Minute
		}
		if l.StaleSessionTimeout == 0 {
			l.StaleSessionTimeout = l.ReadTimeout * 2
		}
		if l.DrainTimeout == 0 {
			l.DrainTimeout = 5 * time.Second
		}
	}
}

func applyJournalDefaults(cfg *JournalConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 10
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Badger.Dir == "" {
		cfg.Badger.Dir = "/var/lib/pesitd/journal"
	}
}

func applyPartnerDefaults(cfg *PartnerStoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
}

func applyLogicalFileDefaults(cfg *LogicalFileStoreConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
}

func applyClusterDefaults(cfg *ClusterConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "standalone"
	}
}

func applyArchivalDefaults(cfg *ArchivalConfig) {
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 4
	}
}
