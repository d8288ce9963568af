package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/horssit/pesitd/internal/audit"
	"github.com/horssit/pesitd/internal/config"
	"github.com/horssit/pesitd/internal/logger"
	"github.com/horssit/pesitd/internal/metrics"
	promMetrics "github.com/horssit/pesitd/internal/metrics/prometheus"
	"github.com/horssit/pesitd/internal/telemetry"
)

// runStart loads configuration, wires every collaborator, and runs the
// supervisor until a termination signal arrives. Sequencing: logger, then
// telemetry/profiling, then the stores and metrics (buildRuntime), then the
// metrics HTTP endpoint, then the listener supervisor itself.
func runStart() {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/pesitd/config.yaml)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.MustLoad(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("initializing logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceVersion = version
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("initializing telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("initializing profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("pesitd starting", "version", version, "listeners", len(cfg.Listeners))

	rt, closeRuntime, err := buildRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("wiring server: %v", err)
	}
	defer closeRuntime()

	metricsServer := startMetricsServer(cfg.Metrics)
	if metricsServer != nil {
		defer func() {
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	sup, err := config.BuildSupervisor(cfg, rt, rt.Cluster.GetNodeName())
	if err != nil {
		log.Fatalf("building listener supervisor: %v", err)
	}
	if err := sup.Run(ctx); err != nil {
		log.Fatalf("starting listener supervisor: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("server is running, press Ctrl+C to stop")
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received, stopping listeners")
	cancel()

	for _, st := range sup.AllStatuses() {
		if st.Running {
			if err := sup.Stop(context.Background(), st.ServerID); err != nil {
				logger.Warn("stopping listener failed", "server_id", st.ServerID, "error", err)
			}
		}
	}
	logger.Info("server stopped")
}

// buildRuntime constructs the shared collaborators every listener's engine
// depends on, per §10.6. The returned close func releases pooled database
// connections and drains the archival worker pool.
func buildRuntime(ctx context.Context, cfg *config.Config) (*config.Runtime, func(), error) {
	secretsSvc := config.BuildSecrets(cfg.Secrets)

	j, journalClose, err := config.BuildJournal(ctx, cfg.Journal)
	if err != nil {
		return nil, nil, fmt.Errorf("building journal: %w", err)
	}
	partners, err := config.BuildPartnerStore(cfg.Partners, secretsSvc)
	if err != nil {
		return nil, nil, fmt.Errorf("building partner store: %w", err)
	}
	logicalFiles, err := config.BuildLogicalFileStore(cfg.LogicalFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("building logical file store: %w", err)
	}
	archiver, err := config.BuildArchiver(ctx, cfg.Archival, secretsSvc)
	if err != nil {
		return nil, nil, fmt.Errorf("building archival sink: %w", err)
	}
	clusterProvider, err := config.BuildCluster(cfg.Cluster, hostNodeID())
	if err != nil {
		return nil, nil, fmt.Errorf("building cluster provider: %w", err)
	}

	var m metrics.Metrics
	if cfg.Metrics.Enabled {
		// Registered on the default registry, which is what
		// promhttp.Handler serves on /metrics.
		m = promMetrics.New(prometheus.DefaultRegisterer.(*prometheus.Registry))
	}

	rt := &config.Runtime{
		Journal:      j,
		JournalClose: journalClose,
		Partners:     partners,
		LogicalFiles: logicalFiles,
		Secrets:      secretsSvc,
		Archival:     archiver,
		Cluster:      clusterProvider,
		Metrics:      m,
		Audit:        audit.New(),
	}

	closeFn := func() {
		if archiver != nil {
			archiver.Close()
		}
		if journalClose != nil {
			if err := journalClose(); err != nil {
				logger.Warn("closing journal failed", "error", err)
			}
		}
	}
	return rt, closeFn, nil
}

func startMetricsServer(cfg config.MetricsConfig) *http.Server {
	if !cfg.Enabled {
		logger.Info("metrics collection disabled")
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Address, cfg.Port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics server listening", "address", cfg.Address, "port", cfg.Port)
	return srv
}

func hostNodeID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "pesitd"
}
