package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
	utilexec "k8s.io/utils/exec"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/devzero-inc/rbd-label-exporter/internal/cephcli"
	"github.com/devzero-inc/rbd-label-exporter/internal/exporter"
	"github.com/devzero-inc/rbd-label-exporter/internal/metrics"
	"github.com/devzero-inc/rbd-label-exporter/internal/rbd"
	"github.com/devzero-inc/rbd-label-exporter/internal/refresher"
	"github.com/devzero-inc/rbd-label-exporter/internal/snapshot"
	"github.com/devzero-inc/rbd-label-exporter/internal/util"
	"github.com/devzero-inc/rbd-label-exporter/internal/version"
)

var defaults = util.DefaultConfig()

var (
	listenAddress      = flag.String("listen-address", defaults.ListenAddress, "The address the metric endpoint binds to.")
	refreshInterval    = flag.Duration("refresh-interval", defaults.RefreshInterval, "Interval between image metadata refreshes.")
	commandTimeout     = flag.Duration("command-timeout", defaults.CommandTimeout, "Timeout for a single ceph/rbd invocation, 0 disables it.")
	missingLabelPolicy = flag.String("missing-label-policy", defaults.MissingLabelPolicy, "What to do with images lacking an expected label: 'empty' or 'skip'.")
	poolApplications   = flag.String("pool-applications", strings.Join(defaults.PoolApplications, ","), "Comma-separated pool applications whose images are exported.")
	cephBinary         = flag.String("ceph-binary", defaults.CephBinary, "Path to the ceph CLI.")
	rbdBinary          = flag.String("rbd-binary", defaults.RBDBinary, "Path to the rbd CLI.")
	logLevel           = flag.String("log-level", defaults.LogLevel, "Log level: debug, info, warn or error.")
	logFile            = flag.String("log-file", defaults.LogFile, "Write logs to this file instead of stderr.")
)

func main() {
	flag.Parse()

	cfg := util.Config{
		ListenAddress:      *listenAddress,
		RefreshInterval:    *refreshInterval,
		CommandTimeout:     *commandTimeout,
		MissingLabelPolicy: *missingLabelPolicy,
		PoolApplications:   util.ParseCommaList(*poolApplications),
		CephBinary:         *cephBinary,
		RBDBinary:          *rbdBinary,
		LogLevel:           *logLevel,
		LogFile:            *logFile,
	}

	// Bootstrap logger for reading the environment, replaced once the
	// final level and output are known
	bootLog, _ := zap.NewProduction()
	cfg = util.LoadEnvConfig(zapr.NewLogger(bootLog)).MergeInto(cfg)

	zapLog, err := util.NewZapLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()
	ctrl.SetLogger(zapr.NewLogger(zapLog))
	logger := util.NewLogger("rbd-label-exporter")

	if err := cfg.Validate(); err != nil {
		logger.Error(err, "Invalid configuration")
		os.Exit(1)
	}
	policy, err := exporter.ParseMissingLabelPolicy(cfg.MissingLabelPolicy)
	if err != nil {
		logger.Error(err, "Invalid configuration")
		os.Exit(1)
	}

	info := version.Get()
	logger.Info("Starting rbd-label-exporter",
		"version", info.String(),
		"commit", info.GitCommit,
		"listenAddress", cfg.ListenAddress,
		"refreshInterval", cfg.RefreshInterval,
		"poolApplications", cfg.PoolApplications,
		"missingLabelPolicy", policy)

	// 1. Registry and self-metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		version.NewCollector(metrics.Namespace),
	)
	m := metrics.NewMetrics(metrics.Namespace, registry)

	// 2. Cluster CLI access
	runner := cephcli.NewRunner(utilexec.New(), util.NewLogger("cephcli"), cfg.CommandTimeout, m)
	fetcher := rbd.NewFetcher(rbd.Config{
		CephBinary:   cfg.CephBinary,
		RBDBinary:    cfg.RBDBinary,
		Applications: cfg.PoolApplications,
	}, runner, util.NewLogger("fetcher"), m)

	// 3. Snapshot shared between the refresh loop and scrapes
	clk := clock.RealClock{}
	store := snapshot.NewStore(clk, util.NewLogger("snapshot"))
	registry.MustRegister(exporter.NewCollector(store, exporter.DefaultLabelSchema, policy, util.NewLogger("collector"), m))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Refresh loop in background
	loop := refresher.NewRefresher(cfg.RefreshInterval, clk, fetcher, store, util.NewLogger("refresher"), m)
	go loop.Run(ctx)

	// HTTP Server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(zapLog),
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "HTTP server failed")
			os.Exit(1)
		}
	}()

	// Signal handling
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "HTTP server shutdown failed")
	}
	logger.Info("Exporter shutdown")
}
