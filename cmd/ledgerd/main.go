package main

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/cuemby/ledgerd/pkg/canon"
	"github.com/cuemby/ledgerd/pkg/cert"
	"github.com/cuemby/ledgerd/pkg/config"
	"github.com/cuemby/ledgerd/pkg/events"
	"github.com/cuemby/ledgerd/pkg/eventloop"
	"github.com/cuemby/ledgerd/pkg/log"
	"github.com/cuemby/ledgerd/pkg/metrics"
	"github.com/cuemby/ledgerd/pkg/supervisor"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerd",
	Short: "ledgerd - capability-gated data service for a blockchain agent",
	Long: `ledgerd is the single-writer data service that owns the
canonical chain state: blocks, canonized transactions, the pending
transaction queue, and per-artifact summaries, all behind a framed
request/response protocol reached through capability-scoped child
contexts.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ledgerd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("config", "", "Path to a YAML config file")
	rootCmd.Flags().String("data-dir", "", "Environment directory (overrides config)")
	rootCmd.Flags().String("socket", "", "Unix socket path to listen on (overrides config; ignored with --inherit-fds)")
	rootCmd.Flags().Bool("inherit-fds", false, "Serve on the data socket inherited at fd 3 instead of binding --socket")
	rootCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on (overrides config; disabled if both are empty)")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if socket, _ := cmd.Flags().GetString("socket"); socket != "" {
		cfg.DataSocketPath = socket
	}

	listener, err := bindListener(cmd, cfg)
	if err != nil {
		return err
	}
	defer listener.Close()

	metrics.SetVersion(Version)
	metricsAddr := cfg.MetricsAddr
	if flagAddr, _ := cmd.Flags().GetString("metrics-addr"); flagAddr != "" {
		metricsAddr = flagAddr
	}
	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	canonizer := canon.New(cert.DefaultParser{})
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	log.Logger.Info().
		Str("data_dir", cfg.DataDir).
		Str("listener", listener.Addr().String()).
		Msg("ledgerd starting")

	metrics.SetComponentHealth("storage", true, "environment directory ready")
	metrics.SetComponentHealth("eventloop", true, "serving "+listener.Addr().String())

	loop := eventloop.New(listener, cfg.DataDir, canonizer, broker)
	err = loop.Run()
	metrics.SetComponentHealth("eventloop", false, "stopped")
	return err
}

func bindListener(cmd *cobra.Command, cfg *config.Config) (net.Listener, error) {
	if inherit, _ := cmd.Flags().GetBool("inherit-fds"); inherit {
		sockets := supervisor.ConnectFDs()
		return sockets.DataListener()
	}

	if cfg.DataSocketPath == "" {
		return nil, fmt.Errorf("no data socket path configured; set dataSocketPath or pass --socket")
	}
	_ = os.Remove(cfg.DataSocketPath)
	listener, err := net.Listen("unix", cfg.DataSocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to bind data socket %s: %v", cfg.DataSocketPath, err)
	}
	return listener, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Logger.Warn().Err(err).Msg("metrics server exited")
	}
}
