package main

import (
	"fmt"
	"net"
	"os"

	"github.com/cuemby/ledgerd/pkg/eventloop"
	"github.com/cuemby/ledgerd/pkg/log"
	"github.com/cuemby/ledgerd/pkg/randomservice"
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
	Use:   "randomd",
	Short: "randomd - companion random-bytes service",
	Long: `randomd is a trivial single-method service that answers
get_random_bytes requests over the same framed protocol and event loop
ledgerd uses, demonstrating that the pattern is not specific to the
data service.`,
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"randomd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("socket", "./randomd.sock", "Unix socket path to listen on")
	rootCmd.Flags().String("source", "/dev/urandom", "Path to the byte source read for every request")
	rootCmd.Flags().Bool("inherit-fds", false, "Serve on the socket inherited at fd 3 instead of binding --socket")

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
	sourcePath, _ := cmd.Flags().GetString("source")
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open byte source %s: %v", sourcePath, err)
	}
	defer source.Close()

	listener, err := bindListener(cmd)
	if err != nil {
		return err
	}
	defer listener.Close()

	svc := randomservice.New(source)
	loop := eventloop.NewWithHandler(listener, func() (eventloop.Handler, func()) {
		return svc.Dispatch, func() {}
	})

	log.Logger.Info().Str("listener", listener.Addr().String()).Msg("randomd starting")
	return loop.Run()
}

func bindListener(cmd *cobra.Command) (net.Listener, error) {
	if inherit, _ := cmd.Flags().GetBool("inherit-fds"); inherit {
		sockets := supervisor.ConnectFDs()
		return sockets.DataListener()
	}

	socketPath, _ := cmd.Flags().GetString("socket")
	_ = os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to bind socket %s: %v", socketPath, err)
	}
	return listener, nil
}
