package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/passd/pkg/config"
	"github.com/cuemby/passd/pkg/keymanager"
	"github.com/cuemby/passd/pkg/log"
	"github.com/cuemby/passd/pkg/rpcserver"
	"github.com/cuemby/passd/pkg/vault"
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
	Use:     "passd",
	Short:   "passd - a single-binary encrypted secret vault daemon",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"passd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "minimum severity to emit: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit structured JSON log lines instead of a console-formatted stream")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(diagnoseCmd)
}

// initLogging resolves log level and format from flags, falling back to
// PASSD_LOG_LEVEL/PASSD_LOG_JSON when the corresponding flag was left at
// its default — so a systemd unit or container can configure logging
// purely through the environment, the same way config.Load resolves
// PASSD_CONFIG_DIR.
func initLogging() {
	flags := rootCmd.PersistentFlags()

	logLevel := flags.Changed("log-level")
	level, _ := flags.GetString("log-level")
	if !logLevel {
		if env := os.Getenv("PASSD_LOG_LEVEL"); env != "" {
			level = env
		}
	}

	logJSON, _ := flags.GetBool("log-json")
	if !flags.Changed("log-json") && os.Getenv("PASSD_LOG_JSON") == "1" {
		logJSON = true
	}

	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the passd daemon, serving the JSON-RPC vault API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		km := keymanager.New(cfg.KeysDir, cfg.PublicKeyPath, cfg.PrivateKeyPath)
		server := rpcserver.New(&cfg, km)

		addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(addr)
		}()

		fmt.Println("passd is running. Press Ctrl+C to stop.")
		fmt.Printf("JSON-RPC API listening on %s\n", addr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			return fmt.Errorf("rpc server stopped unexpectedly: %w", err)
		}

		return nil
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Audit the vault's on-disk invariants and print any issues found",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		km := keymanager.New(cfg.KeysDir, cfg.PublicKeyPath, cfg.PrivateKeyPath)
		results := vault.Diagnose(&cfg, km)
		if len(results) == 0 {
			fmt.Println("no issues found")
			return nil
		}
		for _, r := range results {
			fmt.Printf("[%s] %s: %s (%s)\n", r.Severity, r.Issue, r.Message, r.Path)
		}
		return fmt.Errorf("%d issue(s) found", len(results))
	},
}
