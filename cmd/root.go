// Package cmd is the coach command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bosley/coach/config"
	"github.com/bosley/coach/persona"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// TokenEnv holds the shared secret of the ingest transport.
const TokenEnv = "COACH_TOKEN"

var (
	configPath string
	verbose    bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "coach",
	Short: "Real-time conversation coaching",
	Long: `coach scores a live two-party sales conversation: an energy score from the
rep's voice, a sentiment score from the transcript, the phase of the
conversation and how a simulated counterpart is reacting.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initializeLogger()

		if err := godotenv.Load(); err != nil {
			slog.Debug("failed to load .env file", "error", err)
		} else {
			slog.Debug("successfully loaded .env file")
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default $"+config.EnvPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func initializeLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			slog.Debug("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// loadCatalog opens the persona catalog and, when configured, watches its directory
// until ctx is done.
func loadCatalog(ctx context.Context) (*persona.Catalog, error) {
	catalog, err := persona.NewCatalog(cfg.Personas.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load personas: %w", err)
	}

	if cfg.Personas.Watch && cfg.Personas.Dir != "" {
		go func() {
			if err := catalog.Watch(ctx); err != nil {
				slog.Error("Persona watcher stopped", "error", err, "dir", cfg.Personas.Dir)
			}
		}()
	}
	return catalog, nil
}

func requireToken() (string, error) {
	token := os.Getenv(TokenEnv)
	if token == "" {
		return "", fmt.Errorf("%s environment variable is not set", TokenEnv)
	}
	return token, nil
}
