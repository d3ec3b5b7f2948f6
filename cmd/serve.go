package cmd

import (
	"fmt"
	"log/slog"

	"github.com/bosley/coach/hub"
	libaserv "github.com/bosley/coach/server"
	"github.com/bosley/coach/session"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveHTTPAddr  string
	serveCertFile  string
	serveKeyFile   string
	serveRecordDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audio ingest server and the HTTP API",
	Long: `serve accepts streaming clients over TLS, runs a coaching session for each
connection and exposes every session over the HTTP API, where transcript lines
and turns are posted and score updates are pushed over websockets.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Ingest listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "HTTP API listen address (overrides hub.addr)")
	serveCmd.Flags().StringVar(&serveCertFile, "cert", "", "Path to server certificate file")
	serveCmd.Flags().StringVar(&serveKeyFile, "key", "", "Path to server key file")
	serveCmd.Flags().StringVar(&serveRecordDir, "record-dir", "", "Record received audio under this directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}

	override(&cfg.Server.Addr, serveAddr)
	override(&cfg.Hub.Addr, serveHTTPAddr)
	override(&cfg.Server.CertFile, serveCertFile)
	override(&cfg.Server.KeyFile, serveKeyFile)
	override(&cfg.Server.RecordDir, serveRecordDir)

	if cfg.Server.CertFile == "" || cfg.Server.KeyFile == "" {
		return fmt.Errorf("server certificate and key files must be provided")
	}

	ctx, cancel := signalContext()
	defer cancel()

	catalog, err := loadCatalog(ctx)
	if err != nil {
		return err
	}

	registry := session.NewRegistry()
	h := hub.New(registry, catalog, cfg.Session)
	srv := libaserv.New(cfg.Server, token, cfg.Session, catalog, registry, h)

	errCh := make(chan error, 2)
	go func() { errCh <- h.Run(ctx, cfg.Hub) }()
	go func() { errCh <- srv.Launch(ctx) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	registry.StopAll()
	slog.Debug("Program exiting")
	return firstErr
}

func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}
