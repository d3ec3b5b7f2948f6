package cmd

import (
	"fmt"
	"log/slog"

	libascli "github.com/bosley/coach/client"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	streamServer   string
	streamInsecure bool
	streamCertFile string
	streamDevice   int
	streamPersona  string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream the microphone to a coaching server",
	RunE:  runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().StringVarP(&streamServer, "server", "s", "", "Server address host:port (overrides client.server)")
	streamCmd.Flags().BoolVar(&streamInsecure, "insecure", false, "Skip certificate verification")
	streamCmd.Flags().StringVar(&streamCertFile, "cert", "", "Path to server certificate file")
	streamCmd.Flags().IntVarP(&streamDevice, "device", "d", 0, "Audio input device ID to use")
	streamCmd.Flags().StringVarP(&streamPersona, "persona", "p", "", "Persona to practice against")
}

func runStream(cmd *cobra.Command, args []string) error {
	token, err := requireToken()
	if err != nil {
		return err
	}

	c := cfg.Client
	override(&c.Server, streamServer)
	override(&c.CertFile, streamCertFile)
	override(&c.Persona, streamPersona)
	if cmd.Flags().Changed("insecure") {
		c.Insecure = streamInsecure
	}
	if cmd.Flags().Changed("device") {
		c.DeviceID = streamDevice
	}

	if !c.Insecure && c.CertFile == "" {
		return fmt.Errorf("server certificate file must be provided when not in insecure mode")
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = libascli.Stream(ctx, libascli.StreamConfig{
		ServerAddr: c.Server,
		Insecure:   c.Insecure,
		CertFile:   c.CertFile,
		DeviceID:   c.DeviceID,
		PersonaID:  c.Persona,
		Token:      token,
	}, func(id uuid.UUID) {
		fmt.Printf("Session %s\n", id)
	})

	slog.Debug("Program exiting")
	return err
}
