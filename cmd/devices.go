package cmd

import (
	"fmt"

	libascli "github.com/bosley/coach/client"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio input devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := libascli.ListAudioDevices()
		if err != nil {
			return fmt.Errorf("failed to list audio devices: %w", err)
		}

		fmt.Println("Available audio input devices:")
		for _, device := range devices {
			fmt.Printf("[%d] %s\n", device.Index, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
