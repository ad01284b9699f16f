// Command livevoice holds a real-time voice conversation with a Gemini Live
// model through the default microphone and speaker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/livevoice/logger"
)

var rootCmd = &cobra.Command{
	Use:           "livevoice",
	Short:         "Talk to a live voice assistant from the terminal",
	Version:       GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `livevoice streams microphone audio to a Gemini Live session, plays the
synthesized reply as it arrives and prints a running transcript of both
sides of the conversation.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return
			}
			logger.SetVerbose(verbose)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

func setupVersion() {
	rootCmd.SetVersionTemplate(GetVersionInfo() + "\n")
}

// Execute runs the root command.
func Execute() {
	setupVersion()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
