package main

import (
	"os"

	"github.com/duodevices/DeployAgent/internal/env"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deployagent",
	Short: "Firmware deployment and device configuration for paired devices",
	Long:  `deployagent coordinates firmware deployment and therapy configuration across one or two physically connected devices, running the destructive per-device sequence (erase, transfer, configure, rename) through the external fwtool backend.`,
}

var rootFwtoolBin string

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootFwtoolBin, "fwtool", "", "fwtool binary path, overrides FWTOOL_BIN")
	rootCmd.AddCommand(
		newDevicesCmd(),
		newUpdateCmd(),
		newConfigureCmd(),
		newHistoryCmd(),
	)
	_ = env.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("deployagent command failed")
	}
}
