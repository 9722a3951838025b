package main

import (
	"fmt"
	"strings"

	"github.com/duodevices/DeployAgent/internal/fwtool"
	"github.com/spf13/cobra"
)

func backendClient() *fwtool.Client {
	if strings.TrimSpace(rootFwtoolBin) != "" {
		return fwtool.New(rootFwtoolBin)
	}
	return fwtool.NewFromEnv()
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List connected devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := backendClient().ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("no devices connected")
				return nil
			}
			for _, d := range devices {
				mode := "application"
				if d.InBootloader {
					mode = "bootloader"
				}
				fmt.Printf("%s\t%s\t%s\n", d.Path, d.Label, mode)
			}
			return nil
		},
	}
}
