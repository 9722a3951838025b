package main

import (
	"fmt"
	"time"

	"github.com/duodevices/DeployAgent/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent deployment batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open()
			if err != nil {
				return err
			}
			defer store.Close()

			batches, err := store.RecentBatches(cmd.Context(), flagLimit)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Println("no recorded deployments")
				return nil
			}
			for _, batch := range batches {
				status := "ok"
				if !batch.Success {
					status = "FAILED"
				}
				fmt.Printf("%s  %-8s v%-12s %d device(s)  %s\n",
					batch.StartedAt.Local().Format(time.DateTime),
					status,
					batch.FirmwareVersion,
					batch.DeviceCount,
					batch.Message,
				)
				outcomes, err := store.DeviceOutcomes(cmd.Context(), batch.ID)
				if err != nil {
					return err
				}
				for _, outcome := range outcomes {
					if outcome.Success {
						fmt.Printf("    %s (%s): ok\n", outcome.DevicePath, outcome.Role)
						continue
					}
					fmt.Printf("    %s (%s): %s\n", outcome.DevicePath, outcome.Role, outcome.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", 10, "maximum number of batches to show")
	return cmd
}
