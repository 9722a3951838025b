package main

import (
	"fmt"
	"strings"
	"time"

	deployagent "github.com/duodevices/DeployAgent"
	"github.com/duodevices/DeployAgent/internal/config"
	"github.com/duodevices/DeployAgent/internal/history"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	envProgressMinInterval = "DEPLOY_PROGRESS_MIN_INTERVAL"
	envProgressMinChange   = "DEPLOY_PROGRESS_MIN_CHANGE"
)

func newUpdateCmd() *cobra.Command {
	var (
		flagFirmware string
		flagVersion  string
		flagDevices  []string
		flagNoHist   bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run the firmware update sequence across selected devices",
		Long:  "Erases, flashes, and configures each selected device in order. Device selections take the form <path>=<PRIMARY|SECONDARY>; every selected device needs a role before the update starts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(flagFirmware) == "" {
				return fmt.Errorf("--firmware is required")
			}
			if len(flagDevices) == 0 {
				return fmt.Errorf("at least one --device <path>=<role> is required")
			}

			firmware := deployagent.FirmwareBundle{
				Version: trimOrDefault(flagVersion, "unknown"),
				Path:    strings.TrimSpace(flagFirmware),
			}

			connected, err := backendClient().ListDevices(ctx)
			if err != nil {
				return err
			}
			selection, err := resolveSelection(flagDevices, connected)
			if err != nil {
				return err
			}

			// The CLI walks the same gates the firmware wizard enforces for
			// the interactive flow.
			wizard := deployagent.NewFirmwareWizard()
			wizard.SelectRelease(firmware)
			if !wizard.Next() {
				return fmt.Errorf("firmware release not selectable")
			}
			wizard.SelectDevices(selection)
			for _, d := range selection {
				wizard.AssignRole(d.Path, d.Role)
			}
			if !wizard.Next() {
				return fmt.Errorf("device selection incomplete: every device needs a role")
			}

			var recorder deployagent.ResultRecorder
			if !flagNoHist {
				store, err := history.Open()
				if err != nil {
					log.Warn().Err(err).Msg("deployment history unavailable, continuing without it")
				} else {
					defer store.Close()
					recorder = store
				}
			}

			updater, err := deployagent.NewUpdater(deployagent.UpdaterConfig{
				Backend:          backendClient(),
				Recorder:         recorder,
				MinInterval:      config.Duration(envProgressMinInterval, 100*time.Millisecond),
				MinChangePercent: config.Float(envProgressMinChange, 1),
			})
			if err != nil {
				return err
			}

			paths := make([]string, len(selection))
			for i, d := range selection {
				paths[i] = d.Path
			}
			overall := deployagent.NewOverallProgress(paths)
			// The firmware bundle is already local; there is no download phase
			// on the CLI path.
			overall.SetDownloadProgress(100)
			overall.BeginInstall()

			result := updater.PerformBatchUpdate(ctx, selection, firmware, func(ev deployagent.StageEvent) {
				wizard.RecordProgress(ev)
				overall.Observe(ev)
				fmt.Printf("[%3.0f%%] %s %s %.0f%% %s\n",
					overall.Overall(), ev.DevicePath, ev.Stage, ev.Progress, ev.Message)
			})
			wizard.SetResult(result)

			fmt.Println(result.Message)
			for _, update := range result.DeviceUpdates {
				if update.Success {
					fmt.Printf("  %s: ok\n", update.Device.Path)
					continue
				}
				fmt.Printf("  %s: FAILED: %s\n", update.Device.Path, update.Error)
			}
			if !result.Success {
				return fmt.Errorf("batch update failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagFirmware, "firmware", "", "path to the local firmware bundle")
	cmd.Flags().StringVar(&flagVersion, "version", "", "firmware version label")
	cmd.Flags().StringArrayVar(&flagDevices, "device", nil, "device selection <path>=<PRIMARY|SECONDARY>, repeatable (max 2)")
	cmd.Flags().BoolVar(&flagNoHist, "no-history", false, "skip recording the batch to the local history database")
	return cmd
}

// resolveSelection matches operator selections against connected devices and
// applies role assignments.
func resolveSelection(selections []string, connected []deployagent.Device) ([]deployagent.Device, error) {
	if len(selections) > 2 {
		return nil, fmt.Errorf("at most 2 devices can participate in one batch, got %d", len(selections))
	}
	byPath := make(map[string]deployagent.Device, len(connected))
	for _, d := range connected {
		byPath[d.Path] = d
	}
	result := make([]deployagent.Device, 0, len(selections))
	for _, sel := range selections {
		path, roleName, ok := strings.Cut(sel, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --device %q, expected <path>=<role>", sel)
		}
		path = strings.TrimSpace(path)
		role := deployagent.Role(strings.ToUpper(strings.TrimSpace(roleName)))
		if !role.Valid() {
			return nil, fmt.Errorf("invalid role %q for device %s", roleName, path)
		}
		device, ok := byPath[path]
		if !ok {
			return nil, fmt.Errorf("device %s is not connected", path)
		}
		device.Role = role
		result = append(result, device)
	}
	return result, nil
}

func trimOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
