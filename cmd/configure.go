package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	deployagent "github.com/duodevices/DeployAgent"
	"github.com/duodevices/DeployAgent/internal/config"
	"github.com/spf13/cobra"
)

func newConfigureCmd() *cobra.Command {
	var (
		flagProfile  string
		flagName     string
		flagDevices  []string
		flagSettings []string
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Apply a therapy profile to selected devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(flagProfile) == "" {
				return fmt.Errorf("--profile is required")
			}
			if len(flagDevices) == 0 {
				return fmt.Errorf("at least one --device <path> is required")
			}
			if len(flagDevices) > 2 {
				return fmt.Errorf("at most 2 devices can participate in one batch, got %d", len(flagDevices))
			}

			content, err := os.ReadFile(flagProfile)
			if err != nil {
				return err
			}
			profile := deployagent.TherapyProfile{
				Name:    trimOrDefault(flagName, filepath.Base(flagProfile)),
				Content: string(content),
			}
			settings, err := parseSettings(flagSettings)
			if err != nil {
				return err
			}

			connected, err := backendClient().ListDevices(ctx)
			if err != nil {
				return err
			}
			byPath := make(map[string]deployagent.Device, len(connected))
			for _, d := range connected {
				byPath[d.Path] = d
			}

			wizard := deployagent.NewTherapyWizard()
			wizard.SelectProfile(profile)
			if !wizard.Next() {
				return fmt.Errorf("therapy profile not selectable")
			}

			selection := make([]deployagent.Device, 0, len(flagDevices))
			for _, raw := range flagDevices {
				path := strings.TrimSpace(raw)
				device, ok := byPath[path]
				if !ok {
					return fmt.Errorf("device %s is not connected", path)
				}
				selection = append(selection, device)
			}
			wizard.SelectDevices(selection)
			if !wizard.Next() {
				return fmt.Errorf("device selection incomplete")
			}

			configurator := deployagent.NewTherapyConfigurator(backendClient(), deployagent.SequencerOptions{
				MinInterval:      config.Duration(envProgressMinInterval, 100*time.Millisecond),
				MinChangePercent: config.Float(envProgressMinChange, 1),
			})

			// Devices share a host bus: configure them one at a time, and a
			// failed device never blocks the next one.
			failed := 0
			for _, device := range selection {
				err := configurator.ConfigureDevice(ctx, device, profile, settings, func(ev deployagent.StageEvent) {
					wizard.RecordProgress(ev)
					fmt.Printf("%s %s %.0f%% %s\n", ev.DevicePath, ev.Stage, ev.Progress, ev.Message)
				})
				result := deployagent.DeviceUpdateResult{Device: device, Success: err == nil}
				if err != nil {
					result.Error = err.Error()
					failed++
				}
				wizard.AddResult(result)
			}

			for _, result := range wizard.Results() {
				if result.Success {
					fmt.Printf("  %s: ok\n", result.Device.Path)
					continue
				}
				fmt.Printf("  %s: FAILED: %s\n", result.Device.Path, result.Error)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d devices failed to configure", failed, len(selection))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagProfile, "profile", "", "path to the therapy profile file")
	cmd.Flags().StringVar(&flagName, "name", "", "profile display name, defaults to the file name")
	cmd.Flags().StringArrayVar(&flagDevices, "device", nil, "target device path, repeatable (max 2)")
	cmd.Flags().StringArrayVar(&flagSettings, "set", nil, "advanced setting override key=value, repeatable")
	return cmd
}

func parseSettings(pairs []string) (deployagent.AdvancedSettings, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	settings := make(deployagent.AdvancedSettings, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}
		settings[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return settings, nil
}
