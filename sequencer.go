package deployagent

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// copyWeight is the share of the per-device 0-100 scale reserved for the
	// firmware transfer, leaving headroom for configure and rename.
	copyWeight     = 80.0
	renameProgress = 90.0
)

// SequencerOptions tunes progress throttling for one sequencer. Zero values
// fall back to the throttle defaults.
type SequencerOptions struct {
	MinInterval      time.Duration
	MinChangePercent float64
}

// Sequencer runs the fixed per-device firmware update sequence
// (wiping, copying, configuring, complete) against a backend, translating
// each remote operation's outcome into a throttled stage event stream.
type Sequencer struct {
	backend DeviceBackend
	opts    SequencerOptions
}

// NewSequencer builds a sequencer around the given backend.
func NewSequencer(backend DeviceBackend, opts SequencerOptions) *Sequencer {
	return &Sequencer{backend: backend, opts: opts}
}

// UpdateDevice executes the full destructive update sequence for one device.
//
// Erase, transfer, and config-write failures are fatal: the remaining stages
// are skipped, an error event carrying the backend message is emitted, and
// the error is returned. The volume rename is the one non-fatal step; its
// failure is logged and the sequence still reaches complete.
//
// The role precondition is validated before the first remote call.
func (s *Sequencer) UpdateDevice(ctx context.Context, device Device, firmware FirmwareBundle, onProgress ProgressFunc) error {
	if s == nil || s.backend == nil {
		return errors.New("sequencer: backend is nil")
	}
	if onProgress == nil {
		onProgress = func(StageEvent) {}
	}
	throttle := NewProgressThrottle(onProgress, s.opts.MinInterval, s.opts.MinChangePercent)

	fail := func(progress float64, err error) error {
		throttle.Call(StageEvent{
			DevicePath: device.Path,
			Stage:      StageError,
			Progress:   progress,
			Message:    err.Error(),
		})
		throttle.Flush()
		log.Error().Err(err).Str("device", device.Path).Msg("device update failed")
		return err
	}

	if !device.HasRole() {
		return fail(0, errors.Errorf("role not set for device %s", device.Path))
	}

	log.Info().
		Str("device", device.Path).
		Str("role", string(device.Role)).
		Str("version", firmware.Version).
		Msg("start device update")

	throttle.Call(StageEvent{
		DevicePath: device.Path,
		Stage:      StageWiping,
		Progress:   0,
		Message:    "erasing device",
	})
	if err := s.backend.Erase(ctx, device.Path); err != nil {
		return fail(0, err)
	}

	throttle.Call(StageEvent{
		DevicePath: device.Path,
		Stage:      StageCopying,
		Progress:   0,
		Message:    "copying firmware",
	})
	progress := 0.0
	transferErr := s.backend.TransferFirmware(ctx, firmware.Path, device.Path, func(p TransferProgress) {
		if p.TotalFiles > 0 {
			progress = float64(p.CompletedFiles) / float64(p.TotalFiles) * copyWeight
			if progress > copyWeight {
				progress = copyWeight
			}
		}
		throttle.Call(StageEvent{
			DevicePath:  device.Path,
			Stage:       StageCopying,
			Progress:    progress,
			Message:     "copying firmware",
			CurrentFile: p.CurrentFile,
		})
	})
	if transferErr != nil {
		return fail(progress, transferErr)
	}

	throttle.Call(StageEvent{
		DevicePath: device.Path,
		Stage:      StageConfiguring,
		Progress:   copyWeight,
		Message:    "writing configuration",
	})
	if err := s.backend.WriteConfig(ctx, device.Path, device.Role, ConfigForRole(device.Role)); err != nil {
		return fail(copyWeight, err)
	}

	newLabel, newPath := s.renameDevice(ctx, device, throttle)

	throttle.Call(StageEvent{
		DevicePath:     device.Path,
		Stage:          StageComplete,
		Progress:       100,
		Message:        "update complete",
		NewDeviceLabel: newLabel,
		NewDevicePath:  newPath,
	})
	throttle.Flush()
	log.Info().Str("device", device.Path).Str("version", firmware.Version).Msg("device update complete")
	return nil
}

// renameDevice applies the role-derived volume label and resolves the
// post-rename path. Renaming is cosmetic, so every failure here is swallowed
// after a warning and the sequence continues without the new identity fields.
func (s *Sequencer) renameDevice(ctx context.Context, device Device, throttle *ProgressThrottle) (label, path string) {
	label = VolumeLabelForRole(device.Role)
	if label == "" {
		return "", ""
	}
	if err := s.backend.RenameVolume(ctx, device.Path, label); err != nil {
		log.Warn().Err(err).Str("device", device.Path).Str("label", label).Msg("volume rename failed, continuing")
		return "", ""
	}
	resolved, err := s.backend.ResolveRenamedPath(ctx, device.Path, label)
	if err != nil {
		log.Warn().Err(err).Str("device", device.Path).Str("label", label).Msg("renamed volume lookup failed, continuing")
		return "", ""
	}
	throttle.Call(StageEvent{
		DevicePath:     device.Path,
		Stage:          StageConfiguring,
		Progress:       renameProgress,
		Message:        "volume renamed",
		NewDeviceLabel: label,
		NewDevicePath:  resolved,
	})
	return label, resolved
}
