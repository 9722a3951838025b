package deployagent

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TherapyConfigurator runs the therapy configuration sequence
// (connecting, sending, rebooting, complete) for one device. Unlike the
// firmware sequencer it orchestrates nothing itself: the backend's single
// apply-profile call streams its own stage/percent/message notifications and
// the configurator only relays them through the throttle.
type TherapyConfigurator struct {
	backend DeviceBackend
	opts    SequencerOptions
}

// NewTherapyConfigurator builds a configurator around the given backend.
func NewTherapyConfigurator(backend DeviceBackend, opts SequencerOptions) *TherapyConfigurator {
	return &TherapyConfigurator{backend: backend, opts: opts}
}

// ConfigureDevice applies a therapy profile to one device, relaying the
// backend's streamed notifications as throttled stage events. Any failure is
// fatal for the device: an error event carrying the backend message is
// emitted and the error returned.
func (c *TherapyConfigurator) ConfigureDevice(ctx context.Context, device Device, profile TherapyProfile, settings AdvancedSettings, onProgress ProgressFunc) error {
	if c == nil || c.backend == nil {
		return errors.New("therapy configurator: backend is nil")
	}
	if onProgress == nil {
		onProgress = func(StageEvent) {}
	}
	throttle := NewProgressThrottle(onProgress, c.opts.MinInterval, c.opts.MinChangePercent)

	log.Info().
		Str("device", device.Path).
		Str("profile", profile.Name).
		Msg("start therapy configuration")

	lastStage := StageConnecting
	lastProgress := 0.0
	throttle.Call(StageEvent{
		DevicePath: device.Path,
		Stage:      StageConnecting,
		Progress:   0,
		Message:    "connecting to device",
	})

	err := c.backend.ApplyTherapyProfile(ctx, device.Path, profile, settings, func(p ProfileProgress) {
		lastStage = p.Stage
		lastProgress = p.Percent
		throttle.Call(StageEvent{
			DevicePath: device.Path,
			Stage:      p.Stage,
			Progress:   p.Percent,
			Message:    p.Message,
		})
	})
	if err != nil {
		throttle.Call(StageEvent{
			DevicePath: device.Path,
			Stage:      StageError,
			Progress:   lastProgress,
			Message:    err.Error(),
		})
		throttle.Flush()
		log.Error().Err(err).Str("device", device.Path).Msg("therapy configuration failed")
		return err
	}

	// Guarantee the terminal event even when the backend stream stopped short.
	if lastStage != StageComplete {
		throttle.Call(StageEvent{
			DevicePath: device.Path,
			Stage:      StageComplete,
			Progress:   100,
			Message:    "configuration complete",
		})
	}
	throttle.Flush()
	log.Info().Str("device", device.Path).Str("profile", profile.Name).Msg("therapy configuration complete")
	return nil
}
