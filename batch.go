package deployagent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ResultRecorder persists frozen batch outcomes to an external store.
type ResultRecorder interface {
	RecordBatch(ctx context.Context, record BatchRecord) error
}

// BatchRecord is the persistence shape handed to a ResultRecorder.
type BatchRecord struct {
	FirmwareVersion string
	StartedAt       time.Time
	FinishedAt      time.Time
	Result          UpdateResult
}

type noopRecorder struct{}

func (noopRecorder) RecordBatch(ctx context.Context, record BatchRecord) error { return nil }

// UpdaterConfig controls batch updater behavior.
type UpdaterConfig struct {
	Backend          DeviceBackend
	Recorder         ResultRecorder
	MinInterval      time.Duration
	MinChangePercent float64
}

// Updater runs the per-device update sequence across a batch of devices,
// sequentially. Devices sharing a host bus must not be flashed in parallel.
type Updater struct {
	sequencer *Sequencer
	recorder  ResultRecorder
	skip      atomic.Bool
}

// NewUpdater builds an updater with the provided configuration.
func NewUpdater(cfg UpdaterConfig) (*Updater, error) {
	if cfg.Backend == nil {
		return nil, errors.New("updater: backend cannot be nil")
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Updater{
		sequencer: NewSequencer(cfg.Backend, SequencerOptions{
			MinInterval:      cfg.MinInterval,
			MinChangePercent: cfg.MinChangePercent,
		}),
		recorder: recorder,
	}, nil
}

// RequestSkipRemaining asks the updater to skip devices not yet started.
// The flag is checked only at the per-device loop boundary, never
// mid-sequence, and is cleared when the next batch starts.
func (u *Updater) RequestSkipRemaining() {
	if u == nil {
		return
	}
	u.skip.Store(true)
}

// PerformBatchUpdate runs the update sequence for every device in order.
// One device's fatal failure never aborts the batch: the error is captured
// in that device's result and the loop continues. The returned result always
// carries one entry per input device and is immutable once returned.
func (u *Updater) PerformBatchUpdate(ctx context.Context, devices []Device, firmware FirmwareBundle, onProgress ProgressFunc) UpdateResult {
	startedAt := time.Now()
	u.skip.Store(false)

	log.Info().
		Int("device_count", len(devices)).
		Str("version", firmware.Version).
		Msg("start batch update")

	updates := make([]DeviceUpdateResult, 0, len(devices))
	for _, device := range devices {
		if u.skip.Load() {
			log.Warn().Str("device", device.Path).Msg("skipping device on operator request")
			updates = append(updates, DeviceUpdateResult{
				Device: device,
				Error:  "update skipped",
			})
			continue
		}
		if err := u.sequencer.UpdateDevice(ctx, device, firmware, onProgress); err != nil {
			updates = append(updates, DeviceUpdateResult{
				Device: device,
				Error:  errString(err),
			})
			continue
		}
		updates = append(updates, DeviceUpdateResult{Device: device, Success: true})
	}

	success := true
	for _, update := range updates {
		if !update.Success {
			success = false
			break
		}
	}
	message := MessageAllDevicesUpdated
	if !success {
		message = MessageSomeDevicesFailed
	}
	result := UpdateResult{
		Success:       success,
		Message:       message,
		DeviceUpdates: updates,
	}

	if err := u.recorder.RecordBatch(ctx, BatchRecord{
		FirmwareVersion: firmware.Version,
		StartedAt:       startedAt,
		FinishedAt:      time.Now(),
		Result:          result,
	}); err != nil {
		log.Error().Err(err).Msg("record batch result failed")
	}

	log.Info().
		Bool("success", success).
		Int("device_count", len(devices)).
		Msg("batch update finished")
	return result
}
