package deployagent

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// failingBackend fails the erase step for the configured device paths only.
type failingBackend struct {
	stubBackend
	failErase map[string]error
}

func (b *failingBackend) Erase(ctx context.Context, devicePath string) error {
	if err := b.failErase[devicePath]; err != nil {
		return err
	}
	return b.stubBackend.Erase(ctx, devicePath)
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []BatchRecord
	err     error
}

func (r *recordingRecorder) RecordBatch(ctx context.Context, record BatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, record)
	return nil
}

func TestUpdaterRequiresBackend(t *testing.T) {
	if _, err := NewUpdater(UpdaterConfig{}); err == nil {
		t.Fatalf("expected error for nil backend")
	}
}

func TestBatchUpdateAllDevicesSucceed(t *testing.T) {
	updater, err := NewUpdater(UpdaterConfig{Backend: &stubBackend{}})
	if err != nil {
		t.Fatalf("NewUpdater returned error: %v", err)
	}
	devices := []Device{
		{Path: "/dev/a", Role: RolePrimary},
		{Path: "/dev/b", Role: RoleSecondary},
	}

	result := updater.PerformBatchUpdate(context.Background(), devices, testFirmware(), nil)
	if !result.Success {
		t.Fatalf("expected batch success, got %#v", result)
	}
	if result.Message != MessageAllDevicesUpdated {
		t.Fatalf("expected %q, got %q", MessageAllDevicesUpdated, result.Message)
	}
	if len(result.DeviceUpdates) != len(devices) {
		t.Fatalf("expected %d device results, got %d", len(devices), len(result.DeviceUpdates))
	}
}

func TestBatchUpdateContinuesPastFailedDevice(t *testing.T) {
	backend := &failingBackend{failErase: map[string]error{
		"/dev/b": errors.New("usb reset"),
	}}
	updater, err := NewUpdater(UpdaterConfig{Backend: backend})
	if err != nil {
		t.Fatalf("NewUpdater returned error: %v", err)
	}
	devices := []Device{
		{Path: "/dev/a", Role: RolePrimary},
		{Path: "/dev/b", Role: RoleSecondary},
	}

	result := updater.PerformBatchUpdate(context.Background(), devices, testFirmware(), nil)
	if result.Success {
		t.Fatalf("expected batch failure")
	}
	if result.Message != MessageSomeDevicesFailed {
		t.Fatalf("expected %q, got %q", MessageSomeDevicesFailed, result.Message)
	}
	if len(result.DeviceUpdates) != 2 {
		t.Fatalf("expected 2 device results, got %d", len(result.DeviceUpdates))
	}
	if !result.DeviceUpdates[0].Success {
		t.Fatalf("expected first device to succeed: %#v", result.DeviceUpdates[0])
	}
	second := result.DeviceUpdates[1]
	if second.Success || second.Error != "usb reset" {
		t.Fatalf("expected second device failure with backend message, got %#v", second)
	}
}

func TestBatchUpdateFirstDeviceFailureDoesNotAbortBatch(t *testing.T) {
	backend := &failingBackend{failErase: map[string]error{
		"/dev/a": errors.New("boom"),
	}}
	updater, err := NewUpdater(UpdaterConfig{Backend: backend})
	if err != nil {
		t.Fatalf("NewUpdater returned error: %v", err)
	}
	devices := []Device{
		{Path: "/dev/a", Role: RolePrimary},
		{Path: "/dev/b", Role: RoleSecondary},
	}

	result := updater.PerformBatchUpdate(context.Background(), devices, testFirmware(), nil)
	if len(result.DeviceUpdates) != 2 {
		t.Fatalf("expected 2 device results, got %d", len(result.DeviceUpdates))
	}
	if !result.DeviceUpdates[1].Success {
		t.Fatalf("expected second device to still run and succeed, got %#v", result.DeviceUpdates[1])
	}
}

func TestBatchUpdateMissingRoleRecordedAsFailure(t *testing.T) {
	updater, err := NewUpdater(UpdaterConfig{Backend: &stubBackend{}})
	if err != nil {
		t.Fatalf("NewUpdater returned error: %v", err)
	}
	devices := []Device{{Path: "/dev/a"}}

	result := updater.PerformBatchUpdate(context.Background(), devices, testFirmware(), nil)
	if result.Success {
		t.Fatalf("expected failure for missing role")
	}
	if len(result.DeviceUpdates) != 1 || result.DeviceUpdates[0].Error == "" {
		t.Fatalf("expected role error recorded, got %#v", result.DeviceUpdates)
	}
}

func TestBatchUpdateSkipRemaining(t *testing.T) {
	updater, err := NewUpdater(UpdaterConfig{Backend: &stubBackend{}})
	if err != nil {
		t.Fatalf("NewUpdater returned error: %v", err)
	}
	devices := []Device{
		{Path: "/dev/a", Role: RolePrimary},
		{Path: "/dev/b", Role: RoleSecondary},
	}

	// Request the skip after the first device completes; the flag is only
	// consulted between devices.
	first := true
	onProgress := func(ev StageEvent) {
		if first && ev.Stage == StageComplete {
			first = false
			updater.RequestSkipRemaining()
		}
	}

	result := updater.PerformBatchUpdate(context.Background(), devices, testFirmware(), onProgress)
	if len(result.DeviceUpdates) != 2 {
		t.Fatalf("expected a result entry per input device, got %d", len(result.DeviceUpdates))
	}
	if !result.DeviceUpdates[0].Success {
		t.Fatalf("expected first device to finish, got %#v", result.DeviceUpdates[0])
	}
	skipped := result.DeviceUpdates[1]
	if skipped.Success || skipped.Error != "update skipped" {
		t.Fatalf("expected second device skipped, got %#v", skipped)
	}
	if result.Success {
		t.Fatalf("a skipped device must not count as batch success")
	}
}

func TestBatchUpdateRecordsResult(t *testing.T) {
	recorder := &recordingRecorder{}
	updater, err := NewUpdater(UpdaterConfig{Backend: &stubBackend{}, Recorder: recorder})
	if err != nil {
		t.Fatalf("NewUpdater returned error: %v", err)
	}
	devices := []Device{{Path: "/dev/a", Role: RolePrimary}}

	updater.PerformBatchUpdate(context.Background(), devices, testFirmware(), nil)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.records) != 1 {
		t.Fatalf("expected one recorded batch, got %d", len(recorder.records))
	}
	record := recorder.records[0]
	if record.FirmwareVersion != "2.4.1" || !record.Result.Success {
		t.Fatalf("unexpected record %#v", record)
	}
	if record.FinishedAt.Before(record.StartedAt) {
		t.Fatalf("finished before started: %#v", record)
	}
}

func TestBatchUpdateRecorderFailureDoesNotAffectResult(t *testing.T) {
	recorder := &recordingRecorder{err: errors.New("disk full")}
	updater, err := NewUpdater(UpdaterConfig{Backend: &stubBackend{}, Recorder: recorder})
	if err != nil {
		t.Fatalf("NewUpdater returned error: %v", err)
	}

	result := updater.PerformBatchUpdate(context.Background(), []Device{{Path: "/dev/a", Role: RolePrimary}}, testFirmware(), nil)
	if !result.Success {
		t.Fatalf("recorder failure must not change the batch outcome, got %#v", result)
	}
}
