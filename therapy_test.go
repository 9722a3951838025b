package deployagent

import (
	"context"
	"errors"
	"testing"
)

func testProfile() TherapyProfile {
	return TherapyProfile{Name: "standard", Content: "PULSE_WIDTH=250\n"}
}

func TestTherapyConfiguratorRelaysBackendStages(t *testing.T) {
	backend := &stubBackend{
		profileSteps: []ProfileProgress{
			{Stage: StageConnecting, Percent: 10, Message: "handshake"},
			{Stage: StageSending, Percent: 50, Message: "profile block 1/2"},
			{Stage: StageRebooting, Percent: 90, Message: "rebooting"},
			{Stage: StageComplete, Percent: 100, Message: "done"},
		},
	}
	configurator := NewTherapyConfigurator(backend, SequencerOptions{})

	var events []StageEvent
	err := configurator.ConfigureDevice(context.Background(), testDevice(""), testProfile(), nil, collectEvents(&events))
	if err != nil {
		t.Fatalf("ConfigureDevice returned error: %v", err)
	}

	wantStages := []Stage{StageConnecting, StageConnecting, StageSending, StageRebooting, StageComplete}
	if len(events) != len(wantStages) {
		t.Fatalf("expected %d events, got %d: %#v", len(wantStages), len(events), events)
	}
	for i, stage := range wantStages {
		if events[i].Stage != stage {
			t.Fatalf("event %d: expected stage %s, got %s", i, stage, events[i].Stage)
		}
	}
	final := events[len(events)-1]
	if final.Progress != 100 || final.Message != "done" {
		t.Fatalf("expected backend terminal event relayed, got %#v", final)
	}
}

func TestTherapyConfiguratorSynthesizesTerminalEvent(t *testing.T) {
	backend := &stubBackend{
		profileSteps: []ProfileProgress{
			{Stage: StageSending, Percent: 60, Message: "profile block"},
		},
	}
	configurator := NewTherapyConfigurator(backend, SequencerOptions{})

	var events []StageEvent
	if err := configurator.ConfigureDevice(context.Background(), testDevice(""), testProfile(), nil, collectEvents(&events)); err != nil {
		t.Fatalf("ConfigureDevice returned error: %v", err)
	}
	final := events[len(events)-1]
	if final.Stage != StageComplete || final.Progress != 100 {
		t.Fatalf("expected synthesized complete event, got %#v", final)
	}
}

func TestTherapyConfiguratorFailureEmitsErrorEvent(t *testing.T) {
	backend := &stubBackend{applyErr: errors.New("device not responding")}
	configurator := NewTherapyConfigurator(backend, SequencerOptions{})

	var events []StageEvent
	err := configurator.ConfigureDevice(context.Background(), testDevice(""), testProfile(), nil, collectEvents(&events))
	if err == nil || err.Error() != "device not responding" {
		t.Fatalf("expected backend error propagated, got %v", err)
	}
	final := events[len(events)-1]
	if final.Stage != StageError || final.Message != "device not responding" {
		t.Fatalf("expected terminal error event with backend message, got %#v", final)
	}
}

func TestTherapyConfiguratorPassesSettingsThrough(t *testing.T) {
	var got AdvancedSettings
	backend := &capturingBackend{onApply: func(settings AdvancedSettings) { got = settings }}
	configurator := NewTherapyConfigurator(backend, SequencerOptions{})

	settings := AdvancedSettings{"ramp_time": "4"}
	if err := configurator.ConfigureDevice(context.Background(), testDevice(""), testProfile(), settings, nil); err != nil {
		t.Fatalf("ConfigureDevice returned error: %v", err)
	}
	if got["ramp_time"] != "4" {
		t.Fatalf("expected settings forwarded to backend, got %#v", got)
	}
}

// capturingBackend only implements the therapy path.
type capturingBackend struct {
	stubBackend
	onApply func(AdvancedSettings)
}

func (b *capturingBackend) ApplyTherapyProfile(ctx context.Context, devicePath string, profile TherapyProfile, settings AdvancedSettings, onProgress ProfileProgressFunc) error {
	if b.onApply != nil {
		b.onApply(settings)
	}
	return nil
}
