package deployagent

import "testing"

func TestOverallProgressDownloadPhase(t *testing.T) {
	overall := NewOverallProgress([]string{"/dev/a"})
	overall.SetDownloadProgress(50)
	if got := overall.Overall(); got != 10 {
		t.Fatalf("expected download 50%% to map to overall 10, got %v", got)
	}
}

func TestOverallProgressInstallPhaseWeighting(t *testing.T) {
	overall := NewOverallProgress([]string{"/dev/a"})
	overall.SetDownloadProgress(100)
	overall.BeginInstall()
	overall.Observe(StageEvent{DevicePath: "/dev/a", Stage: StageCopying, Progress: 40})

	// 20 + 40*0.8 = 52
	if got := overall.Overall(); got != 52 {
		t.Fatalf("expected overall 52, got %v", got)
	}
}

func TestOverallProgressAveragesAcrossDevices(t *testing.T) {
	overall := NewOverallProgress([]string{"/dev/a", "/dev/b"})
	overall.BeginInstall()
	overall.Observe(StageEvent{DevicePath: "/dev/a", Stage: StageCopying, Progress: 40})
	overall.Observe(StageEvent{DevicePath: "/dev/b", Stage: StageCopying, Progress: 20})

	// average 30 -> 20 + 30*0.8 = 44
	if got := overall.Overall(); got != 44 {
		t.Fatalf("expected overall 44, got %v", got)
	}
}

func TestOverallProgressAllCompleteIsExactlyHundred(t *testing.T) {
	overall := NewOverallProgress([]string{"/dev/a", "/dev/b"})
	overall.BeginInstall()
	overall.Observe(StageEvent{DevicePath: "/dev/a", Stage: StageComplete, Progress: 100})
	overall.Observe(StageEvent{DevicePath: "/dev/b", Stage: StageComplete, Progress: 100})

	if got := overall.Overall(); got != 100 {
		t.Fatalf("expected overall 100, got %v", got)
	}
}

func TestOverallProgressErroredDeviceKeepsLastProgress(t *testing.T) {
	overall := NewOverallProgress([]string{"/dev/a", "/dev/b"})
	overall.BeginInstall()
	overall.Observe(StageEvent{DevicePath: "/dev/a", Stage: StageComplete, Progress: 100})
	overall.Observe(StageEvent{DevicePath: "/dev/b", Stage: StageCopying, Progress: 60})
	before := overall.Overall()

	overall.Observe(StageEvent{DevicePath: "/dev/b", Stage: StageError, Progress: 0})
	after := overall.Overall()

	if after != before {
		t.Fatalf("expected error not to collapse the bar: before %v, after %v", before, after)
	}
}

func TestOverallProgressNoDevices(t *testing.T) {
	overall := NewOverallProgress(nil)
	overall.BeginInstall()
	if got := overall.Overall(); got != installPhaseBase {
		t.Fatalf("expected empty batch average to be 0 (overall %v), got %v", installPhaseBase, got)
	}
}

func TestOverallProgressUnknownDeviceIgnored(t *testing.T) {
	overall := NewOverallProgress([]string{"/dev/a"})
	overall.BeginInstall()
	overall.Observe(StageEvent{DevicePath: "", Stage: StageCopying, Progress: 50})
	if got := overall.Overall(); got != installPhaseBase {
		t.Fatalf("expected event without device path ignored, got %v", got)
	}
}
