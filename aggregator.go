package deployagent

import "sync"

// Phase weights for the firmware flow: the download occupies the first 20%
// of the displayed bar, installation the remaining 80%.
const (
	downloadPhaseWeight = 0.2
	installPhaseWeight  = 0.8
	installPhaseBase    = 100 * downloadPhaseWeight
)

// OverallProgress folds a single download-phase percentage and N per-device
// install percentages into one 0-100 scalar. It holds only the last known
// value per device; the overall figure is recomputed on every read.
type OverallProgress struct {
	mu         sync.Mutex
	installing bool
	download   float64
	order      []string
	progress   map[string]float64
	complete   map[string]bool
}

// NewOverallProgress tracks the given device paths through one batch.
func NewOverallProgress(devicePaths []string) *OverallProgress {
	o := &OverallProgress{
		order:    append([]string(nil), devicePaths...),
		progress: make(map[string]float64, len(devicePaths)),
		complete: make(map[string]bool, len(devicePaths)),
	}
	return o
}

// SetDownloadProgress records the download-phase percentage (0-100).
func (o *OverallProgress) SetDownloadProgress(percent float64) {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.download = clampPercent(percent)
	o.mu.Unlock()
}

// BeginInstall switches from the download phase to the install phase.
func (o *OverallProgress) BeginInstall() {
	if o == nil {
		return
	}
	o.mu.Lock()
	o.installing = true
	o.mu.Unlock()
}

// Observe records one relayed stage event. Errored devices keep their last
// known progress so a late failure does not collapse the bar; the failure is
// surfaced through the per-device result instead.
func (o *OverallProgress) Observe(event StageEvent) {
	if o == nil || event.DevicePath == "" {
		return
	}
	o.mu.Lock()
	switch event.Stage {
	case StageComplete:
		o.progress[event.DevicePath] = 100
		o.complete[event.DevicePath] = true
	case StageError:
		// keep last known progress
	default:
		o.progress[event.DevicePath] = clampPercent(event.Progress)
	}
	o.mu.Unlock()
}

// Overall returns the combined 0-100 percentage.
func (o *OverallProgress) Overall() float64 {
	if o == nil {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.installing {
		return o.download * downloadPhaseWeight
	}
	if len(o.order) == 0 {
		return installPhaseBase
	}
	allComplete := true
	sum := 0.0
	for _, path := range o.order {
		sum += o.progress[path]
		if !o.complete[path] {
			allComplete = false
		}
	}
	if allComplete {
		return 100
	}
	average := sum / float64(len(o.order))
	return installPhaseBase + average*installPhaseWeight
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
