package deployagent

// Wizard steps for the firmware update flow.
const (
	FirmwareStepSelectRelease = 0
	FirmwareStepSelectDevices = 1
	FirmwareStepInstalling    = 2
	FirmwareStepComplete      = 3

	maxFirmwareStep = FirmwareStepComplete
)

// Wizard steps for the therapy configuration flow.
const (
	TherapyStepSelectProfile = 0
	TherapyStepSelectDevices = 1
	TherapyStepConfiguring   = 2

	maxTherapyStep = TherapyStepConfiguring
)

// FirmwareWizard holds the operator-facing state of the firmware update flow:
// current step, selections, relayed progress, and the frozen batch result.
// It contains no deployment logic; it only gates navigation and stores what
// the orchestrator reports.
type FirmwareWizard struct {
	step     int
	release  *FirmwareBundle
	devices  []Device
	roles    map[string]Role
	progress map[string]StageEvent
	result   *UpdateResult
	log      []string
}

// NewFirmwareWizard returns a wizard at the initial step with empty state.
func NewFirmwareWizard() *FirmwareWizard {
	w := &FirmwareWizard{}
	w.Reset()
	return w
}

// Reset restores the initial snapshot: selections, progress, result, and log
// are all cleared and the wizard returns to the first step.
func (w *FirmwareWizard) Reset() {
	w.step = FirmwareStepSelectRelease
	w.release = nil
	w.devices = nil
	w.roles = make(map[string]Role)
	w.progress = make(map[string]StageEvent)
	w.result = nil
	w.log = nil
}

// Step returns the current step index.
func (w *FirmwareWizard) Step() int { return w.step }

// SetStep moves to the given step, clamped to the valid range.
func (w *FirmwareWizard) SetStep(step int) {
	w.step = clampStep(step, maxFirmwareStep)
}

// SelectRelease stores the chosen firmware release.
func (w *FirmwareWizard) SelectRelease(release FirmwareBundle) {
	r := release
	w.release = &r
}

// SelectedRelease returns the chosen release, or nil.
func (w *FirmwareWizard) SelectedRelease() *FirmwareBundle { return w.release }

// SelectDevices replaces the target device selection. Role assignments for
// devices no longer selected are dropped.
func (w *FirmwareWizard) SelectDevices(devices []Device) {
	w.devices = append([]Device(nil), devices...)
	kept := make(map[string]Role, len(w.roles))
	for _, d := range w.devices {
		if role, ok := w.roles[d.Path]; ok {
			kept[d.Path] = role
		}
	}
	w.roles = kept
}

// SelectedDevices returns the current selection with any assigned roles
// applied.
func (w *FirmwareWizard) SelectedDevices() []Device {
	out := make([]Device, len(w.devices))
	for i, d := range w.devices {
		if role, ok := w.roles[d.Path]; ok {
			d.Role = role
		}
		out[i] = d
	}
	return out
}

// AssignRole records the role for a selected device path.
func (w *FirmwareWizard) AssignRole(devicePath string, role Role) {
	w.roles[devicePath] = role
}

// CanAdvance reports whether the current step's readiness predicate allows
// moving forward. The installing and complete steps have no manual forward
// navigation.
func (w *FirmwareWizard) CanAdvance() bool {
	switch w.step {
	case FirmwareStepSelectRelease:
		return w.release != nil
	case FirmwareStepSelectDevices:
		if len(w.devices) == 0 {
			return false
		}
		for _, d := range w.devices {
			if !w.roles[d.Path].Valid() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// CanGoBack reports whether backward navigation is allowed. Only the device
// selection step is reversible; installing and complete are not.
func (w *FirmwareWizard) CanGoBack() bool {
	return w.step == FirmwareStepSelectDevices
}

// Next advances one step when the readiness predicate allows it.
func (w *FirmwareWizard) Next() bool {
	if !w.CanAdvance() {
		return false
	}
	w.SetStep(w.step + 1)
	return true
}

// Previous moves back one step when allowed.
func (w *FirmwareWizard) Previous() bool {
	if !w.CanGoBack() {
		return false
	}
	w.SetStep(w.step - 1)
	return true
}

// RecordProgress stores the latest stage event per device for display.
func (w *FirmwareWizard) RecordProgress(event StageEvent) {
	if event.DevicePath == "" {
		return
	}
	w.progress[event.DevicePath] = event
}

// Progress returns the last stored event for a device path.
func (w *FirmwareWizard) Progress(devicePath string) (StageEvent, bool) {
	ev, ok := w.progress[devicePath]
	return ev, ok
}

// SetResult stores the frozen batch outcome and moves to the final step.
func (w *FirmwareWizard) SetResult(result UpdateResult) {
	r := result
	w.result = &r
	w.SetStep(FirmwareStepComplete)
}

// Result returns the stored batch outcome, or nil while none exists.
func (w *FirmwareWizard) Result() *UpdateResult { return w.result }

// AppendLog records one operator-visible log line.
func (w *FirmwareWizard) AppendLog(line string) {
	w.log = append(w.log, line)
}

// Log returns the accumulated log lines.
func (w *FirmwareWizard) Log() []string { return w.log }

// TherapyWizard holds the operator-facing state of the therapy configuration
// flow. Same shape as the firmware wizard, without role assignment and with
// a combined configuring/result step.
type TherapyWizard struct {
	step     int
	profile  *TherapyProfile
	devices  []Device
	progress map[string]StageEvent
	results  []DeviceUpdateResult
	log      []string
}

// NewTherapyWizard returns a wizard at the initial step with empty state.
func NewTherapyWizard() *TherapyWizard {
	w := &TherapyWizard{}
	w.Reset()
	return w
}

// Reset restores the initial snapshot.
func (w *TherapyWizard) Reset() {
	w.step = TherapyStepSelectProfile
	w.profile = nil
	w.devices = nil
	w.progress = make(map[string]StageEvent)
	w.results = nil
	w.log = nil
}

// Step returns the current step index.
func (w *TherapyWizard) Step() int { return w.step }

// SetStep moves to the given step, clamped to the valid range.
func (w *TherapyWizard) SetStep(step int) {
	w.step = clampStep(step, maxTherapyStep)
}

// SelectProfile stores the chosen therapy profile.
func (w *TherapyWizard) SelectProfile(profile TherapyProfile) {
	p := profile
	w.profile = &p
}

// SelectedProfile returns the chosen profile, or nil.
func (w *TherapyWizard) SelectedProfile() *TherapyProfile { return w.profile }

// SelectDevices replaces the target device selection.
func (w *TherapyWizard) SelectDevices(devices []Device) {
	w.devices = append([]Device(nil), devices...)
}

// SelectedDevices returns the current selection.
func (w *TherapyWizard) SelectedDevices() []Device {
	return append([]Device(nil), w.devices...)
}

// CanAdvance reports whether the current step allows moving forward.
func (w *TherapyWizard) CanAdvance() bool {
	switch w.step {
	case TherapyStepSelectProfile:
		return w.profile != nil
	case TherapyStepSelectDevices:
		return len(w.devices) > 0
	default:
		return false
	}
}

// CanGoBack reports whether backward navigation is allowed.
func (w *TherapyWizard) CanGoBack() bool {
	return w.step == TherapyStepSelectDevices
}

// Next advances one step when the readiness predicate allows it.
func (w *TherapyWizard) Next() bool {
	if !w.CanAdvance() {
		return false
	}
	w.SetStep(w.step + 1)
	return true
}

// Previous moves back one step when allowed.
func (w *TherapyWizard) Previous() bool {
	if !w.CanGoBack() {
		return false
	}
	w.SetStep(w.step - 1)
	return true
}

// RecordProgress stores the latest stage event per device for display.
func (w *TherapyWizard) RecordProgress(event StageEvent) {
	if event.DevicePath == "" {
		return
	}
	w.progress[event.DevicePath] = event
}

// Progress returns the last stored event for a device path.
func (w *TherapyWizard) Progress(devicePath string) (StageEvent, bool) {
	ev, ok := w.progress[devicePath]
	return ev, ok
}

// AddResult appends one device outcome.
func (w *TherapyWizard) AddResult(result DeviceUpdateResult) {
	w.results = append(w.results, result)
}

// Results returns the accumulated device outcomes.
func (w *TherapyWizard) Results() []DeviceUpdateResult {
	return append([]DeviceUpdateResult(nil), w.results...)
}

// AppendLog records one operator-visible log line.
func (w *TherapyWizard) AppendLog(line string) {
	w.log = append(w.log, line)
}

// Log returns the accumulated log lines.
func (w *TherapyWizard) Log() []string { return w.log }

func clampStep(step, maxStep int) int {
	if step < 0 {
		return 0
	}
	if step > maxStep {
		return maxStep
	}
	return step
}
