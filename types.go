package deployagent

import "context"

// Role selects which configuration template is written to a device.
type Role string

const (
	RolePrimary   Role = "PRIMARY"
	RoleSecondary Role = "SECONDARY"
)

// Valid reports whether the role is one of the known assignments.
func (r Role) Valid() bool {
	switch r {
	case RolePrimary, RoleSecondary:
		return true
	default:
		return false
	}
}

// Device identifies one connected unit for the duration of a deployment attempt.
// Devices come from a DeviceProvider and are treated as immutable value objects.
type Device struct {
	// Path is the connection handle, e.g. a mount point or serial port.
	Path  string
	Label string
	// Role is empty until the operator assigns one.
	Role Role
	// InBootloader marks a device currently in DFU/bootloader mode rather
	// than application mode.
	InBootloader bool
}

// HasRole reports whether the operator assigned a valid role to the device.
func (d Device) HasRole() bool {
	return d.Role.Valid()
}

// FirmwareBundle is a resolved, locally available firmware artifact.
type FirmwareBundle struct {
	Version string
	Path    string
}

// Stage names one phase of a per-device deployment sequence.
type Stage string

// Firmware update stages.
const (
	StageIdle        Stage = "idle"
	StageWiping      Stage = "wiping"
	StageCopying     Stage = "copying"
	StageConfiguring Stage = "configuring"
	StageComplete    Stage = "complete"
	StageError       Stage = "error"
)

// Therapy configuration stages.
const (
	StageConnecting Stage = "connecting"
	StageSending    Stage = "sending"
	StageRebooting  Stage = "rebooting"
)

// Terminal reports whether the stage ends a device sequence.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// StageEvent is one progress notification for a device sequence.
// Progress is on the 0-100 scale for the whole per-device sequence.
type StageEvent struct {
	DevicePath  string
	Stage       Stage
	Progress    float64
	Message     string
	CurrentFile string
	// NewDeviceLabel and NewDevicePath are populated only after a successful
	// volume rename, carrying the resolved (possibly host-suffixed) identity.
	NewDeviceLabel string
	NewDevicePath  string
}

// ProgressFunc receives stage events. Callers decide how to fold them into
// whatever state representation they use.
type ProgressFunc func(StageEvent)

// DeviceUpdateResult is the terminal outcome for a single device.
type DeviceUpdateResult struct {
	Device  Device
	Success bool
	Error   string
}

// Batch result messages. There is deliberately no partial-success variant.
const (
	MessageAllDevicesUpdated = "All devices updated successfully"
	MessageSomeDevicesFailed = "Some devices failed to update"
)

// UpdateResult is the frozen outcome of one batch across all selected devices.
type UpdateResult struct {
	Success       bool
	Message       string
	DeviceUpdates []DeviceUpdateResult
}

// TherapyProfile is an opaque therapy configuration payload selected by the
// operator.
type TherapyProfile struct {
	Name    string
	Content string
}

// AdvancedSettings carries optional key/value overrides applied together with
// a therapy profile.
type AdvancedSettings map[string]string

// TransferProgress is streamed by the backend during firmware transfer.
type TransferProgress struct {
	CurrentFile    string
	TotalFiles     int
	CompletedFiles int
}

// TransferProgressFunc receives incremental transfer notifications.
type TransferProgressFunc func(TransferProgress)

// ProfileProgress is streamed by the backend while applying a therapy profile.
type ProfileProgress struct {
	Stage   Stage
	Percent float64
	Message string
}

// ProfileProgressFunc receives incremental therapy notifications.
type ProfileProgressFunc func(ProfileProgress)

// DeviceBackend executes the remote device operations. Implementations either
// succeed, fail with an error, or stream incremental progress through the
// provided callback; error shapes from the underlying transport are already
// normalized to Go errors at this boundary.
type DeviceBackend interface {
	Erase(ctx context.Context, devicePath string) error
	TransferFirmware(ctx context.Context, firmwarePath, devicePath string, onProgress TransferProgressFunc) error
	WriteConfig(ctx context.Context, devicePath string, role Role, configContent string) error
	RenameVolume(ctx context.Context, devicePath, newName string) error
	// ResolveRenamedPath maps the pre-rename path to the actual mounted path,
	// handling host-appended numeric suffixes like " 1".
	ResolveRenamedPath(ctx context.Context, oldPath, expectedName string) (string, error)
	ApplyTherapyProfile(ctx context.Context, devicePath string, profile TherapyProfile, settings AdvancedSettings, onProgress ProfileProgressFunc) error
}

// DeviceProvider enumerates currently connected devices.
type DeviceProvider interface {
	ListDevices(ctx context.Context) ([]Device, error)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
