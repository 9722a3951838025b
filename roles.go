package deployagent

// Role-specific configuration templates written to the device during the
// configuring stage. The DEVICE_ROLE marker is consumed by the device
// firmware itself; the orchestrator treats the template as an opaque asset
// keyed by role.
const (
	primaryConfigTemplate = `# Device configuration
# Generated by DeployAgent. Do not edit on-device.
DEVICE_ROLE=PRIMARY
CHANNEL_OFFSET=0
LINK_MODE=host
`
	secondaryConfigTemplate = `# Device configuration
# Generated by DeployAgent. Do not edit on-device.
DEVICE_ROLE=SECONDARY
CHANNEL_OFFSET=8
LINK_MODE=peer
`
)

// Volume labels applied during the optional rename step.
const (
	primaryVolumeLabel   = "DUO-PRIMARY"
	secondaryVolumeLabel = "DUO-SECONDARY"
)

// ConfigForRole returns the configuration template for a role, or "" when the
// role is unknown.
func ConfigForRole(role Role) string {
	switch role {
	case RolePrimary:
		return primaryConfigTemplate
	case RoleSecondary:
		return secondaryConfigTemplate
	default:
		return ""
	}
}

// VolumeLabelForRole returns the target volume label for a role, or "" when
// the role is unknown.
func VolumeLabelForRole(role Role) string {
	switch role {
	case RolePrimary:
		return primaryVolumeLabel
	case RoleSecondary:
		return secondaryVolumeLabel
	default:
		return ""
	}
}
