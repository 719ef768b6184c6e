package domain

const (
	deviceModelPrefix = "assistant-model-"
	deviceIDPrefix    = "assistant-device-"
)

// DeviceIdentity is asserted locally; the service does not allocate it.
type DeviceIdentity struct {
	ProjectID     string
	DeviceModelID string
	DeviceID      string
}

// DeriveDeviceIdentity is deterministic in the project id. Two accounts
// registering under the same project receive the same identity.
func DeriveDeviceIdentity(projectID string) DeviceIdentity {
	return DeviceIdentity{
		ProjectID:     projectID,
		DeviceModelID: deviceModelPrefix + projectID,
		DeviceID:      deviceIDPrefix + projectID,
	}
}
