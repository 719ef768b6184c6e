package domain

import "path/filepath"

// Default artifact names, relative to the working directory.
const (
	ClientSecretFile     = "credentials.json"
	TokenFile            = "token.json"
	DeviceFile           = "device_config.json"
	SchemaSourceFile     = "embedded_assistant.proto"
	SchemaDescriptorFile = "embedded_assistant.binpb"
)

// Artifacts locates the five files that make up a complete setup.
type Artifacts struct {
	ClientSecret     string
	Token            string
	Device           string
	SchemaSource     string
	SchemaDescriptor string
}

func DefaultArtifacts(dir string) Artifacts {
	return Artifacts{
		ClientSecret:     filepath.Join(dir, ClientSecretFile),
		Token:            filepath.Join(dir, TokenFile),
		Device:           filepath.Join(dir, DeviceFile),
		SchemaSource:     filepath.Join(dir, SchemaSourceFile),
		SchemaDescriptor: filepath.Join(dir, SchemaDescriptorFile),
	}
}

// ReadinessStatus is one observation of the filesystem. It is never cached.
type ReadinessStatus struct {
	ClientSecret     bool
	Device           bool
	Token            bool
	SchemaSource     bool
	SchemaDescriptor bool
}

type ReadinessEntry struct {
	Name    string
	Present bool
}

func (r ReadinessStatus) SchemaReady() bool {
	return r.SchemaSource && r.SchemaDescriptor
}

func (r ReadinessStatus) DeviceReady() bool {
	return r.Device && r.Token
}

func (r ReadinessStatus) Ready() bool {
	return r.ClientSecret && r.SchemaReady() && r.DeviceReady()
}

// Entries lists the artifacts in check order, for display.
func (r ReadinessStatus) Entries() []ReadinessEntry {
	return []ReadinessEntry{
		{Name: ClientSecretFile, Present: r.ClientSecret},
		{Name: DeviceFile, Present: r.Device},
		{Name: TokenFile, Present: r.Token},
		{Name: SchemaSourceFile, Present: r.SchemaSource},
		{Name: SchemaDescriptorFile, Present: r.SchemaDescriptor},
	}
}
