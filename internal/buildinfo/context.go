// Package buildinfo holds build-time metadata injected at startup, kept apart
// from user configuration.
package buildinfo

import (
	"fmt"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata that was not injected.
const UnknownValue = "unknown"

// Context is the build metadata of the running binary.
type Context struct {
	version    string
	buildDate  string
	instanceID string
}

// NewContext returns build metadata. An empty instanceID is replaced by a
// random one so telemetry from separate processes can be told apart.
func NewContext(version, buildDate, instanceID string) *Context {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &Context{version: version, buildDate: buildDate, instanceID: instanceID}
}

// Version returns the release version, or UnknownValue.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build timestamp, or UnknownValue.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// InstanceID returns the process instance identifier.
func (c *Context) InstanceID() string {
	if c == nil || c.instanceID == "" {
		return UnknownValue
	}
	return c.instanceID
}

// Release is the Sentry release name.
func (c *Context) Release() string {
	return "agrilens@" + c.Version()
}

func (c *Context) String() string {
	return fmt.Sprintf("AgriLens %s (built %s)", c.Version(), c.BuildDate())
}
