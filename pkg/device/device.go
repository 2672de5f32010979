package device

import "fmt"

// UDID is the unique identifier of a physical device. Two tasks that resolve to the same
// non-empty UDID may not run at the same time.
type UDID string

// None is the zero UDID; a task resolving to it has no device constraint.
const None UDID = ""

// Platform is a string holding the platform of the Device.
type Platform string

const (
	// IOS represents an iOS device.
	IOS Platform = "ios"
	// Android represents an Android device.
	Android Platform = "android"
)

// Device represents a single physical device that jobs may deploy to.
type Device struct {
	UDID     UDID     `json:"udid"`
	Name     string   `json:"name"`
	Platform Platform `json:"platform"`
}

func (d *Device) String() string {
	if d.Name == "" {
		return string(d.UDID)
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.UDID)
}

// Registry maps UDIDs to the devices known to the cluster.
type Registry map[UDID]Device

// NewRegistry builds a registry from a list of devices. Later duplicates win.
func NewRegistry(devices []Device) Registry {
	r := make(Registry, len(devices))
	for _, d := range devices {
		r[d.UDID] = d
	}
	return r
}

// Name returns the display name registered for the UDID, or the UDID itself.
func (r Registry) Name(udid UDID) string {
	if d, ok := r[udid]; ok && d.Name != "" {
		return d.Name
	}
	return string(udid)
}
