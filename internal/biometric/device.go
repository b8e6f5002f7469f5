package biometric

import "strings"

var deviceLabels = []struct {
	needle string
	label  string
}{
	{"iPhone", "iPhone"},
	{"iPad", "iPad"},
	{"Mac", "Mac"},
	{"Android", "Android Device"},
	{"Windows", "Windows PC"},
	{"Linux", "Linux Device"},
}

// UnknownDevice is the label used when the user agent matches nothing.
const UnknownDevice = "Unknown Device"

// DeviceLabel derives a best-effort device name from a user agent.
func DeviceLabel(userAgent string) string {
	for _, d := range deviceLabels {
		if strings.Contains(userAgent, d.needle) {
			return d.label
		}
	}
	return UnknownDevice
}
