package authrequest

// DeviceType identifies the kind of client that originated an auth request.
// The numeric codes are part of the persisted record and the device API;
// do not renumber.
type DeviceType int

const (
	DeviceAndroid          DeviceType = 0
	DeviceIOS              DeviceType = 1
	DeviceChromeExtension  DeviceType = 2
	DeviceFirefoxExtension DeviceType = 3
	DeviceOperaExtension   DeviceType = 4
	DeviceEdgeExtension    DeviceType = 5
	DeviceWindowsDesktop   DeviceType = 6
	DeviceMacOSDesktop     DeviceType = 7
	DeviceLinuxDesktop     DeviceType = 8
	DeviceChromeBrowser    DeviceType = 9
	DeviceFirefoxBrowser   DeviceType = 10
	DeviceOperaBrowser     DeviceType = 11
	DeviceEdgeBrowser      DeviceType = 12
	DeviceSafariBrowser    DeviceType = 13
	DeviceUnknownBrowser   DeviceType = 14
	DeviceWindowsCLI       DeviceType = 15
	DeviceMacOSCLI         DeviceType = 16
	DeviceLinuxCLI         DeviceType = 17
	DeviceSDK              DeviceType = 18
)

// UnknownDeviceLabel is the display fallback for codes without a label.
const UnknownDeviceLabel = "Unknown Device Type"

var deviceTypeLabels = map[DeviceType]string{
	DeviceAndroid:          "Android",
	DeviceIOS:              "iOS",
	DeviceChromeExtension:  "Chrome Extension",
	DeviceFirefoxExtension: "Firefox Extension",
	DeviceOperaExtension:   "Opera Extension",
	DeviceEdgeExtension:    "Edge Extension",
	DeviceWindowsDesktop:   "Windows Desktop",
	DeviceMacOSDesktop:     "macOS Desktop",
	DeviceLinuxDesktop:     "Linux Desktop",
	DeviceChromeBrowser:    "Chrome",
	DeviceFirefoxBrowser:   "Firefox",
	DeviceOperaBrowser:     "Opera",
	DeviceEdgeBrowser:      "Edge",
	DeviceSafariBrowser:    "Safari",
	DeviceUnknownBrowser:   "Unknown Browser",
	DeviceWindowsCLI:       "Windows CLI",
	DeviceMacOSCLI:         "macOS CLI",
	DeviceLinuxCLI:         "Linux CLI",
	DeviceSDK:              "SDK",
}

// String returns the human-readable label for the device type.
// Unrecognized codes map to UnknownDeviceLabel — a missing label must never
// fail a notification send.
func (d DeviceType) String() string {
	if label, ok := deviceTypeLabels[d]; ok {
		return label
	}
	return UnknownDeviceLabel
}
