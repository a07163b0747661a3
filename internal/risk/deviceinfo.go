package risk

import "github.com/mileusna/useragent"

// DeviceInfo is the display-oriented breakdown of a session's user agent.
type DeviceInfo struct {
	DeviceName    string `json:"deviceName"`
	OS            string `json:"os"`
	Browser       string `json:"browser"`
	BrowserFamily string `json:"browser_family"`
	DeviceType    string `json:"device_type"`
	Mobile        bool   `json:"is_mobile"`
	Tablet        bool   `json:"is_tablet"`
	PC            bool   `json:"is_pc"`
	RawUA         string `json:"raw_ua"`
}

// DescribeDevice parses a raw user-agent string for display. Unparseable
// input yields the Unknown placeholders rather than an error.
func DescribeDevice(raw string) DeviceInfo {
	info := DeviceInfo{
		DeviceName:    "Unknown Device",
		OS:            "Unknown OS",
		Browser:       "Unknown Browser",
		BrowserFamily: "Unknown",
		DeviceType:    "Unknown",
		PC:            true,
		RawUA:         truncate(raw, 100),
	}
	if raw == "" {
		return info
	}

	ua := useragent.Parse(raw)
	if ua.Device != "" {
		info.DeviceName = ua.Device
		info.DeviceType = ua.Device
	}
	if ua.OS != "" {
		info.OS = ua.OS
		if ua.OSVersion != "" {
			info.OS = ua.OS + " " + ua.OSVersion
		}
	}
	if ua.Name != "" {
		info.BrowserFamily = ua.Name
		info.Browser = ua.Name
		if ua.Version != "" {
			info.Browser = ua.Name + " " + ua.Version
		}
	}
	info.Mobile = ua.Mobile
	info.Tablet = ua.Tablet
	info.PC = ua.Desktop
	return info
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
