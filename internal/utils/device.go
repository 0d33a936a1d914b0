package utils

import (
	"strings"

	"github.com/mssola/useragent"
)

// Device classes recorded in login history.
const (
	DevicePC     = "pc"
	DeviceTablet = "tablet"
	DeviceMobile = "mobile"
	DeviceOther  = "other"
)

// DeviceType classifies a User-Agent header. Bots, command line clients
// and empty headers are "other".
func DeviceType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DeviceOther
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return DeviceOther
	}
	platform := ua.Platform()
	switch {
	case platform == "iPad",
		strings.Contains(raw, "Tablet"),
		strings.Contains(raw, "Android") && !strings.Contains(raw, "Mobile"):
		return DeviceTablet
	case ua.Mobile():
		return DeviceMobile
	case platform == "Windows", platform == "Macintosh", platform == "X11":
		return DevicePC
	}
	return DeviceOther
}
