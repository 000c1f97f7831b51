package handlers

import (
	"github.com/mileusna/useragent"
	"go.uber.org/zap"
)

type DeviceInfo struct {
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"`
}

func ParseDevice(userAgent string) DeviceInfo {
	info := DeviceInfo{Browser: "Unknown Browser", OS: "Unknown OS", DeviceType: "Unknown"}
	if userAgent == "" {
		return info
	}

	ua := useragent.Parse(userAgent)
	switch {
	case ua.Bot:
		info.DeviceType = "Bot"
	case ua.Mobile:
		info.DeviceType = "Mobile"
	case ua.Tablet:
		info.DeviceType = "Tablet"
	default:
		info.DeviceType = "Desktop"
	}

	if ua.Name != "" {
		info.Browser = ua.Name
		if ua.Version != "" {
			info.Browser += " " + ua.Version
		}
	}
	if ua.OS != "" {
		info.OS = ua.OS
		if ua.OSVersion != "" {
			info.OS += " " + ua.OSVersion
		}
	}
	return info
}

func (d DeviceInfo) fields() []zap.Field {
	return []zap.Field{
		zap.String("browser", d.Browser),
		zap.String("os", d.OS),
		zap.String("device_type", d.DeviceType),
	}
}
