package models

// Device models
type DeviceData struct {
	Path    string `json:"path" example:"/dev/video0" doc:"Device node"`
	Name    string `json:"name" example:"HD Pro Webcam C920" doc:"Card name reported by the driver"`
	Driver  string `json:"driver" example:"uvcvideo" doc:"Kernel driver"`
	BusInfo string `json:"bus_info" example:"usb-0000:00:14.0-1" doc:"Bus location"`
	Caps    uint32 `json:"caps" example:"69206017" doc:"Device capability flags"`
	Current bool   `json:"current" example:"true" doc:"Whether the capture session uses this device"`
}

type DevicesData struct {
	Devices []DeviceData `json:"devices" doc:"Streaming capture devices"`
	Count   int          `json:"count" example:"1" doc:"Number of devices"`
}

type DevicesResponse struct {
	Body DevicesData
}
