package events

// Event type identifiers for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeFrameSize
	TypeCaptureError
	TypeDeliveryStarted
	TypeDeliveryStopped
	TypeCaptureStats
	TypeDeviceHotplug
)

// Event is implemented by everything published on the bus.
type Event interface {
	Type() uint32
}

// Name returns the SSE event name for an event value.
func Name(e Event) string {
	switch e.Type() {
	case TypeSessionStateChanged:
		return "session-state"
	case TypeFrameSize:
		return "frame-size"
	case TypeCaptureError:
		return "capture-error"
	case TypeDeliveryStarted:
		return "delivery-started"
	case TypeDeliveryStopped:
		return "delivery-stopped"
	case TypeCaptureStats:
		return "capture-stats"
	case TypeDeviceHotplug:
		return "device-hotplug"
	default:
		return "unknown"
	}
}

// SessionStateChangedEvent is published on every capture session transition.
type SessionStateChangedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device path"`
	OldState  string `json:"old_state" example:"stopped" doc:"State before the transition"`
	NewState  string `json:"new_state" example:"started" doc:"State after the transition"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Transition time"`
}

// Type implements Event.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// FrameSizeEvent is published after the device grants a frame size.
type FrameSizeEvent struct {
	Device          string `json:"device" example:"/dev/video0" doc:"Capture device path"`
	Width           int    `json:"width" example:"640" doc:"Granted width in pixels"`
	Height          int    `json:"height" example:"480" doc:"Granted height in pixels"`
	RequestedWidth  int    `json:"requested_width" example:"640" doc:"Requested width in pixels"`
	RequestedHeight int    `json:"requested_height" example:"480" doc:"Requested height in pixels"`
	PixelFormat     string `json:"pixel_format" example:"RGB3" doc:"Negotiated FourCC pixel format"`
	Timestamp       string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Negotiation time"`
}

// Type implements Event.
func (e FrameSizeEvent) Type() uint32 { return TypeFrameSize }

// DifferentSize reports whether the device granted something other than the request.
func (e FrameSizeEvent) DifferentSize() bool {
	return e.Width != e.RequestedWidth || e.Height != e.RequestedHeight
}

// CaptureErrorEvent is published when a capture operation fails.
type CaptureErrorEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device path"`
	Operation string `json:"operation" example:"start" doc:"Operation that failed"`
	Code      string `json:"code" example:"DEVICE_ERROR" doc:"Capture error code"`
	Error     string `json:"error" example:"stream on: [DEVICE_ERROR] device command failed" doc:"Error description"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Failure time"`
}

// Type implements Event.
func (e CaptureErrorEvent) Type() uint32 { return TypeCaptureError }

// DeliveryStartedEvent is published when a continuous delivery run begins.
type DeliveryStartedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device path"`
	RunID     string `json:"run_id" example:"6f1c2b7e-8a1d-4d2e-9b7a-2f6c1e0d9a3b" doc:"Delivery run identifier"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Start time"`
}

// Type implements Event.
func (e DeliveryStartedEvent) Type() uint32 { return TypeDeliveryStarted }

// DeliveryStoppedEvent is published when a continuous delivery run returns.
type DeliveryStoppedEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device path"`
	RunID     string `json:"run_id" example:"6f1c2b7e-8a1d-4d2e-9b7a-2f6c1e0d9a3b" doc:"Delivery run identifier"`
	Frames    int64  `json:"frames" example:"1500" doc:"Frames delivered during the run"`
	Reason    string `json:"reason" example:"stop requested" doc:"Why the run ended"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"End time"`
}

// Type implements Event.
func (e DeliveryStoppedEvent) Type() uint32 { return TypeDeliveryStopped }

// CaptureStatsEvent carries periodic capture counters for live dashboards.
type CaptureStatsEvent struct {
	Device          string `json:"device" example:"/dev/video0" doc:"Capture device path"`
	State           string `json:"state" example:"continuous" doc:"Current session state"`
	FrameRate       string `json:"frame_rate" example:"29.97" doc:"Smoothed delivered frames per second"`
	FramesDelivered uint64 `json:"frames_delivered" example:"1500" doc:"Frames delivered since start"`
	FramesNoData    uint64 `json:"frames_no_data" example:"3" doc:"Single frame polls without a frame"`
	Errors          uint64 `json:"errors" example:"0" doc:"Failed capture operations"`
}

// Type implements Event.
func (e CaptureStatsEvent) Type() uint32 { return TypeCaptureStats }

// DeviceHotplugEvent is published when the capture device node appears or
// disappears.
type DeviceHotplugEvent struct {
	Device    string `json:"device" example:"/dev/video0" doc:"Capture device path"`
	Action    string `json:"action" example:"remove" doc:"Kernel action (add or remove)"`
	Resumed   bool   `json:"resumed" example:"false" doc:"Whether delivery was resumed after the device came back"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event time"`
}

// Type implements Event.
func (e DeviceHotplugEvent) Type() uint32 { return TypeDeviceHotplug }
