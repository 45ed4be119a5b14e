package models

// Session models
type FormatData struct {
	Width        int    `json:"width" example:"640" doc:"Frame width in pixels"`
	Height       int    `json:"height" example:"480" doc:"Frame height in pixels"`
	PixelFormat  string `json:"pixel_format" example:"RGB3" doc:"FourCC pixel format"`
	BytesPerLine int    `json:"bytes_per_line" example:"1920" doc:"Line stride in bytes"`
	SizeImage    int    `json:"size_image" example:"921600" doc:"Bytes per frame"`
}

type StatsData struct {
	FramesDelivered uint64  `json:"frames_delivered" example:"1500" doc:"Frames delivered to consumers"`
	FramesNoData    uint64  `json:"frames_no_data" example:"3" doc:"Single frame polls without a frame"`
	Errors          uint64  `json:"errors" example:"0" doc:"Failed capture operations"`
	FrameRate       float64 `json:"frame_rate" example:"29.97" doc:"Smoothed delivered frames per second"`
}

type SessionData struct {
	Device        string     `json:"device" example:"/dev/video0" doc:"Capture device path"`
	State         string     `json:"state" enum:"closed,stopped,started,continuous" example:"continuous" doc:"Capture session state"`
	Format        FormatData `json:"format" doc:"Negotiated image format"`
	Buffers       int        `json:"buffers" example:"4" doc:"Mapped driver buffers"`
	StopRequested bool       `json:"stop_requested" example:"false" doc:"Whether a stop request is raised"`
	Delivering    bool       `json:"delivering" example:"true" doc:"Whether continuous delivery is running"`
	Stats         StatsData  `json:"stats" doc:"Capture counters"`
}

type SessionResponse struct {
	Body SessionData
}

type SessionActionRequest struct {
	Action string `path:"action" enum:"open,close,start,stop,restart,reopen,pause,resume" example:"start" doc:"Lifecycle action"`
}

type SessionActionData struct {
	Action        string      `json:"action" example:"start" doc:"Action performed"`
	DifferentSize bool        `json:"different_size" example:"false" doc:"Whether the device granted a size other than requested"`
	Session       SessionData `json:"session" doc:"Session after the action"`
}

type SessionActionResponse struct {
	Body SessionActionData
}

type DeviceRequest struct {
	Body struct {
		Device string `json:"device" minLength:"1" example:"/dev/video1" doc:"Capture device path"`
	}
}

type SizeRequest struct {
	Body struct {
		Width  int `json:"width" minimum:"1" maximum:"16384" example:"1280" doc:"Requested width in pixels"`
		Height int `json:"height" minimum:"1" maximum:"16384" example:"720" doc:"Requested height in pixels"`
	}
}

type SettingsData struct {
	Device        string `json:"device" example:"/dev/video0" doc:"Capture device path"`
	Width         int    `json:"width" example:"1280" doc:"Frame width in effect"`
	Height        int    `json:"height" example:"720" doc:"Frame height in effect"`
	DifferentSize bool   `json:"different_size" example:"false" doc:"Whether the device granted a size other than requested"`
}

type SettingsResponse struct {
	Body SettingsData
}

// Frame models
type FrameRequest struct {
	Format    string `query:"format" enum:"jpeg,png" default:"jpeg" doc:"Image encoding"`
	Quality   int    `query:"quality" minimum:"1" maximum:"100" default:"85" doc:"JPEG quality"`
	MaxWidth  int    `query:"max_width" minimum:"0" doc:"Scale down to at most this width, 0 keeps the frame width"`
	MaxHeight int    `query:"max_height" minimum:"0" doc:"Scale down to at most this height, 0 keeps the frame height"`
}

type FrameResponse struct {
	Status       int
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Sequence     string `header:"X-Frame-Sequence"`
	Body         []byte
}
