package capture

// Frame is a view of one captured image inside a mapped driver buffer.
// Data is only valid until the next frame is requested from the session.
type Frame struct {
	Data        []byte
	Index       int
	Sequence    int
	Width       int
	Height      int
	Stride      int
	PixelFormat PixelFormat
}

// Clone returns a copy of the frame that owns its data.
func (f *Frame) Clone() *Frame {
	clone := *f
	clone.Data = append([]byte(nil), f.Data...)
	return &clone
}

// Size returns the frame size.
func (f *Frame) Size() Size {
	return Size{Width: f.Width, Height: f.Height}
}

// Directive tells a continuous frame loop what to do after a frame.
type Directive int

const (
	Continue Directive = iota
	Stop
)

func (d Directive) String() string {
	if d == Stop {
		return "stop"
	}
	return "continue"
}

// FrameFunc consumes one delivered frame. It runs on the goroutine that
// called Deliver and must not retain the frame past its return.
type FrameFunc func(f *Frame) Directive
