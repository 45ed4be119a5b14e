//go:build linux

package v4l2

import "errors"

// Capability describes an opened device as reported by VIDIOC_QUERYCAP.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Version uint32
	Caps    uint32 // Effective capabilities (device caps when the driver reports them)
}

// CanCapture reports whether the device supports single-planar video capture.
func (c Capability) CanCapture() bool {
	return c.Caps&CapVideoCapture != 0
}

// CanStream reports whether the device supports streaming (mmap) I/O.
func (c Capability) CanStream() bool {
	return c.Caps&CapStreaming != 0
}

// PixFormat is the single-planar capture format negotiated with a device.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
}

// Buffer describes one driver-side capture buffer.
type Buffer struct {
	Index     uint32
	Offset    uint32 // mmap offset, valid after QueryBuffer
	Length    uint32
	BytesUsed uint32 // valid after Dequeue
	Sequence  uint32
	Flags     uint32
}

// Capability flags.
const (
	CapVideoCapture = 0x00000001
	CapStreaming    = 0x04000000
	CapDeviceCaps   = 0x80000000
)

// Buffer type and memory model.
const (
	BufTypeVideoCapture = 1
	MemoryMMAP          = 1
)

// Field orders.
const (
	FieldAny        = 0
	FieldNone       = 1
	FieldInterlaced = 4
)

// Common pixel formats.
const (
	PixFmtRGB24 = 0x33424752 // 'RGB3'
	PixFmtBGR24 = 0x33524742 // 'BGR3'
	PixFmtYUYV  = 0x56595559 // 'YUYV'
	PixFmtMJPEG = 0x47504A4D // 'MJPG'
)

var (
	// ErrNotCaptureDevice is returned by Open when the node cannot capture video.
	ErrNotCaptureDevice = errors.New("not a video capture device")
	// ErrNoStreaming is returned by Open when the device lacks streaming I/O.
	ErrNoStreaming = errors.New("device does not support streaming I/O")
)
