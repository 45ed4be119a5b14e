package capture

import (
	"fmt"
	"strings"
)

// PixelFormat is a FourCC pixel format code.
type PixelFormat uint32

// Pixel formats with known frame layouts.
const (
	PixelFormatRGB24 PixelFormat = 0x33424752 // 'RGB3'
	PixelFormatBGR24 PixelFormat = 0x33524742 // 'BGR3'
	PixelFormatYUYV  PixelFormat = 0x56595559 // 'YUYV'
)

// ParsePixelFormat converts a FourCC string such as "RGB3" or "YUYV" to a
// PixelFormat. The aliases "rgb24" and "bgr24" are accepted as well.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "rgb24":
		return PixelFormatRGB24, nil
	case "bgr24":
		return PixelFormatBGR24, nil
	}
	if len(s) == 0 || len(s) > 4 {
		return 0, fmt.Errorf("invalid pixel format %q: want a fourcc code", s)
	}
	code := []byte("    ")
	copy(code, s)
	return PixelFormat(uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24), nil
}

// String returns the FourCC text of the format.
func (p PixelFormat) String() string {
	b := []byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)}
	return strings.TrimRight(string(b), " ")
}

// BytesPerPixel returns the packed pixel size, or 0 for formats without a fixed one.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatRGB24, PixelFormatBGR24:
		return 3
	case PixelFormatYUYV:
		return 2
	default:
		return 0
	}
}

// Field is the interlacing order of a frame.
type Field uint32

// Field orders.
const (
	FieldAny        Field = 0
	FieldNone       Field = 1
	FieldInterlaced Field = 4
)

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Format is an image format as granted by the device.
type Format struct {
	Width        int
	Height       int
	PixelFormat  PixelFormat
	Field        Field
	BytesPerLine int
	SizeImage    int
}

// Size returns the frame size of the format.
func (f Format) Size() Size {
	return Size{Width: f.Width, Height: f.Height}
}

// stride returns the line length, deriving it when the device left it unset.
func (f Format) stride() int {
	if f.BytesPerLine > 0 {
		return f.BytesPerLine
	}
	return f.Width * f.PixelFormat.BytesPerPixel()
}
