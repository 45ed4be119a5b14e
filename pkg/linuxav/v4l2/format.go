//go:build linux

package v4l2

import "bytes"

// FormatFourCC converts a 4-byte pixel format to a human-readable string.
func FormatFourCC(format uint32) string {
	b := make([]byte, 4)
	b[0] = byte(format & 0xFF)
	b[1] = byte((format >> 8) & 0xFF)
	b[2] = byte((format >> 16) & 0xFF)
	b[3] = byte((format >> 24) & 0xFF)
	return string(b)
}

// FourCC packs a four character code such as "RGB3" into a pixel format value.
// Shorter codes are padded with spaces; extra characters are ignored.
func FourCC(code string) uint32 {
	b := []byte("    ")
	copy(b, code)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func toRawPixFormat(p PixFormat) v4l2PixFormat {
	return v4l2PixFormat{
		width:        p.Width,
		height:       p.Height,
		pixelformat:  p.PixelFormat,
		field:        p.Field,
		bytesperline: p.BytesPerLine,
		sizeimage:    p.SizeImage,
		colorspace:   p.Colorspace,
	}
}

func fromRawPixFormat(raw *v4l2PixFormat) PixFormat {
	return PixFormat{
		Width:        raw.width,
		Height:       raw.height,
		PixelFormat:  raw.pixelformat,
		Field:        raw.field,
		BytesPerLine: raw.bytesperline,
		SizeImage:    raw.sizeimage,
		Colorspace:   raw.colorspace,
	}
}

func fromRawCapability(raw *v4l2Capability) Capability {
	// Get the effective capabilities
	caps := raw.capabilities
	if caps&CapDeviceCaps != 0 {
		caps = raw.deviceCaps
	}
	return Capability{
		Driver:  cstr(raw.driver[:]),
		Card:    cstr(raw.card[:]),
		BusInfo: cstr(raw.busInfo[:]),
		Version: raw.version,
		Caps:    caps,
	}
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
