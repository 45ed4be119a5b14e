//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

// TestErrnoComparison verifies that errors.Is sees through the request-name
// wrapping applied by Device methods. Callers rely on this to retry EINTR/EAGAIN.
func TestErrnoComparison(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		target   error
		expected bool
	}{
		{
			name:     "wrapped EAGAIN matches EAGAIN",
			err:      fmt.Errorf("VIDIOC_DQBUF: %w", syscall.EAGAIN),
			target:   syscall.EAGAIN,
			expected: true,
		},
		{
			name:     "wrapped EINTR matches EINTR",
			err:      fmt.Errorf("VIDIOC_QBUF index %d: %w", 2, syscall.EINTR),
			target:   syscall.EINTR,
			expected: true,
		},
		{
			name:     "EAGAIN does not match EINTR",
			err:      fmt.Errorf("VIDIOC_DQBUF: %w", syscall.EAGAIN),
			target:   syscall.EINTR,
			expected: false,
		},
		{
			name:     "wrapped EINVAL matches EINVAL",
			err:      fmt.Errorf("VIDIOC_S_FMT: %w", syscall.EINVAL),
			target:   syscall.EINVAL,
			expected: true,
		},
		{
			name:     "wrapped EBUSY matches EBUSY",
			err:      fmt.Errorf("VIDIOC_REQBUFS: %w", syscall.EBUSY),
			target:   syscall.EBUSY,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errors.Is(tt.err, tt.target)
			if result != tt.expected {
				t.Errorf("errors.Is(%v, %v) = %v, want %v",
					tt.err, tt.target, result, tt.expected)
			}
		})
	}
}

func TestFormatFourCC(t *testing.T) {
	tests := []struct {
		name     string
		format   uint32
		expected string
	}{
		{"RGB24 format", PixFmtRGB24, "RGB3"},
		{"BGR24 format", PixFmtBGR24, "BGR3"},
		{"YUYV format", PixFmtYUYV, "YUYV"},
		{"MJPEG format", PixFmtMJPEG, "MJPG"},
		{"mixed bytes", 0x01020304, "\x04\x03\x02\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatFourCC(tt.format)
			if result != tt.expected {
				t.Errorf("FormatFourCC(0x%08X) = %q, want %q", tt.format, result, tt.expected)
			}
		})
	}
}

func TestFourCC(t *testing.T) {
	tests := []struct {
		code     string
		expected uint32
	}{
		{"RGB3", PixFmtRGB24},
		{"YUYV", PixFmtYUYV},
		{"MJPG", PixFmtMJPEG},
		{"MJPGX", PixFmtMJPEG},
		{"Y8", 0x20203859},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := FourCC(tt.code); got != tt.expected {
				t.Errorf("FourCC(%q) = 0x%08X, want 0x%08X", tt.code, got, tt.expected)
			}
		})
	}
}

func TestEffectiveCapabilities(t *testing.T) {
	raw := v4l2Capability{
		capabilities: CapVideoCapture | CapStreaming | CapDeviceCaps | 0x00000002,
		deviceCaps:   CapVideoCapture | CapStreaming,
	}
	copy(raw.driver[:], "uvcvideo")
	copy(raw.card[:], "Integrated Camera")

	c := fromRawCapability(&raw)
	if c.Caps != CapVideoCapture|CapStreaming {
		t.Errorf("Caps = 0x%08X, want device caps 0x%08X", c.Caps, CapVideoCapture|CapStreaming)
	}
	if c.Driver != "uvcvideo" {
		t.Errorf("Driver = %q, want %q", c.Driver, "uvcvideo")
	}
	if c.Card != "Integrated Camera" {
		t.Errorf("Card = %q, want %q", c.Card, "Integrated Camera")
	}
	if !c.CanCapture() || !c.CanStream() {
		t.Error("expected capture and streaming support")
	}

	// Without the device caps flag the physical capabilities apply
	raw.capabilities = CapStreaming
	c = fromRawCapability(&raw)
	if c.CanCapture() {
		t.Error("expected no capture support")
	}
}

func TestPixFormatConversion(t *testing.T) {
	want := PixFormat{
		Width:        1280,
		Height:       720,
		PixelFormat:  PixFmtRGB24,
		Field:        FieldInterlaced,
		BytesPerLine: 1280 * 3,
		SizeImage:    1280 * 720 * 3,
		Colorspace:   8,
	}

	raw := toRawPixFormat(want)
	got := fromRawPixFormat(&raw)
	if got != want {
		t.Errorf("fromRawPixFormat(toRawPixFormat(x)) = %+v, want %+v", got, want)
	}
}

func TestOpenMissingDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video99")

	_, err := Open(path)
	if err == nil {
		t.Fatal("expected error opening missing device")
	}
	if !errors.Is(err, syscall.ENOENT) {
		t.Errorf("expected ENOENT, got %v", err)
	}
}

func TestOpenRegularFile(t *testing.T) {
	// A regular file opens fine but rejects VIDIOC_QUERYCAP with ENOTTY
	path := filepath.Join(t.TempDir(), "not-a-device")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	_, err := Open(path)
	if !errors.Is(err, syscall.ENOTTY) {
		t.Errorf("expected ENOTTY, got %v", err)
	}
}
