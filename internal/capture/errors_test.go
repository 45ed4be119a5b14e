package capture

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := newError(ErrCodeDeviceError, "stream on", "device command failed", syscall.EBUSY)

	msg := err.Error()
	for _, want := range []string{"stream on", "DEVICE_ERROR", "device command failed", "busy"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, syscall.EBUSY) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !err.HasCode(ErrCodeDeviceError) {
		t.Error("expected HasCode(DEVICE_ERROR)")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"capture error", badState("start", StateClosed), ErrCodeBadState},
		{"wrapped capture error", fmt.Errorf("apply: %w", newError(ErrCodeDifferentSize, "set size", "x", nil)), ErrCodeDifferentSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsDifferentSize(t *testing.T) {
	if !IsDifferentSize(newError(ErrCodeDifferentSize, "open", "size", nil)) {
		t.Error("expected DifferentSize to be recognised")
	}
	if IsDifferentSize(newError(ErrCodeDeviceError, "open", "size", nil)) {
		t.Error("DeviceError is not DifferentSize")
	}
	if IsDifferentSize(nil) {
		t.Error("nil is not DifferentSize")
	}
}

func TestParsePixelFormat(t *testing.T) {
	tests := []struct {
		in   string
		want PixelFormat
		err  bool
	}{
		{"RGB3", PixelFormatRGB24, false},
		{"rgb24", PixelFormatRGB24, false},
		{"BGR24", PixelFormatBGR24, false},
		{"YUYV", PixelFormatYUYV, false},
		{"", 0, true},
		{"TOOLONG", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePixelFormat(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("ParsePixelFormat(%q) error = %v, want error %v", tt.in, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("ParsePixelFormat(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	if PixelFormatYUYV.String() != "YUYV" {
		t.Errorf("String() = %q, want YUYV", PixelFormatYUYV.String())
	}
}
