//go:build !linux

package capture

import (
	"errors"
	"fmt"
)

type unsupportedDriver struct{}

// NewV4L2Driver returns a Driver that fails to open anything on this platform.
func NewV4L2Driver() Driver {
	return unsupportedDriver{}
}

func (unsupportedDriver) Open(path string) (Device, error) {
	return nil, fmt.Errorf("open %s: v4l2 capture requires linux: %w", path, errors.ErrUnsupported)
}
