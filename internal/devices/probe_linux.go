//go:build linux

package devices

import (
	"errors"

	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

func probe(path string) (Info, error) {
	dev, err := v4l2.Open(path)
	if errors.Is(err, v4l2.ErrNotCaptureDevice) || errors.Is(err, v4l2.ErrNoStreaming) {
		return Info{}, ErrNotCapture
	}
	if err != nil {
		return Info{}, err
	}
	defer dev.Close()

	c := dev.Capability()
	return Info{
		Name:    c.Card,
		Driver:  c.Driver,
		BusInfo: c.BusInfo,
		Caps:    c.Caps,
	}, nil
}
