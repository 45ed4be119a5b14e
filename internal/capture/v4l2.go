//go:build linux

package capture

import (
	"time"
	"unsafe"

	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
)

type v4l2Driver struct{}

// NewV4L2Driver returns a Driver for Video4Linux2 capture devices.
func NewV4L2Driver() Driver {
	return v4l2Driver{}
}

func (v4l2Driver) Open(path string) (Device, error) {
	dev, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}
	return &v4l2Device{dev: dev}, nil
}

// v4l2Device adapts a V4L2 device to the session's command set.
type v4l2Device struct {
	dev *v4l2.Device
}

func (d *v4l2Device) SetFormat(f Format) (Format, error) {
	pix, err := d.dev.SetFormat(v4l2.PixFormat{
		Width:        uint32(f.Width),
		Height:       uint32(f.Height),
		PixelFormat:  uint32(f.PixelFormat),
		Field:        uint32(f.Field),
		BytesPerLine: uint32(f.BytesPerLine),
		SizeImage:    uint32(f.SizeImage),
	})
	if err != nil {
		return Format{}, err
	}
	return Format{
		Width:        int(pix.Width),
		Height:       int(pix.Height),
		PixelFormat:  PixelFormat(pix.PixelFormat),
		Field:        Field(pix.Field),
		BytesPerLine: int(pix.BytesPerLine),
		SizeImage:    int(pix.SizeImage),
	}, nil
}

func (d *v4l2Device) RequestBuffers(count int) (int, error) {
	granted, err := d.dev.RequestBuffers(uint32(count))
	return int(granted), err
}

func (d *v4l2Device) QueryBuffer(index int) (BufferInfo, error) {
	buf, err := d.dev.QueryBuffer(uint32(index))
	if err != nil {
		return BufferInfo{}, err
	}
	return BufferInfo{
		Index:  int(buf.Index),
		Offset: int64(buf.Offset),
		Length: int(buf.Length),
	}, nil
}

func (d *v4l2Device) Map(info BufferInfo) ([]byte, error) {
	return d.dev.Map(v4l2.Buffer{
		Index:  uint32(info.Index),
		Offset: uint32(info.Offset),
		Length: uint32(info.Length),
	})
}

func (d *v4l2Device) Unmap(data []byte) error {
	return d.dev.Unmap(data)
}

func (d *v4l2Device) Queue(index int) error {
	return d.dev.Queue(uint32(index))
}

func (d *v4l2Device) Dequeue() (Dequeued, error) {
	buf, err := d.dev.Dequeue()
	if err != nil {
		return Dequeued{}, err
	}
	return Dequeued{
		Index:     int(buf.Index),
		BytesUsed: int(buf.BytesUsed),
		Sequence:  int(buf.Sequence),
	}, nil
}

func (d *v4l2Device) StreamOn() error {
	return d.dev.StreamOn()
}

func (d *v4l2Device) StreamOff() error {
	return d.dev.StreamOff()
}

func (d *v4l2Device) Wait(timeout time.Duration) (bool, error) {
	return d.dev.Wait(timeout)
}

func (d *v4l2Device) Control(request uint, arg unsafe.Pointer) error {
	return d.dev.Ioctl(request, arg)
}

func (d *v4l2Device) Close() error {
	return d.dev.Close()
}
