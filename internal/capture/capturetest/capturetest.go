// Package capturetest provides an in-memory capture driver for tests of
// packages built on capture sessions.
package capturetest

import (
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/smazurov/framegrab/internal/capture"
)

// Driver opens in-memory devices by path. Unknown paths fail with ENOENT.
type Driver struct {
	mu      sync.Mutex
	devices map[string]*Device
}

// NewDriver returns a driver serving the given devices.
func NewDriver(devices map[string]*Device) *Driver {
	return &Driver{devices: devices}
}

// Open implements capture.Driver.
func (d *Driver) Open(path string) (capture.Device, error) {
	d.mu.Lock()
	dev, ok := d.devices[path]
	d.mu.Unlock()
	if !ok {
		return nil, syscall.ENOENT
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.OpenErr != nil {
		return nil, dev.OpenErr
	}
	dev.opens++
	dev.open = true
	return dev, nil
}

// Device is a streaming device that produces a frame whenever it streams
// with a queued buffer. Every byte of a produced frame holds the low byte
// of its sequence number.
type Device struct {
	mu sync.Mutex

	// OpenErr fails Open.
	OpenErr error
	// Grant adjusts the requested format. Nil grants what is asked.
	Grant func(want capture.Format) capture.Format
	// StreamOnErr fails StreamOn.
	StreamOnErr error
	// DequeueErr fails Dequeue once a frame is ready.
	DequeueErr error

	held      bool
	format    capture.Format
	requested int
	queued    []int
	buffers   map[int][]byte
	streaming bool
	sequence  int
	open      bool
	opens     int
}

// NewDevice returns a device that grants every request.
func NewDevice() *Device {
	return &Device{buffers: make(map[int][]byte)}
}

// Hold stops or resumes frame production.
func (d *Device) Hold(held bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held = held
}

// Fail sets the error returned by Dequeue.
func (d *Device) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DequeueErr = err
}

// IsOpen reports whether the device is open.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Opens returns how many times the device has been opened.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Streaming reports whether the device streams.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// Format returns the last granted format.
func (d *Device) Format() capture.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// SetFormat implements capture.Device.
func (d *Device) SetFormat(want capture.Format) (capture.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	granted := want
	if d.Grant != nil {
		granted = d.Grant(want)
	}
	bpp := granted.PixelFormat.BytesPerPixel()
	if bpp == 0 {
		bpp = 3
	}
	granted.BytesPerLine = granted.Width * bpp
	granted.SizeImage = granted.BytesPerLine * granted.Height
	d.format = granted
	return granted, nil
}

// RequestBuffers implements capture.Device.
func (d *Device) RequestBuffers(count int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requested = count
	d.queued = nil
	if count == 0 {
		clear(d.buffers)
	}
	return count, nil
}

// QueryBuffer implements capture.Device.
func (d *Device) QueryBuffer(index int) (capture.BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= d.requested {
		return capture.BufferInfo{}, syscall.EINVAL
	}
	return capture.BufferInfo{Index: index, Offset: int64(index * d.format.SizeImage), Length: d.format.SizeImage}, nil
}

// Map implements capture.Device.
func (d *Device) Map(info capture.BufferInfo) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := make([]byte, info.Length)
	d.buffers[info.Index] = data
	return data, nil
}

// Unmap implements capture.Device.
func (d *Device) Unmap([]byte) error {
	return nil
}

// Queue implements capture.Device.
func (d *Device) Queue(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= d.requested {
		return syscall.EINVAL
	}
	d.queued = append(d.queued, index)
	return nil
}

func (d *Device) readyLocked() bool {
	return d.streaming && len(d.queued) > 0 && !d.held
}

// Dequeue implements capture.Device.
func (d *Device) Dequeue() (capture.Dequeued, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.readyLocked() {
		return capture.Dequeued{}, syscall.EAGAIN
	}
	if d.DequeueErr != nil {
		return capture.Dequeued{}, d.DequeueErr
	}
	index := d.queued[0]
	d.queued = d.queued[1:]
	d.sequence++
	if buf, ok := d.buffers[index]; ok {
		for i := range buf {
			buf[i] = byte(d.sequence)
		}
	}
	return capture.Dequeued{Index: index, BytesUsed: d.format.SizeImage, Sequence: d.sequence}, nil
}

// StreamOn implements capture.Device.
func (d *Device) StreamOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StreamOnErr != nil {
		return d.StreamOnErr
	}
	d.streaming = true
	return nil
}

// StreamOff implements capture.Device.
func (d *Device) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming = false
	d.queued = nil
	return nil
}

// Wait implements capture.Device. Frames are paced at one per millisecond.
func (d *Device) Wait(timeout time.Duration) (bool, error) {
	d.mu.Lock()
	ready := d.readyLocked()
	d.mu.Unlock()
	if !ready {
		if timeout > 0 {
			time.Sleep(min(timeout, 5*time.Millisecond))
		}
		return false, nil
	}
	time.Sleep(time.Millisecond)
	return true, nil
}

// Control implements capture.Device.
func (d *Device) Control(uint, unsafe.Pointer) error {
	return nil
}

// Close implements capture.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}
