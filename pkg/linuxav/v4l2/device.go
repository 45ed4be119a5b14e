//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Device is an open V4L2 capture device.
//
// Methods issue exactly one request each and return raw errno values wrapped
// with the request name, so callers can decide which failures to retry.
type Device struct {
	path string
	fd   int
	cap  Capability
}

// Open opens a capture device in non-blocking mode and verifies that it
// supports video capture with streaming I/O.
func Open(path string) (*Device, error) {
	fd, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	raw := v4l2Capability{}
	if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&raw)); err != nil {
		_ = close(fd)
		return nil, fmt.Errorf("VIDIOC_QUERYCAP on %s: %w", path, err)
	}

	c := fromRawCapability(&raw)
	if !c.CanCapture() {
		_ = close(fd)
		return nil, fmt.Errorf("%s: %w", path, ErrNotCaptureDevice)
	}
	if !c.CanStream() {
		_ = close(fd)
		return nil, fmt.Errorf("%s: %w", path, ErrNoStreaming)
	}

	return &Device{path: path, fd: fd, cap: c}, nil
}

// Path returns the device node the Device was opened from.
func (d *Device) Path() string {
	return d.path
}

// Fd returns the underlying file descriptor.
func (d *Device) Fd() int {
	return d.fd
}

// Capability returns the capabilities queried at open time.
func (d *Device) Capability() Capability {
	return d.cap
}

// SetFormat requests a capture format and returns what the driver granted.
// The granted format is re-read with VIDIOC_G_FMT because drivers may
// substitute a different size or pixel format.
func (d *Device) SetFormat(pix PixFormat) (PixFormat, error) {
	f := v4l2Format{typ: BufTypeVideoCapture, pix: toRawPixFormat(pix)}
	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_S_FMT: %w", err)
	}
	return d.Format()
}

// Format returns the current capture format.
func (d *Device) Format() (PixFormat, error) {
	f := v4l2Format{typ: BufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, fmt.Errorf("VIDIOC_G_FMT: %w", err)
	}
	return fromRawPixFormat(&f.pix), nil
}

// RequestBuffers asks the driver to reserve count mmap buffers and returns
// the number actually granted. A count of zero frees all buffers.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := v4l2RequestBuffers{
		count:  count,
		typ:    BufTypeVideoCapture,
		memory: MemoryMMAP,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("VIDIOC_REQBUFS: %w", err)
	}
	return req.count, nil
}

// QueryBuffer returns the length and mmap offset of a reserved buffer.
func (d *Device) QueryBuffer(index uint32) (Buffer, error) {
	buf := v4l2Buffer{
		index:  index,
		typ:    BufTypeVideoCapture,
		memory: MemoryMMAP,
	}
	if err := ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return Buffer{}, fmt.Errorf("VIDIOC_QUERYBUF index %d: %w", index, err)
	}
	return fromRawBuffer(&buf), nil
}

// Map maps a queried buffer read/write into process memory.
func (d *Device) Map(b Buffer) ([]byte, error) {
	data, err := unix.Mmap(d.fd, int64(b.Offset), int(b.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap buffer %d: %w", b.Index, err)
	}
	return data, nil
}

// Unmap releases a mapping returned by Map.
func (d *Device) Unmap(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// Queue hands the buffer at index to the driver for filling.
func (d *Device) Queue(index uint32) error {
	buf := v4l2Buffer{
		index:  index,
		typ:    BufTypeVideoCapture,
		memory: MemoryMMAP,
	}
	if err := ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf)); err != nil {
		return fmt.Errorf("VIDIOC_QBUF index %d: %w", index, err)
	}
	return nil
}

// Dequeue retrieves a filled buffer. Because the device is opened
// non-blocking, it fails with EAGAIN when no buffer is ready.
func (d *Device) Dequeue() (Buffer, error) {
	buf := v4l2Buffer{
		typ:    BufTypeVideoCapture,
		memory: MemoryMMAP,
	}
	if err := ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return Buffer{}, fmt.Errorf("VIDIOC_DQBUF: %w", err)
	}
	return fromRawBuffer(&buf), nil
}

// StreamOn starts streaming.
func (d *Device) StreamOn() error {
	typ := uint32(BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMON: %w", err)
	}
	return nil
}

// StreamOff stops streaming and returns all buffers to the dequeued state.
func (d *Device) StreamOff() error {
	typ := uint32(BufTypeVideoCapture)
	if err := ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ)); err != nil {
		return fmt.Errorf("VIDIOC_STREAMOFF: %w", err)
	}
	return nil
}

// Wait polls the device for a filled buffer. A zero timeout checks readiness
// without blocking; a negative timeout blocks until a buffer is ready.
// An interrupted poll reports not ready.
func (d *Device) Wait(timeout time.Duration) (bool, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	revents := fds[0].Revents
	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return false, fmt.Errorf("poll revents %#x: %w", revents, unix.EIO)
	}
	return revents&unix.POLLIN != 0, nil
}

// Ioctl issues an arbitrary request against the device. arg must point to
// the structure the request expects.
func (d *Device) Ioctl(request uint, arg unsafe.Pointer) error {
	if err := ioctl(d.fd, request, arg); err != nil {
		return fmt.Errorf("ioctl %#x: %w", request, err)
	}
	return nil
}

// Close closes the device.
func (d *Device) Close() error {
	return close(d.fd)
}

func fromRawBuffer(raw *v4l2Buffer) Buffer {
	return Buffer{
		Index:     raw.index,
		Offset:    raw.offset,
		Length:    raw.length,
		BytesUsed: raw.bytesused,
		Sequence:  raw.sequence,
		Flags:     raw.flags,
	}
}
