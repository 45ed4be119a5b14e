package capture

import (
	"time"
	"unsafe"
)

// Driver opens capture devices.
type Driver interface {
	Open(path string) (Device, error)
}

// Device is the set of commands a session issues to an open capture device.
// Errors are returned as the device produced them; the session decides which
// are transient.
type Device interface {
	// SetFormat requests a format and returns what the device granted.
	SetFormat(f Format) (Format, error)
	// RequestBuffers reserves count driver buffers, returning the granted
	// count. A count of zero frees the reservation.
	RequestBuffers(count int) (int, error)
	QueryBuffer(index int) (BufferInfo, error)
	Map(info BufferInfo) ([]byte, error)
	Unmap(data []byte) error
	Queue(index int) error
	// Dequeue takes the oldest filled buffer. It does not block.
	Dequeue() (Dequeued, error)
	StreamOn() error
	StreamOff() error
	// Wait blocks until a filled buffer is available or timeout elapses.
	Wait(timeout time.Duration) (bool, error)
	// Control passes a raw device request through unchanged.
	Control(request uint, arg unsafe.Pointer) error
	Close() error
}

// BufferInfo describes one driver buffer for mapping.
type BufferInfo struct {
	Index  int
	Offset int64
	Length int
}

// Dequeued describes a filled buffer taken from the device.
type Dequeued struct {
	Index     int
	BytesUsed int
	Sequence  int
}
