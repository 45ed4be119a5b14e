// Package capture implements a capture session for streaming video devices.
//
// A Session is a state machine over one device:
//
//	closed --Open--> stopped --Start--> started --Deliver--> continuous
//	   ^               |  ^               |  ^                  |
//	   +-----Close-----+  +------Stop-----+  +--stop flag/Stop--+
//
// Open negotiates the frame size and pixel format, Start maps a fresh pool of
// driver buffers and begins streaming, and Stop releases the pool. Frames are
// consumed either one at a time with Frame, which never blocks, or
// continuously with Deliver, which runs a callback for every frame on the
// calling goroutine until the callback or a stop request ends it.
//
// Frames are borrowed views into mapped driver memory. A Frame is valid only
// until the next frame request; use Frame.Clone to keep one.
//
// Failures are returned as *Error values carrying one of the ErrorCode kinds.
// ErrCodeDifferentSize is not fatal: the session keeps running with the size
// the device granted.
//
// The session is safe to drive from two goroutines: a producer running
// Deliver or polling Frame, and a controller calling Stop, SetSize and the
// other lifecycle operations. Stopping a running Deliver loop is
// cooperative; Stop raises the stop flag and waits a bounded time for the
// loop to return.
//
// The device itself is reached through the Driver and Device interfaces.
// NewV4L2Driver provides the Linux implementation.
package capture
