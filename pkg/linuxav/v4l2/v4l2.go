//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for streaming capture with memory-mapped buffers.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Capture
//
// A typical streaming session negotiates a format, maps buffers and then
// cycles them through the driver:
//
//	dev, err := v4l2.Open("/dev/video0")
//	granted, err := dev.SetFormat(v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixFmtRGB24})
//	n, err := dev.RequestBuffers(4)
//	for i := uint32(0); i < n; i++ {
//	    buf, _ := dev.QueryBuffer(i)
//	    data, _ := dev.Map(buf)
//	    _ = dev.Queue(i)
//	}
//	_ = dev.StreamOn()
//	if ready, _ := dev.Wait(time.Second); ready {
//	    buf, _ := dev.Dequeue()
//	    // consume mapped data for buf.Index, then requeue it
//	    _ = dev.Queue(buf.Index)
//	}
//
// The device is opened non-blocking. Dequeue fails with EAGAIN when no
// buffer is ready, so callers poll with Wait first.
package v4l2
