package capture

import (
	"errors"
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"github.com/smazurov/framegrab/internal/logging"
)

// handle issues commands to an open device. Commands interrupted by a
// signal or refused as temporarily unavailable are retried; everything else
// surfaces as ErrCodeDeviceError.
type handle struct {
	dev     Device
	retries int
	logger  logging.Logger
}

func newHandle(dev Device, retries int, logger logging.Logger) *handle {
	return &handle{dev: dev, retries: retries, logger: logger}
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}

func (h *handle) do(op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return newError(ErrCodeDeviceError, op, "device command failed", err)
		}
	}
	return newError(ErrCodeDeviceError, op, fmt.Sprintf("device still unavailable after %d retries", h.retries), err)
}

// negotiate requests a format and returns the format the device granted.
func (h *handle) negotiate(want Format) (Format, error) {
	var granted Format
	err := h.do("set format", func() error {
		var err error
		granted, err = h.dev.SetFormat(want)
		return err
	})
	return granted, err
}

func (h *handle) requestBuffers(count int) (int, error) {
	var granted int
	err := h.do("request buffers", func() error {
		var err error
		granted, err = h.dev.RequestBuffers(count)
		return err
	})
	return granted, err
}

func (h *handle) queryBuffer(index int) (BufferInfo, error) {
	var info BufferInfo
	err := h.do("query buffer", func() error {
		var err error
		info, err = h.dev.QueryBuffer(index)
		return err
	})
	return info, err
}

func (h *handle) mapBuffer(info BufferInfo) ([]byte, error) {
	var data []byte
	err := h.do("map buffer", func() error {
		var err error
		data, err = h.dev.Map(info)
		return err
	})
	return data, err
}

func (h *handle) unmapBuffer(data []byte) error {
	return h.do("unmap buffer", func() error {
		return h.dev.Unmap(data)
	})
}

func (h *handle) queue(index int) error {
	return h.do("queue buffer", func() error {
		return h.dev.Queue(index)
	})
}

func (h *handle) dequeue() (Dequeued, error) {
	var d Dequeued
	err := h.do("dequeue buffer", func() error {
		var err error
		d, err = h.dev.Dequeue()
		return err
	})
	return d, err
}

func (h *handle) streamOn() error {
	return h.do("stream on", h.dev.StreamOn)
}

func (h *handle) streamOff() error {
	return h.do("stream off", h.dev.StreamOff)
}

func (h *handle) control(request uint, arg unsafe.Pointer) error {
	return h.do("control", func() error {
		return h.dev.Control(request, arg)
	})
}

// ready waits for a filled buffer. Waits are not retried; an interrupted
// wait reports not ready.
func (h *handle) ready(timeout time.Duration) (bool, error) {
	ok, err := h.dev.Wait(timeout)
	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			return false, nil
		}
		return false, newError(ErrCodeDeviceError, "wait for frame", "device wait failed", err)
	}
	return ok, nil
}

func (h *handle) close() error {
	if err := h.dev.Close(); err != nil {
		return newError(ErrCodeDeviceError, "close", "closing device failed", err)
	}
	return nil
}
