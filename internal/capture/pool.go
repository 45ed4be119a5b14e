package capture

import (
	"errors"
	"fmt"
)

// bufferPool holds the driver buffers mapped for one capture run. The slice
// position of each mapping is the driver's buffer index.
type bufferPool struct {
	buffers [][]byte
}

// allocatePool reserves up to count buffers and maps every one the device
// grants. On failure nothing stays mapped or reserved.
func allocatePool(h *handle, count int) (*bufferPool, error) {
	granted, err := h.requestBuffers(count)
	if err != nil {
		return nil, err
	}
	if granted <= 0 {
		return nil, newError(ErrCodeDeviceError, "request buffers", "device granted no buffers", nil)
	}
	if granted < count {
		h.logger.Debug("Device granted fewer buffers", "requested", count, "granted", granted)
	}

	p := &bufferPool{buffers: make([][]byte, 0, granted)}
	for i := range granted {
		data, err := p.mapOne(h, i)
		if err != nil {
			if releaseErr := p.release(h); releaseErr != nil {
				h.logger.Warn("Failed to roll back buffer pool", "error", releaseErr)
			}
			return nil, err
		}
		p.buffers = append(p.buffers, data)
	}
	return p, nil
}

func (p *bufferPool) mapOne(h *handle, index int) ([]byte, error) {
	info, err := h.queryBuffer(index)
	if err != nil {
		return nil, err
	}
	if info.Index != index {
		return nil, newError(ErrCodeDeviceError, "query buffer",
			fmt.Sprintf("device described buffer %d when asked for %d", info.Index, index), nil)
	}
	return h.mapBuffer(info)
}

func (p *bufferPool) len() int {
	return len(p.buffers)
}

// buffer returns the mapping for a driver buffer index.
func (p *bufferPool) buffer(index int) ([]byte, bool) {
	if index < 0 || index >= len(p.buffers) {
		return nil, false
	}
	return p.buffers[index], true
}

// release unmaps every buffer, attempting all of them even after a failure,
// and frees the device-side reservation. Only unmap failures are reported.
func (p *bufferPool) release(h *handle) error {
	var errs []error
	for i, data := range p.buffers {
		if err := h.unmapBuffer(data); err != nil {
			errs = append(errs, fmt.Errorf("buffer %d: %w", i, err))
		}
	}
	count := len(p.buffers)
	p.buffers = nil

	if _, err := h.requestBuffers(0); err != nil {
		h.logger.Warn("Failed to free driver buffers", "error", err)
	}

	if len(errs) > 0 {
		return newError(ErrCodeDeviceError, "release buffers",
			fmt.Sprintf("%d of %d buffers failed to unmap", len(errs), count), errors.Join(errs...))
	}
	return nil
}
