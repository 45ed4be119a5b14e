package capture

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/smazurov/framegrab/internal/logging"
)

// Session drives one capture device through its lifecycle.
type Session struct {
	driver Driver
	opts   Options
	logger logging.Logger

	// op serializes lifecycle operations. Frame loops never take it.
	op sync.Mutex

	// mu guards the fields below. It is never held across a device command.
	mu       sync.Mutex
	state    State
	busy     bool          // a lifecycle operation owns the device
	loopDone chan struct{} // closed when the active frame loop returns
	device   string
	size     Size
	format   Format
	handle   *handle
	pool     *bufferPool
	held     int // buffer lent out by Frame, -1 when none

	stop atomic.Bool
}

// NewSession creates a closed session. Zero option fields take the package defaults.
func NewSession(driver Driver, opts *Options) *Session {
	o := opts.withDefaults()
	return &Session{
		driver: driver,
		opts:   o,
		logger: o.Logger,
		state:  StateClosed,
		device: o.Device,
		size:   Size{Width: o.Width, Height: o.Height},
		held:   -1,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the configured device path.
func (s *Session) Device() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Size returns the frame size. After negotiation this is the granted size.
func (s *Session) Size() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Format returns the last format granted by the device. Before the first
// negotiation it reports the requested format.
func (s *Session) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format.PixelFormat != 0 {
		return s.format
	}
	return Format{
		Width:       s.size.Width,
		Height:      s.size.Height,
		PixelFormat: s.opts.PixelFormat,
		Field:       s.opts.Field,
	}
}

// BufferCount returns the number of mapped buffers, 0 when not capturing.
func (s *Session) BufferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return 0
	}
	return s.pool.len()
}

// RequestStop asks a running Deliver loop to return. The request stays
// raised until the loop honours it, ClearStop is called or a new Deliver starts.
func (s *Session) RequestStop() {
	s.stop.Store(true)
}

// ClearStop withdraws a stop request.
func (s *Session) ClearStop() {
	s.stop.Store(false)
}

// StopRequested reports whether a stop request is raised.
func (s *Session) StopRequested() bool {
	return s.stop.Load()
}

// SetDevice changes the device path. Only valid while closed.
func (s *Session) SetDevice(path string) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.state != StateClosed {
		return badState("set device", s.state)
	}
	s.device = path
	return nil
}

// Open opens the device and negotiates the session's size and pixel format.
// A DifferentSize error leaves the session stopped with the granted size.
func (s *Session) Open() error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.open()
}

// Close releases the device. Only valid while stopped. The session ends up
// Closed even when the driver reports a close error: the descriptor is
// released by the kernel either way, and the error is still returned.
func (s *Session) Close() error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.close()
}

// Reopen closes and reopens the device, keeping the negotiated size.
func (s *Session) Reopen() error {
	s.op.Lock()
	defer s.op.Unlock()

	if st := s.State(); st != StateStopped {
		return badState("reopen", st)
	}
	if err := s.close(); err != nil {
		return err
	}
	return s.open()
}

// SetSize renegotiates the frame size while stopped and returns the size in
// effect afterwards. A DifferentSize error carries the granted size.
func (s *Session) SetSize(width, height int) (Size, error) {
	s.op.Lock()
	defer s.op.Unlock()

	if err := s.claim("set size", StateStopped); err != nil {
		return s.Size(), err
	}
	// A non-positive size can never be granted; report it as a failed device
	// command and leave the negotiated size alone.
	if width <= 0 || height <= 0 {
		s.unclaim()
		return s.Size(), newError(ErrCodeDeviceError, "set size", fmt.Sprintf("invalid frame size %dx%d", width, height), nil)
	}

	granted, err := s.negotiate("set size", s.handle, Size{Width: width, Height: height})
	if err == nil || IsDifferentSize(err) {
		s.mu.Lock()
		s.size = granted.Size()
		s.format = granted
		s.mu.Unlock()
		s.logger.Info("Frame size negotiated", "device", s.device, "requested", Size{width, height}, "granted", granted.Size())
	} else if IsCode(err, ErrCodeWrongPixelFormat) {
		// Put the device back on the format frames are labelled with.
		if _, restoreErr := s.handle.negotiate(s.Format()); restoreErr != nil {
			s.logger.Warn("Failed to restore previous format", "device", s.device, "error", restoreErr)
		}
	}
	s.release(StateStopped)
	return s.Size(), err
}

// Start maps a fresh buffer pool and begins streaming.
func (s *Session) Start() error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.start()
}

// Stop ends streaming and releases the buffer pool. When a Deliver loop is
// running it is asked to return and Stop waits up to the quiesce timeout for
// it; if the loop does not return in time Stop fails with BadState and
// nothing is torn down.
func (s *Session) Stop() error {
	s.op.Lock()
	defer s.op.Unlock()
	return s.stopCapture("stop")
}

// Restart stops and starts capture with a fresh buffer pool. A running
// Deliver loop is stopped and not resumed.
func (s *Session) Restart() error {
	s.op.Lock()
	defer s.op.Unlock()

	if err := s.stopCapture("restart"); err != nil {
		return err
	}
	time.Sleep(s.opts.RestartDelay)
	return s.start()
}

// Control passes a raw device request through while the device is open.
func (s *Session) Control(request uint, arg unsafe.Pointer) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	h, st := s.handle, s.state
	s.mu.Unlock()
	if h == nil {
		return badState("control", st)
	}
	return h.control(request, arg)
}

// Frame returns the next captured frame without blocking. It returns
// (nil, nil) when no frame is ready. The frame's buffer stays with the
// caller until the next Frame or Deliver call.
func (s *Session) Frame() (*Frame, error) {
	loop, err := s.enterLoop("get frame", false)
	if err != nil {
		return nil, err
	}
	defer s.exitLoop(loop, false)

	ready, err := loop.handle.ready(0)
	if err != nil || !ready {
		return nil, err
	}
	d, err := loop.handle.dequeue()
	if err != nil {
		return nil, err
	}
	frame, err := loop.frame(d)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.held = d.Index
	s.mu.Unlock()
	return frame, nil
}

// Deliver runs fn for every captured frame on the calling goroutine until
// fn returns Stop, a stop is requested or the device fails. The session is
// continuous while Deliver runs and started again when it returns.
//
// The stop request is checked before waiting for each frame and again after
// a frame is dequeued. A frame dequeued after a stop request is requeued
// without being delivered. The request is not checked after fn returns.
func (s *Session) Deliver(fn FrameFunc) error {
	loop, err := s.enterLoop("deliver", true)
	if err != nil {
		return err
	}
	defer s.exitLoop(loop, true)

	s.logger.Debug("Continuous delivery started", "device", s.device)
	h := loop.handle
	for {
		if s.stop.Load() {
			return nil
		}
		ready, err := h.ready(s.opts.PollInterval)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}
		d, err := h.dequeue()
		if err != nil {
			return err
		}
		if s.stop.Load() {
			return h.queue(d.Index)
		}
		frame, err := loop.frame(d)
		if err != nil {
			return err
		}
		directive := fn(frame)
		if err := h.queue(d.Index); err != nil {
			return err
		}
		if directive == Stop {
			return nil
		}
	}
}

// frameLoop is what a frame loop captures from the session when it begins.
type frameLoop struct {
	handle *handle
	pool   *bufferPool
	format Format
	done   chan struct{}
}

func (l *frameLoop) frame(d Dequeued) (*Frame, error) {
	data, ok := l.pool.buffer(d.Index)
	if !ok {
		return nil, newError(ErrCodeDeviceError, "dequeue buffer",
			fmt.Sprintf("device returned unknown buffer %d", d.Index), nil)
	}
	n := d.BytesUsed
	if n <= 0 || n > len(data) {
		n = min(l.format.SizeImage, len(data))
		if n <= 0 {
			n = len(data)
		}
	}
	return &Frame{
		Data:        data[:n],
		Index:       d.Index,
		Sequence:    d.Sequence,
		Width:       l.format.Width,
		Height:      l.format.Height,
		Stride:      l.format.stride(),
		PixelFormat: l.format.PixelFormat,
	}, nil
}

func (s *Session) enterLoop(op string, deliver bool) (*frameLoop, error) {
	s.mu.Lock()
	if s.busy || s.state != StateStarted {
		st := s.state
		s.mu.Unlock()
		return nil, badState(op, st)
	}
	s.state = StateContinuous
	s.loopDone = make(chan struct{})
	if deliver {
		s.stop.Store(false)
	}
	loop := &frameLoop{handle: s.handle, pool: s.pool, format: s.format, done: s.loopDone}
	held := s.held
	s.held = -1
	s.mu.Unlock()

	if deliver {
		s.notify(StateStarted, StateContinuous)
	}
	if held >= 0 {
		if err := loop.handle.queue(held); err != nil {
			s.exitLoop(loop, deliver)
			return nil, err
		}
	}
	return loop, nil
}

func (s *Session) exitLoop(loop *frameLoop, notify bool) {
	s.mu.Lock()
	s.state = StateStarted
	s.loopDone = nil
	s.mu.Unlock()

	if notify {
		s.logger.Debug("Continuous delivery ended", "device", s.device)
		s.notify(StateContinuous, StateStarted)
	}
	close(loop.done)
}

// claim takes ownership of the session for a lifecycle operation.
func (s *Session) claim(op string, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || !slices.Contains(from, s.state) {
		return badState(op, s.state)
	}
	s.busy = true
	return nil
}

// unclaim gives up ownership without a state change.
func (s *Session) unclaim() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// release gives up ownership and moves to the given state.
func (s *Session) release(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.busy = false
	s.mu.Unlock()

	if from != to {
		s.notify(from, to)
	}
}

func (s *Session) notify(from, to State) {
	s.logger.Debug("Capture state changed", "device", s.device, "from", from, "to", to)
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(from, to)
	}
}

// negotiate requests the session's pixel format at the given size.
func (s *Session) negotiate(op string, h *handle, size Size) (Format, error) {
	want := Format{
		Width:       size.Width,
		Height:      size.Height,
		PixelFormat: s.opts.PixelFormat,
		Field:       s.opts.Field,
	}
	granted, err := h.negotiate(want)
	if err != nil {
		return Format{}, err
	}
	if granted.PixelFormat != want.PixelFormat {
		return granted, newError(ErrCodeWrongPixelFormat, op,
			fmt.Sprintf("device granted %s instead of %s", granted.PixelFormat, want.PixelFormat), nil)
	}
	if granted.Size() != size {
		return granted, newError(ErrCodeDifferentSize, op,
			fmt.Sprintf("device granted %s instead of %s", granted.Size(), size), nil)
	}
	return granted, nil
}

func (s *Session) open() error {
	if err := s.claim("open", StateClosed); err != nil {
		return err
	}
	s.mu.Lock()
	path, size := s.device, s.size
	s.mu.Unlock()

	if path == "" {
		s.release(StateClosed)
		return newError(ErrCodeCannotOpen, "open", "no device path set", nil)
	}
	dev, err := s.driver.Open(path)
	if err != nil {
		s.release(StateClosed)
		return newError(ErrCodeCannotOpen, "open", fmt.Sprintf("cannot open %s", path), err)
	}

	h := newHandle(dev, s.opts.CommandRetries, s.logger)
	granted, err := s.negotiate("open", h, size)
	if err != nil && !IsDifferentSize(err) {
		if closeErr := h.close(); closeErr != nil {
			s.logger.Warn("Failed to close device after rejected format", "device", path, "error", closeErr)
		}
		s.release(StateClosed)
		if IsCode(err, ErrCodeDeviceError) {
			return newError(ErrCodeWrongPixelFormat, "open", "device rejected format", err)
		}
		return err
	}

	s.mu.Lock()
	s.handle = h
	s.size = granted.Size()
	s.format = granted
	s.mu.Unlock()
	s.release(StateStopped)

	s.logger.Info("Capture device opened", "device", path, "size", granted.Size(), "pixel_format", granted.PixelFormat)
	return err
}

func (s *Session) close() error {
	if err := s.claim("close", StateStopped); err != nil {
		return err
	}
	err := s.handle.close()

	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()
	s.release(StateClosed)

	s.logger.Info("Capture device closed", "device", s.device)
	return err
}

func (s *Session) start() error {
	if err := s.claim("start", StateStopped); err != nil {
		return err
	}
	h := s.handle

	pool, err := allocatePool(h, s.opts.BufferCount)
	if err != nil {
		s.release(StateStopped)
		return err
	}
	for i := range pool.len() {
		if err := h.queue(i); err != nil {
			s.abortStart(h, pool)
			return err
		}
	}
	if err := h.streamOn(); err != nil {
		s.abortStart(h, pool)
		return err
	}

	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()
	s.release(StateStarted)

	s.logger.Info("Capture started", "device", s.device, "buffers", pool.len(), "size", s.Size())
	return nil
}

// abortStart undoes a partially started capture and returns to stopped.
func (s *Session) abortStart(h *handle, pool *bufferPool) {
	// Stream off also returns queued buffers to the driver.
	if err := h.streamOff(); err != nil {
		s.logger.Debug("Stream off after failed start", "error", err)
	}
	if err := pool.release(h); err != nil {
		s.logger.Warn("Failed to release buffers after failed start", "error", err)
	}
	s.release(StateStopped)
}

func (s *Session) stopCapture(op string) error {
	s.mu.Lock()
	if s.busy || !s.state.Capturing() {
		st := s.state
		s.mu.Unlock()
		return badState(op, st)
	}
	s.busy = true
	done := s.loopDone
	if done != nil {
		s.stop.Store(true)
	}
	s.mu.Unlock()

	if done != nil {
		timer := time.NewTimer(s.opts.QuiesceTimeout)
		defer timer.Stop()
		select {
		case <-done:
			s.stop.Store(false)
		case <-timer.C:
			s.unclaim()
			return newError(ErrCodeBadState, op,
				fmt.Sprintf("frame loop did not return within %s", s.opts.QuiesceTimeout), nil)
		}
	}

	h := s.handle
	if err := h.streamOff(); err != nil {
		s.release(StateStarted)
		return err
	}

	// Stream off hands every buffer back, including one lent out by Frame.
	s.mu.Lock()
	pool := s.pool
	s.pool = nil
	s.held = -1
	s.mu.Unlock()
	err := pool.release(h)
	s.release(StateStopped)

	s.logger.Info("Capture stopped", "device", s.device)
	return err
}
