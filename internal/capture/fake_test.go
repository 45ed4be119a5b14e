package capture

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"testing"
	"time"
	"unsafe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errFake = errors.New("fake device failure")

// fakeDriver hands out one fakeDevice per path.
type fakeDriver struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	opens   int
}

func newFakeDriver(path string, dev *fakeDevice) *fakeDriver {
	return &fakeDriver{devices: map[string]*fakeDevice{path: dev}}
}

func (d *fakeDriver) Open(path string) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[path]
	if !ok {
		return nil, syscall.ENOENT
	}
	if dev.openErr != nil {
		return nil, dev.openErr
	}
	d.opens++
	dev.mu.Lock()
	dev.closed = false
	dev.mu.Unlock()
	return dev, nil
}

// fakeDevice simulates a streaming capture device. A frame is ready whenever
// the device is streaming with at least one queued buffer, unless frames are
// held back.
//
// capturetest.Device covers what other packages need. This one stays in
// package capture because capturetest imports capture, and the pool and
// session tests need failure knobs (per-buffer Map, Unmap, StreamOff,
// transient Queue errors) plus access to unexported session state.
type fakeDevice struct {
	mu sync.Mutex

	// Behaviour knobs, set before use.
	openErr       error
	grant         func(want Format) Format // adjusts the granted format
	setFormatErr  error
	maxBuffers    int // 0 means grant what is asked
	mapFailAt     int // buffer index whose Map fails, -1 for none
	unmapErr      error
	streamOnErr   error
	streamOffErr  error
	waitErr       error
	transientLeft int // Queue calls that fail with EINTR before succeeding
	holdFrames    bool
	onDequeue     func()

	// Observed state.
	format     Format
	requested  int
	mapped     map[*byte]int
	mapCount   int
	queued     []int
	streaming  bool
	sequence   int
	closed     bool
	closeCount int
	controls   []uint
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{mapFailAt: -1, mapped: make(map[*byte]int)}
}

func rgbFormat(w, h int) Format {
	return Format{
		Width:        w,
		Height:       h,
		PixelFormat:  PixelFormatRGB24,
		Field:        FieldInterlaced,
		BytesPerLine: w * 3,
		SizeImage:    w * h * 3,
	}
}

func (d *fakeDevice) SetFormat(want Format) (Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setFormatErr != nil {
		return Format{}, d.setFormatErr
	}
	granted := want
	if d.grant != nil {
		granted = d.grant(want)
	}
	granted.BytesPerLine = granted.Width * 3
	granted.SizeImage = granted.Width * granted.Height * 3
	d.format = granted
	return granted, nil
}

func (d *fakeDevice) RequestBuffers(count int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if count > 0 && d.maxBuffers > 0 && count > d.maxBuffers {
		count = d.maxBuffers
	}
	d.requested = count
	if count == 0 {
		d.queued = nil
	}
	return count, nil
}

func (d *fakeDevice) QueryBuffer(index int) (BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index >= d.requested {
		return BufferInfo{}, syscall.EINVAL
	}
	return BufferInfo{Index: index, Offset: int64(index * d.format.SizeImage), Length: d.format.SizeImage}, nil
}

func (d *fakeDevice) Map(info BufferInfo) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Index == d.mapFailAt {
		return nil, syscall.ENOMEM
	}
	data := make([]byte, info.Length)
	d.mapped[&data[0]] = info.Index
	d.mapCount++
	return data, nil
}

func (d *fakeDevice) Unmap(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.mapped, &data[0])
	return d.unmapErr
}

func (d *fakeDevice) Queue(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transientLeft > 0 {
		d.transientLeft--
		return syscall.EINTR
	}
	if index < 0 || index >= d.requested {
		return syscall.EINVAL
	}
	d.queued = append(d.queued, index)
	return nil
}

func (d *fakeDevice) readyLocked() bool {
	return d.streaming && len(d.queued) > 0 && !d.holdFrames
}

func (d *fakeDevice) Dequeue() (Dequeued, error) {
	d.mu.Lock()
	if !d.readyLocked() {
		d.mu.Unlock()
		return Dequeued{}, syscall.EAGAIN
	}
	index := d.queued[0]
	d.queued = d.queued[1:]
	d.sequence++
	dq := Dequeued{Index: index, BytesUsed: d.format.SizeImage, Sequence: d.sequence}
	hook := d.onDequeue
	d.mu.Unlock()

	if hook != nil {
		hook()
	}
	return dq, nil
}

func (d *fakeDevice) StreamOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streamOnErr != nil {
		return d.streamOnErr
	}
	d.streaming = true
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streamOffErr != nil {
		return d.streamOffErr
	}
	d.streaming = false
	d.queued = nil
	return nil
}

func (d *fakeDevice) Wait(timeout time.Duration) (bool, error) {
	d.mu.Lock()
	ready, err := d.readyLocked(), d.waitErr
	d.mu.Unlock()
	if err != nil {
		return false, err
	}
	if !ready && timeout > 0 {
		time.Sleep(min(timeout, 5*time.Millisecond))
	}
	return ready, nil
}

func (d *fakeDevice) Control(request uint, _ unsafe.Pointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.controls = append(d.controls, request)
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.closeCount++
	return nil
}

func (d *fakeDevice) set(fn func(d *fakeDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

func (d *fakeDevice) mappedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mapped)
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

const testDevice = "/dev/video9"

func newTestSession(t *testing.T, dev *fakeDevice, opts *Options) *Session {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	opts.Device = testDevice
	opts.Logger = testLogger()
	if opts.QuiesceTimeout == 0 {
		opts.QuiesceTimeout = 200 * time.Millisecond
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Millisecond
	}
	return NewSession(newFakeDriver(testDevice, dev), opts)
}

// sessionIn returns a session driven into the given state.
func sessionIn(t *testing.T, dev *fakeDevice, state State) *Session {
	t.Helper()
	s := newTestSession(t, dev, nil)
	if state == StateClosed {
		return s
	}
	if err := s.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if state == StateStopped {
		return s
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func assertCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s error, got %s (%v)", code, got, err)
	}
}

func assertState(t *testing.T, s *Session, want State) {
	t.Helper()
	if got := s.State(); got != want {
		t.Fatalf("expected state %s, got %s", want, got)
	}
}
