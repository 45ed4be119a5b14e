// Package grabber runs a capture session as a service: it keeps continuous
// delivery going on a producer goroutine, holds a copy of the latest frame
// for readers, and applies device and size changes by walking the session
// through its recovery paths.
package grabber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/framegrab/internal/capture"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/metrics"
)

// DefaultPauseTimeout bounds how long Pause waits for the producer to return.
const DefaultPauseTimeout = 2 * time.Second

const reraiseInterval = 10 * time.Millisecond

// Stop reasons reported in DeliveryStoppedEvent.
const (
	ReasonStopRequested = "stop requested"
	ReasonCancelled     = "cancelled"
	ReasonDeviceError   = "device error"
)

// ErrNotRunning is returned by Resume after the run context is done.
var ErrNotRunning = errors.New("grabber is not running")

// Publisher receives grabber events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Grabber.
type Options struct {
	Capture      capture.Options
	Events       Publisher // nil disables events
	Logger       logging.Logger
	PauseTimeout time.Duration
}

// Settings is a requested change of device or frame size. Zero fields keep
// the current value.
type Settings struct {
	Device string
	Width  int
	Height int
}

// Applied reports the outcome of Apply.
type Applied struct {
	Device        string
	Size          capture.Size
	DifferentSize bool
}

// Grabber owns a capture session and its producer goroutine.
type Grabber struct {
	session      *capture.Session
	events       Publisher
	logger       logging.Logger
	pauseTimeout time.Duration

	// lifecycle serializes Run, Pause, Resume, Apply and Shutdown.
	lifecycle sync.Mutex
	ctx       context.Context
	unhook    func() bool
	producer  *producer
	detached  *detachment

	// interrupted is set when a delivery run ends on a device error.
	interrupted atomic.Bool

	mu     sync.RWMutex
	latest *capture.Frame
}

type producer struct {
	runID string
	done  chan struct{}
}

// New creates a grabber and its capture session. State changes of the
// session are published as events and recorded in metrics.
func New(driver capture.Driver, opts *Options) *Grabber {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = logging.GetLogger("grabber")
	}
	if o.PauseTimeout <= 0 {
		o.PauseTimeout = DefaultPauseTimeout
	}

	g := &Grabber{
		events:       o.Events,
		logger:       o.Logger,
		pauseTimeout: o.PauseTimeout,
	}

	sessionOpts := o.Capture
	chained := sessionOpts.OnStateChange
	sessionOpts.OnStateChange = func(oldState, newState capture.State) {
		g.stateChanged(oldState, newState)
		if chained != nil {
			chained(oldState, newState)
		}
	}
	g.session = capture.NewSession(driver, &sessionOpts)
	metrics.SetState(g.session.Device(), string(capture.StateClosed))
	return g
}

// Session returns the underlying capture session.
func (g *Grabber) Session() *capture.Session {
	return g.session
}

// Run opens the device if needed, starts capture and launches continuous
// delivery. It returns once delivery is running. Cancelling ctx asks the
// producer to stop; Shutdown still has to be called to release the device.
// If the device cannot be opened the error is returned and the grabber waits
// for DeviceAdded to start delivery.
func (g *Grabber) Run(ctx context.Context) error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	if g.ctx != nil && g.ctx.Err() == nil {
		return errors.New("grabber already running")
	}
	g.ctx = ctx
	if g.unhook != nil {
		g.unhook()
	}
	g.unhook = context.AfterFunc(ctx, g.session.RequestStop)

	if g.session.State() == capture.StateClosed {
		if _, err := g.open(); err != nil {
			// Treat a missing device like one that was unplugged so the
			// next DeviceAdded brings delivery up.
			if g.detached == nil {
				g.detached = &detachment{state: capture.StateStarted, delivering: true}
			}
			return err
		}
	}
	if g.session.State() == capture.StateStopped {
		if err := g.start(); err != nil {
			return err
		}
	}
	return g.startProducer()
}

// Delivering reports whether the producer goroutine is running.
func (g *Grabber) Delivering() bool {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	return g.running()
}

// Latest returns a copy of the most recently delivered frame.
func (g *Grabber) Latest() (*capture.Frame, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.latest == nil {
		return nil, false
	}
	return g.latest.Clone(), true
}

// Pull polls the session for a single frame. It is only valid while
// delivery is paused and capture is started; (nil, nil) means no frame was
// ready. The returned frame owns its data.
func (g *Grabber) Pull() (*capture.Frame, error) {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	device := g.session.Device()
	f, err := g.session.Frame()
	if err != nil {
		g.fail("get frame", err)
		return nil, err
	}
	if f == nil {
		metrics.NoData(device)
		return nil, nil
	}
	clone := f.Clone()
	g.mu.Lock()
	g.latest = clone
	g.mu.Unlock()
	metrics.FrameDelivered(device, time.Now())
	return clone.Clone(), nil
}

// Pause stops continuous delivery and leaves capture started with its
// buffers mapped.
func (g *Grabber) Pause() error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()
	g.interrupted.Store(false)
	return g.pause()
}

// Resume restarts continuous delivery, starting capture first if it is stopped.
func (g *Grabber) Resume() error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	if g.ctx == nil || g.ctx.Err() != nil {
		return ErrNotRunning
	}
	if g.running() {
		return nil
	}
	if g.session.State() == capture.StateStopped {
		if err := g.start(); err != nil {
			return err
		}
	}
	return g.startProducer()
}

// Apply changes device and frame size. Capture is stopped for the change
// and brought back to the activity it had before: a new device is closed
// and reopened, a new size renegotiated while stopped. A size the device
// adjusted is reported in Applied, not as an error.
func (g *Grabber) Apply(s Settings) (Applied, error) {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	current := g.session.Size()
	deviceChanged := s.Device != "" && s.Device != g.session.Device()
	sizeChanged := s.Width > 0 && s.Height > 0 && (s.Width != current.Width || s.Height != current.Height)

	result := Applied{Device: g.session.Device(), Size: current}
	if !deviceChanged && !sizeChanged {
		return result, nil
	}

	prev := g.session.State()
	delivering := g.running()
	if err := g.pause(); err != nil {
		return result, err
	}
	if prev.Capturing() {
		if err := g.session.Stop(); err != nil {
			g.fail("stop", err)
			return result, err
		}
	}

	if deviceChanged {
		g.logger.Info("Switching capture device", "from", result.Device, "to", s.Device)
		if prev != capture.StateClosed {
			if err := g.session.Close(); err != nil {
				g.fail("close", err)
			}
		}
		metrics.Delete(result.Device)
		g.detached = nil
		if err := g.session.SetDevice(s.Device); err != nil {
			g.fail("set device", err)
			return result, err
		}
		result.Device = s.Device
		metrics.SetState(s.Device, string(g.session.State()))
		if prev != capture.StateClosed {
			different, err := g.open()
			if err != nil {
				return result, err
			}
			result.DifferentSize = result.DifferentSize || different
		}
	}

	if sizeChanged {
		different, err := g.setSize(s.Width, s.Height)
		if err != nil {
			result.Size = g.session.Size()
			return result, err
		}
		result.DifferentSize = result.DifferentSize || different
	}
	result.Size = g.session.Size()

	if prev.Capturing() {
		if err := g.start(); err != nil {
			return result, err
		}
	}
	if delivering {
		if err := g.startProducer(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Shutdown stops delivery and capture and closes the device.
func (g *Grabber) Shutdown() error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	var errs []error
	if err := g.pause(); err != nil {
		errs = append(errs, err)
	}
	if g.session.State().Capturing() {
		if err := g.session.Stop(); err != nil {
			g.fail("stop", err)
			errs = append(errs, err)
		}
	}
	if g.session.State() == capture.StateStopped {
		if err := g.session.Close(); err != nil {
			g.fail("close", err)
			errs = append(errs, err)
		}
	}
	if g.unhook != nil {
		g.unhook()
		g.unhook = nil
	}
	g.ctx = nil
	g.detached = nil
	g.interrupted.Store(false)

	g.logger.Info("Grabber shut down", "device", g.session.Device())
	return errors.Join(errs...)
}

func (g *Grabber) running() bool {
	if g.producer == nil {
		return false
	}
	select {
	case <-g.producer.done:
		g.producer = nil
		return false
	default:
		return true
	}
}

func (g *Grabber) pause() error {
	if !g.running() {
		return nil
	}
	p := g.producer
	g.session.RequestStop()

	// A producer that has not entered its loop yet clears the request on
	// entry, so it is raised again until the producer returns.
	ticker := time.NewTicker(reraiseInterval)
	defer ticker.Stop()
	timer := time.NewTimer(g.pauseTimeout)
	defer timer.Stop()
	for {
		select {
		case <-p.done:
			g.producer = nil
			return nil
		case <-ticker.C:
			g.session.RequestStop()
		case <-timer.C:
			return fmt.Errorf("delivery run %s did not stop within %s", p.runID, g.pauseTimeout)
		}
	}
}

func (g *Grabber) open() (bool, error) {
	requested := g.session.Size()
	err := g.session.Open()
	if err != nil && !capture.IsDifferentSize(err) {
		g.fail("open", err)
		return false, err
	}
	g.publishSize(requested)
	return err != nil, nil
}

func (g *Grabber) setSize(width, height int) (bool, error) {
	granted, err := g.session.SetSize(width, height)
	if err != nil && !capture.IsDifferentSize(err) {
		g.fail("set size", err)
		return false, err
	}
	g.publishSize(capture.Size{Width: width, Height: height})
	if err != nil {
		g.logger.Info("Device adjusted frame size", "requested", capture.Size{Width: width, Height: height}, "granted", granted)
	}
	return err != nil, nil
}

func (g *Grabber) start() error {
	if err := g.session.Start(); err != nil {
		g.fail("start", err)
		return err
	}
	return nil
}

func (g *Grabber) startProducer() error {
	if g.session.State() != capture.StateStarted {
		return fmt.Errorf("cannot deliver while %s", g.session.State())
	}
	p := &producer{runID: uuid.NewString(), done: make(chan struct{})}
	g.producer = p
	g.interrupted.Store(false)
	go g.deliver(g.ctx, p)
	return nil
}

func (g *Grabber) deliver(ctx context.Context, p *producer) {
	defer close(p.done)

	device := g.session.Device()
	g.publish(events.DeliveryStartedEvent{Device: device, RunID: p.runID, Timestamp: now()})
	g.logger.Info("Delivery started", "device", device, "run_id", p.runID)

	var frames int64
	err := g.session.Deliver(func(f *capture.Frame) capture.Directive {
		clone := f.Clone()
		g.mu.Lock()
		g.latest = clone
		g.mu.Unlock()
		frames++
		metrics.FrameDelivered(device, time.Now())
		if ctx != nil && ctx.Err() != nil {
			return capture.Stop
		}
		return capture.Continue
	})

	reason := ReasonStopRequested
	switch {
	case err != nil:
		reason = ReasonDeviceError
		g.interrupted.Store(true)
		g.fail("deliver", err)
	case ctx != nil && ctx.Err() != nil:
		reason = ReasonCancelled
	}
	g.logger.Info("Delivery stopped", "device", device, "run_id", p.runID, "frames", frames, "reason", reason)
	g.publish(events.DeliveryStoppedEvent{Device: device, RunID: p.runID, Frames: frames, Reason: reason, Timestamp: now()})
}

func (g *Grabber) stateChanged(oldState, newState capture.State) {
	device := g.session.Device()
	metrics.SetState(device, string(newState))
	metrics.SetBuffers(device, g.session.BufferCount())
	g.publish(events.SessionStateChangedEvent{
		Device:    device,
		OldState:  string(oldState),
		NewState:  string(newState),
		Timestamp: now(),
	})
}

func (g *Grabber) publishSize(requested capture.Size) {
	f := g.session.Format()
	g.publish(events.FrameSizeEvent{
		Device:          g.session.Device(),
		Width:           f.Width,
		Height:          f.Height,
		RequestedWidth:  requested.Width,
		RequestedHeight: requested.Height,
		PixelFormat:     f.PixelFormat.String(),
		Timestamp:       now(),
	})
}

// fail records a failed session operation.
func (g *Grabber) fail(op string, err error) {
	device := g.session.Device()
	code := string(capture.CodeOf(err))
	if code == "" {
		code = string(capture.ErrCodeDeviceError)
	}
	g.logger.Warn("Capture operation failed", "device", device, "op", op, "error", err)
	metrics.CaptureError(device, code)
	g.publish(events.CaptureErrorEvent{
		Device:    device,
		Operation: op,
		Code:      code,
		Error:     err.Error(),
		Timestamp: now(),
	})
}

func (g *Grabber) publish(ev events.Event) {
	if g.events != nil {
		g.events.Publish(ev)
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
