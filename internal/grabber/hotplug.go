package grabber

import (
	"github.com/smazurov/framegrab/internal/capture"
	"github.com/smazurov/framegrab/internal/events"
)

// Hotplug actions reported in DeviceHotplugEvent.
const (
	HotplugAdd    = "add"
	HotplugRemove = "remove"
)

// detachment is what the grabber was doing when its device went away.
type detachment struct {
	state      capture.State
	delivering bool
}

// DeviceRemoved releases the session after its device node disappeared.
// What the grabber was doing is remembered for DeviceAdded. Calls while the
// session is closed or already detached do nothing.
func (g *Grabber) DeviceRemoved() {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	prev := g.session.State()
	if g.detached != nil || prev == capture.StateClosed {
		return
	}
	d := &detachment{state: prev, delivering: g.running() || g.interrupted.Load()}
	g.detached = d

	device := g.session.Device()
	g.logger.Warn("Capture device removed", "device", device, "state", prev, "delivering", d.delivering)

	if err := g.pause(); err != nil {
		g.logger.Warn("Delivery did not stop after device removal", "device", device, "error", err)
	}
	if g.session.State().Capturing() {
		if err := g.session.Stop(); err != nil {
			g.fail("stop", err)
		}
	}
	if g.session.State() == capture.StateStopped {
		if err := g.session.Close(); err != nil {
			g.fail("close", err)
		}
	}
	g.publish(events.DeviceHotplugEvent{Device: device, Action: HotplugRemove, Timestamp: now()})
}

// DeviceAdded reopens a device released by DeviceRemoved and brings back
// the activity it had. If the device cannot be opened yet the detachment is
// kept so a later call can retry.
func (g *Grabber) DeviceAdded() error {
	g.lifecycle.Lock()
	defer g.lifecycle.Unlock()

	d := g.detached
	if d == nil || g.session.State() != capture.StateClosed {
		return nil
	}
	device := g.session.Device()

	if _, err := g.open(); err != nil {
		return err
	}
	g.detached = nil

	resumed := false
	defer func() {
		g.publish(events.DeviceHotplugEvent{Device: device, Action: HotplugAdd, Resumed: resumed, Timestamp: now()})
	}()

	if d.state.Capturing() {
		if err := g.start(); err != nil {
			return err
		}
	}
	if d.delivering && g.ctx != nil && g.ctx.Err() == nil {
		if err := g.startProducer(); err != nil {
			return err
		}
		resumed = true
	}
	g.logger.Info("Capture device restored", "device", device, "state", g.session.State(), "delivering", resumed)
	return nil
}
