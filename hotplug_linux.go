//go:build linux

package main

import (
	"context"
	"errors"

	"github.com/smazurov/framegrab/internal/grabber"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/pkg/linuxav/hotplug"
)

// watchHotplug releases and restores the capture device as its node goes
// away and comes back. It returns when ctx is done.
func watchHotplug(ctx context.Context, g *grabber.Grabber, logger logging.Logger) {
	monitor, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
	if err != nil {
		logger.Warn("Device hotplug monitoring unavailable", "error", err)
		return
	}
	defer monitor.Close()

	uevents := make(chan hotplug.Event, 16)
	go func() {
		if runErr := monitor.Run(ctx, uevents); runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.Warn("Device hotplug monitoring stopped", "error", runErr)
		}
	}()

	logger.Info("Watching for capture device hotplug")
	for ev := range uevents {
		if ev.Node() != g.Session().Device() {
			continue
		}
		logger.Debug("Capture device event", "action", ev.Action, "device", ev.Node())
		switch ev.Action {
		case hotplug.ActionRemove:
			g.DeviceRemoved()
		case hotplug.ActionAdd, hotplug.ActionChange:
			if addErr := g.DeviceAdded(); addErr != nil {
				logger.Warn("Failed to restore capture device", "device", ev.Node(), "error", addErr)
			}
		}
	}
}
