//go:build !linux

package main

import (
	"context"

	"github.com/smazurov/framegrab/internal/grabber"
	"github.com/smazurov/framegrab/internal/logging"
)

func watchHotplug(_ context.Context, _ *grabber.Grabber, logger logging.Logger) {
	logger.Debug("Device hotplug monitoring is only available on Linux")
}
