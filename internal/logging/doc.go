// Package logging provides structured logging with per-module levels.
//
// Every package logs through a module logger:
//
//	logger := logging.GetLogger("capture")
//	logger.Info("Capture started", "device", "/dev/video0", "buffers", 4)
//
// Initialize sets the global level, the stdout format (text or json) and
// per-module overrides. Loggers created earlier follow the new levels.
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"capture": "debug",
//			"api":     "warn",
//		},
//	})
//
// Records go to stdout when it is connected to a terminal, pipe or file, to
// the systemd journal when journald is running, and to an in-memory history
// of recent records served by the HTTP API. On a systemd host:
//
//	journalctl -t framegrab -f
//	journalctl -t framegrab MODULE=capture DEVICE=/dev/video0
//
// The TOML configuration mirrors Config:
//
//	[logging]
//	level = "info"
//	format = "text"
//	capture = "debug"
package logging
