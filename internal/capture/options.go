package capture

import (
	"time"

	"github.com/smazurov/framegrab/internal/logging"
)

// Defaults applied to zero Options fields.
const (
	DefaultDevice         = "/dev/video0"
	DefaultWidth          = 640
	DefaultHeight         = 480
	DefaultPixelFormat    = PixelFormatRGB24
	DefaultBufferCount    = 4
	DefaultPollInterval   = 25 * time.Millisecond
	DefaultQuiesceTimeout = 250 * time.Millisecond
	DefaultRestartDelay   = 10 * time.Millisecond
	DefaultCommandRetries = 16
)

// Options configures a Session.
type Options struct {
	Device      string
	Width       int
	Height      int
	PixelFormat PixelFormat // fixed for the lifetime of the session
	Field       Field

	BufferCount    int           // requested pool size, the device may grant fewer
	PollInterval   time.Duration // readiness wait per continuous loop iteration
	QuiesceTimeout time.Duration // how long Stop waits for a running loop
	RestartDelay   time.Duration // pause between stop and start on Restart
	CommandRetries int           // retries for interrupted or busy device commands

	OnStateChange StateChangeCallback
	Logger        logging.Logger
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Device == "" {
		opts.Device = DefaultDevice
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width = DefaultWidth
		opts.Height = DefaultHeight
	}
	if opts.PixelFormat == 0 {
		opts.PixelFormat = DefaultPixelFormat
	}
	if opts.Field == FieldAny {
		opts.Field = FieldInterlaced
	}
	if opts.BufferCount <= 0 {
		opts.BufferCount = DefaultBufferCount
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.QuiesceTimeout <= 0 {
		opts.QuiesceTimeout = DefaultQuiesceTimeout
	}
	if opts.RestartDelay < 0 {
		opts.RestartDelay = 0
	} else if opts.RestartDelay == 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.CommandRetries <= 0 {
		opts.CommandRetries = DefaultCommandRetries
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("capture")
	}
	return opts
}
