package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/framegrab/cmd"
	"github.com/smazurov/framegrab/internal/api"
	"github.com/smazurov/framegrab/internal/capture"
	"github.com/smazurov/framegrab/internal/config"
	"github.com/smazurov/framegrab/internal/devices"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/grabber"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/metrics/exporters"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Capture settings
	CaptureDevice           string `help:"Capture device path" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureWidth            int    `help:"Requested frame width" default:"640" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight           int    `help:"Requested frame height" default:"480" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CapturePixelFormat      string `help:"FourCC pixel format (RGB3, BGR3, YUYV)" default:"RGB3" toml:"capture.pixel_format" env:"CAPTURE_PIXEL_FORMAT"`
	CaptureBuffers          int    `help:"Driver buffers to request" default:"4" toml:"capture.buffers" env:"CAPTURE_BUFFERS"`
	CapturePollIntervalMs   int    `help:"Readiness wait per delivery loop iteration in milliseconds" default:"25" toml:"capture.poll_interval_ms" env:"CAPTURE_POLL_INTERVAL_MS"`
	CaptureQuiesceTimeoutMs int    `help:"How long stop waits for delivery to end in milliseconds" default:"250" toml:"capture.quiesce_timeout_ms" env:"CAPTURE_QUIESCE_TIMEOUT_MS"`
	CaptureHotplug          bool   `help:"Release and restore the device when it is unplugged and plugged back" default:"true" toml:"capture.hotplug" env:"CAPTURE_HOTPLUG"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Metrics settings
	MetricsEnabled bool `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsSSE     bool `help:"Publish capture stats on the event stream" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingGrabber string `help:"Grabber logging level" default:"info" toml:"logging.grabber" env:"LOGGING_GRABBER"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingDevices string `help:"Device scanning logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		loadErr := config.Load(opts, cli.Root())

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"capture": opts.LoggingCapture,
				"grabber": opts.LoggingGrabber,
				"api":     opts.LoggingAPI,
				"config":  opts.LoggingConfig,
				"devices": opts.LoggingDevices,
			},
		})
		logger := logging.GetLogger("main")
		if loadErr != nil {
			logger.Warn("Failed to load config", "error", loadErr)
		}

		pixelFormat, err := capture.ParsePixelFormat(opts.CapturePixelFormat)
		if err != nil {
			logger.Warn("Unknown pixel format, using default", "pixel_format", opts.CapturePixelFormat, "default", capture.DefaultPixelFormat)
			pixelFormat = capture.DefaultPixelFormat
		}

		eventBus := events.New()

		frameGrabber := grabber.New(capture.NewV4L2Driver(), &grabber.Options{
			Capture: capture.Options{
				Device:         opts.CaptureDevice,
				Width:          opts.CaptureWidth,
				Height:         opts.CaptureHeight,
				PixelFormat:    pixelFormat,
				BufferCount:    opts.CaptureBuffers,
				PollInterval:   time.Duration(opts.CapturePollIntervalMs) * time.Millisecond,
				QuiesceTimeout: time.Duration(opts.CaptureQuiesceTimeoutMs) * time.Millisecond,
				Logger:         logging.GetLogger("capture"),
			},
			Events: eventBus,
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Capture:      frameGrabber,
			Devices:      devices.NewScanner(),
			EventBus:     eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSE {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		watcher := config.NewWatcher(opts.Config, config.LoadCaptureConfig, logging.GetLogger("config"))
		watcher.OnReload(func(c config.CaptureConfig) {
			if c.PixelFormat != "" && c.PixelFormat != opts.CapturePixelFormat {
				logger.Warn("Pixel format changes need a restart", "pixel_format", c.PixelFormat)
			}
			if c.Buffers != 0 && c.Buffers != opts.CaptureBuffers {
				logger.Warn("Buffer count changes need a restart", "buffers", c.Buffers)
			}
			applied, applyErr := frameGrabber.Apply(grabber.Settings{
				Device: c.Device,
				Width:  c.Width,
				Height: c.Height,
			})
			if applyErr != nil {
				logger.Error("Failed to apply capture config", "error", applyErr)
				return
			}
			logger.Info("Capture config applied",
				"device", applied.Device,
				"size", applied.Size,
				"different_size", applied.DifferentSize)
		})

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if runErr := frameGrabber.Run(ctx); runErr != nil {
				logger.Error("Failed to start capture", "device", opts.CaptureDevice, "error", runErr)
			}
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}
			if opts.CaptureHotplug {
				go watchHotplug(ctx, frameGrabber, logging.GetLogger("grabber"))
			}
			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config file will not be watched", "error", watchErr)
			}

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("Failed to notify systemd", "error", notifyErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Warn("Error stopping config watcher", "error", stopErr)
			}
			if sseExporter != nil {
				sseExporter.Stop()
			}
			cancel()
			if stopErr := frameGrabber.Shutdown(); stopErr != nil {
				logger.Error("Error shutting down capture", "error", stopErr)
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
