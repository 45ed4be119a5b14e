// Package cmd holds the framegrab sub-commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/smazurov/framegrab/internal/capture"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/internal/preview"
	"github.com/spf13/cobra"
)

// ProbeOptions configures one probe run.
type ProbeOptions struct {
	Device      string
	Width       int
	Height      int
	PixelFormat string
	Buffers     int
	Frames      int
	Single      bool
	Timeout     time.Duration
	Save        string
}

// ProbeResult summarises a probe run.
type ProbeResult struct {
	Requested     capture.Size
	Granted       capture.Format
	DifferentSize bool
	Buffers       int
	Frames        int
	NoData        int
	Elapsed       time.Duration
}

// Rate returns the achieved frames per second.
func (r ProbeResult) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var opts ProbeOptions
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Open a capture device and grab frames",
		Long: `Opens the device, negotiates the frame size, starts streaming and grabs frames ` +
			`either continuously or by polling single frames, then reports the granted format and achieved rate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("probe")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := RunProbe(ctx, capture.NewV4L2Driver(), opts, logger)
			if err != nil {
				return err
			}
			logger.Info("Probe finished",
				"device", opts.Device,
				"size", result.Granted.Size(),
				"different_size", result.DifferentSize,
				"pixel_format", result.Granted.PixelFormat,
				"buffers", result.Buffers,
				"frames", result.Frames,
				"no_data", result.NoData,
				"rate", fmt.Sprintf("%.2f", result.Rate()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Device, "device", "d", capture.DefaultDevice, "Capture device path")
	cmd.Flags().IntVar(&opts.Width, "width", capture.DefaultWidth, "Requested frame width")
	cmd.Flags().IntVar(&opts.Height, "height", capture.DefaultHeight, "Requested frame height")
	cmd.Flags().StringVar(&opts.PixelFormat, "pixel-format", capture.DefaultPixelFormat.String(), "FourCC pixel format")
	cmd.Flags().IntVar(&opts.Buffers, "buffers", capture.DefaultBufferCount, "Driver buffers to request")
	cmd.Flags().IntVarP(&opts.Frames, "frames", "n", 30, "Frames to grab")
	cmd.Flags().BoolVar(&opts.Single, "single", false, "Poll single frames instead of continuous delivery")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Give up after this long")
	cmd.Flags().StringVarP(&opts.Save, "save", "o", "", "Write the last frame to this file (.jpg or .png)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log as JSON")
	return cmd
}

// RunProbe drives a session through open, start, frame grabbing, stop and
// close. Cancelling ctx ends frame grabbing early.
func RunProbe(ctx context.Context, driver capture.Driver, opts ProbeOptions, logger logging.Logger) (ProbeResult, error) {
	result := ProbeResult{Requested: capture.Size{Width: opts.Width, Height: opts.Height}}

	pixelFormat, err := capture.ParsePixelFormat(opts.PixelFormat)
	if err != nil {
		return result, err
	}
	if opts.Frames <= 0 {
		opts.Frames = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	session := capture.NewSession(driver, &capture.Options{
		Device:      opts.Device,
		Width:       opts.Width,
		Height:      opts.Height,
		PixelFormat: pixelFormat,
		BufferCount: opts.Buffers,
		Logger:      logger,
		OnStateChange: func(oldState, newState capture.State) {
			logger.Debug("Session state", "from", oldState, "to", newState)
		},
	})

	err = session.Open()
	switch {
	case capture.IsDifferentSize(err):
		result.DifferentSize = true
		logger.Warn("Device adjusted frame size", "requested", result.Requested, "granted", session.Size())
	case err != nil:
		return result, err
	}
	result.Granted = session.Format()
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logger.Warn("Failed to close device", "error", closeErr)
		}
	}()

	if err := session.Start(); err != nil {
		return result, err
	}
	result.Buffers = session.BufferCount()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var last *capture.Frame
	keep := func(f *capture.Frame) {
		result.Frames++
		if opts.Save != "" {
			last = f.Clone()
		}
		logger.Debug("Frame", "sequence", f.Sequence, "bytes", len(f.Data))
	}

	start := time.Now()
	if opts.Single {
		err = pollFrames(ctx, session, opts.Frames, keep, &result.NoData)
	} else {
		release := stopOnDone(ctx, session)
		err = session.Deliver(func(f *capture.Frame) capture.Directive {
			keep(f)
			if result.Frames >= opts.Frames {
				return capture.Stop
			}
			return capture.Continue
		})
		release()
	}
	result.Elapsed = time.Since(start)

	if stopErr := session.Stop(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	if err != nil {
		return result, err
	}
	if result.Frames < opts.Frames {
		logger.Warn("Fewer frames than requested", "frames", result.Frames, "requested", opts.Frames, "reason", context.Cause(ctx))
	}

	if opts.Save != "" && last != nil {
		if err := saveFrame(opts.Save, last); err != nil {
			return result, err
		}
		logger.Info("Frame saved", "path", opts.Save)
	}
	return result, nil
}

// stopOnDone requests a stop once ctx is done and keeps requesting it until
// release is called, since Deliver clears a request made before it begins.
func stopOnDone(ctx context.Context, session *capture.Session) (release func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			session.RequestStop()
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func pollFrames(ctx context.Context, session *capture.Session, want int, keep func(*capture.Frame), noData *int) error {
	ticker := time.NewTicker(capture.DefaultPollInterval)
	defer ticker.Stop()
	for got := 0; got < want; {
		f, err := session.Frame()
		if err != nil {
			return err
		}
		if f != nil {
			keep(f)
			got++
			continue
		}
		*noData++
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func saveFrame(path string, f *capture.Frame) error {
	opts := preview.Options{Format: strings.TrimPrefix(filepath.Ext(path), ".")}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := preview.Frame(file, f, opts); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}
