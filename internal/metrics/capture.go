// Package metrics provides Prometheus metrics for the capture pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "framegrab"
	subsystem = "capture"
)

// States is every capture session state, in lifecycle order.
var States = []string{"closed", "stopped", "started", "continuous"}

var (
	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames_delivered_total",
		Help:      "Frames handed to consumers",
	}, []string{"device"})

	framesNoData = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames_no_data_total",
		Help:      "Single frame polls that found no frame ready",
	}, []string{"device"})

	buffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "buffers",
		Help:      "Driver buffers currently mapped",
	}, []string{"device"})

	state = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "state",
		Help:      "Capture session state, 1 for the current state",
	}, []string{"device", "state"})

	captureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Failed capture operations by error code",
	}, []string{"device", "code"})

	frameRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frame_rate",
		Help:      "Delivered frames per second, smoothed",
	}, []string{"device"})

	// Local copy of the values for the JSON status endpoint.
	cache   = make(map[string]*CaptureStats)
	cacheMu sync.RWMutex
)

// rateSmoothing is the weight of the newest interval in the frame rate average.
const rateSmoothing = 0.2

// CaptureStats holds the current metric values for one device.
type CaptureStats struct {
	FramesDelivered uint64
	FramesNoData    uint64
	Errors          uint64
	Buffers         int
	State           string
	FrameRate       float64
	LastFrame       time.Time
}

// FrameDelivered counts a frame and updates the smoothed frame rate.
func FrameDelivered(device string, at time.Time) {
	framesDelivered.WithLabelValues(device).Inc()
	update(device, func(s *CaptureStats) {
		s.FramesDelivered++
		if !s.LastFrame.IsZero() {
			if interval := at.Sub(s.LastFrame).Seconds(); interval > 0 {
				instant := 1 / interval
				if s.FrameRate == 0 {
					s.FrameRate = instant
				} else {
					s.FrameRate += rateSmoothing * (instant - s.FrameRate)
				}
			}
		}
		s.LastFrame = at
		frameRate.WithLabelValues(device).Set(s.FrameRate)
	})
}

// NoData counts a poll that found no frame.
func NoData(device string) {
	framesNoData.WithLabelValues(device).Inc()
	update(device, func(s *CaptureStats) { s.FramesNoData++ })
}

// SetBuffers records the mapped buffer count.
func SetBuffers(device string, count int) {
	buffers.WithLabelValues(device).Set(float64(count))
	update(device, func(s *CaptureStats) { s.Buffers = count })
}

// SetState marks the current session state.
func SetState(device, current string) {
	for _, st := range States {
		v := 0.0
		if st == current {
			v = 1
		}
		state.WithLabelValues(device, st).Set(v)
	}
	update(device, func(s *CaptureStats) {
		s.State = current
		if current != "continuous" {
			s.LastFrame = time.Time{}
			s.FrameRate = 0
			frameRate.WithLabelValues(device).Set(0)
		}
	})
}

// CaptureError counts a failed operation.
func CaptureError(device, code string) {
	captureErrors.WithLabelValues(device, code).Inc()
	update(device, func(s *CaptureStats) { s.Errors++ })
}

// Delete removes every series and cached value for a device.
func Delete(device string) {
	framesDelivered.DeleteLabelValues(device)
	framesNoData.DeleteLabelValues(device)
	buffers.DeleteLabelValues(device)
	frameRate.DeleteLabelValues(device)
	state.DeletePartialMatch(prometheus.Labels{"device": device})
	captureErrors.DeletePartialMatch(prometheus.Labels{"device": device})

	cacheMu.Lock()
	delete(cache, device)
	cacheMu.Unlock()
}

// Stats returns a copy of the current values for a device, or nil.
func Stats(device string) *CaptureStats {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if s, ok := cache[device]; ok {
		dup := *s
		return &dup
	}
	return nil
}

func update(device string, fn func(*CaptureStats)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	s, ok := cache[device]
	if !ok {
		s = &CaptureStats{}
		cache[device] = s
	}
	fn(s)
}

// AllStats returns a copy of the cached values for every device.
func AllStats() map[string]CaptureStats {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	out := make(map[string]CaptureStats, len(cache))
	for device, s := range cache {
		out[device] = *s
	}
	return out
}
