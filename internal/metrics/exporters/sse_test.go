package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesStats(t *testing.T) {
	device := "/dev/video-sse"
	metrics.Delete(device)
	defer metrics.Delete(device)

	metrics.SetState(device, "continuous")
	metrics.NoData(device)
	metrics.CaptureError(device, "DEVICE_ERROR")

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	select {
	case <-mock.published:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stats publish")
	}

	cancel()
	exporter.Stop()

	var found bool
	for _, ev := range mock.getEvents() {
		e, ok := ev.(events.CaptureStatsEvent)
		if !ok || e.Device != device {
			continue
		}
		found = true
		if e.State != "continuous" {
			t.Errorf("State = %q, want continuous", e.State)
		}
		if e.FrameRate != "0.00" {
			t.Errorf("FrameRate = %q, want 0.00", e.FrameRate)
		}
		if e.FramesNoData != 1 || e.Errors != 1 {
			t.Errorf("unexpected counters %+v", e)
		}
		break
	}
	if !found {
		t.Error("expected CaptureStatsEvent for test device")
	}
}

func TestSSEExporterSkipsDeletedDevices(t *testing.T) {
	device := "/dev/video-sse-deleted"
	metrics.SetBuffers(device, 2)
	metrics.Delete(device)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond

	exporter.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	exporter.Stop()

	for _, ev := range mock.getEvents() {
		if e, ok := ev.(events.CaptureStatsEvent); ok && e.Device == device {
			t.Error("expected no events for deleted device")
		}
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	device := "/dev/video-sse-idempotent"
	metrics.SetBuffers(device, 1)
	defer metrics.Delete(device)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	countAfterStop := len(mock.getEvents())
	time.Sleep(30 * time.Millisecond)
	if got := len(mock.getEvents()); got != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", got, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	device := "/dev/video-sse-early-stop"
	metrics.SetBuffers(device, 1)
	defer metrics.Delete(device)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	exporter.Stop()

	exporter.Start(t.Context())
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()

	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}
