package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framegrab/internal/events"
)

// registerSSERoutes registers the event stream endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of session transitions, negotiated sizes, delivery runs, capture errors and statistics",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-state":    events.SessionStateChangedEvent{},
		"frame-size":       events.FrameSizeEvent{},
		"capture-error":    events.CaptureErrorEvent{},
		"delivery-started": events.DeliveryStartedEvent{},
		"delivery-stopped": events.DeliveryStoppedEvent{},
		"capture-stats":    events.CaptureStatsEvent{},
		"device-hotplug":   events.DeviceHotplugEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribe := events.SubscribeAll(s.eventBus, eventCh)
		defer unsubscribe()

		// The current state goes first so clients start from a known point.
		session := s.capture.Session()
		state := string(session.State())
		if err := send.Data(events.SessionStateChangedEvent{
			Device:    session.Device(),
			OldState:  state,
			NewState:  state,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
