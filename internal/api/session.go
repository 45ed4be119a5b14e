package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/capture"
	"github.com/smazurov/framegrab/internal/grabber"
	"github.com/smazurov/framegrab/internal/metrics"
)

// registerSessionRoutes registers the capture session endpoints.
func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Get Session",
		Description: "Get the capture session state, negotiated format and counters",
		Tags:        []string{"session"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.SessionResponse, error) {
		return &models.SessionResponse{Body: s.sessionData()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "session-action",
		Method:      http.MethodPost,
		Path:        "/api/session/{action}",
		Summary:     "Session Action",
		Description: "Drive the capture session through its lifecycle. Pause and resume control continuous delivery and keep buffers mapped.",
		Tags:        []string{"session"},
		Errors:      []int{401, 409, 422, 500, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SessionActionRequest) (*models.SessionActionResponse, error) {
		different, err := s.sessionAction(input.Action)
		if err != nil {
			return nil, mapCaptureError(err)
		}
		return &models.SessionActionResponse{
			Body: models.SessionActionData{
				Action:        input.Action,
				DifferentSize: different,
				Session:       s.sessionData(),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-device",
		Method:      http.MethodPut,
		Path:        "/api/session/device",
		Summary:     "Set Device",
		Description: "Switch the capture device. An open device is closed and the new one opened and brought back to the previous activity.",
		Tags:        []string{"session"},
		Errors:      []int{401, 409, 422, 500, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.DeviceRequest) (*models.SettingsResponse, error) {
		return s.apply(grabber.Settings{Device: input.Body.Device})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-size",
		Method:      http.MethodPut,
		Path:        "/api/session/size",
		Summary:     "Set Frame Size",
		Description: "Renegotiate the frame size. The device may grant a different size, reported in different_size.",
		Tags:        []string{"session"},
		Errors:      []int{401, 409, 422, 500, 502, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.SizeRequest) (*models.SettingsResponse, error) {
		return s.apply(grabber.Settings{Width: input.Body.Width, Height: input.Body.Height})
	})
}

func (s *Server) apply(settings grabber.Settings) (*models.SettingsResponse, error) {
	applied, err := s.capture.Apply(settings)
	if err != nil {
		return nil, mapCaptureError(err)
	}
	return &models.SettingsResponse{
		Body: models.SettingsData{
			Device:        applied.Device,
			Width:         applied.Size.Width,
			Height:        applied.Size.Height,
			DifferentSize: applied.DifferentSize,
		},
	}, nil
}

// sessionAction runs one lifecycle action and reports whether the device
// adjusted the frame size while doing it.
func (s *Server) sessionAction(action string) (bool, error) {
	session := s.capture.Session()
	var err error
	switch action {
	case "open":
		err = session.Open()
	case "close":
		err = session.Close()
	case "start":
		err = session.Start()
	case "stop":
		err = session.Stop()
	case "restart":
		err = session.Restart()
	case "reopen":
		err = session.Reopen()
	case "pause":
		err = s.capture.Pause()
	case "resume":
		err = s.capture.Resume()
	default:
		return false, huma.Error400BadRequest("unknown action " + action)
	}
	if capture.IsDifferentSize(err) {
		return true, nil
	}
	if err != nil {
		s.logger.Warn("Session action failed", "action", action, "error", err)
	}
	return false, err
}

func (s *Server) sessionData() models.SessionData {
	session := s.capture.Session()
	device := session.Device()
	format := session.Format()

	data := models.SessionData{
		Device: device,
		State:  string(session.State()),
		Format: models.FormatData{
			Width:        format.Width,
			Height:       format.Height,
			PixelFormat:  format.PixelFormat.String(),
			BytesPerLine: format.BytesPerLine,
			SizeImage:    format.SizeImage,
		},
		Buffers:       session.BufferCount(),
		StopRequested: session.StopRequested(),
		Delivering:    s.capture.Delivering(),
	}
	if st := metrics.Stats(device); st != nil {
		data.Stats = models.StatsData{
			FramesDelivered: st.FramesDelivered,
			FramesNoData:    st.FramesNoData,
			Errors:          st.Errors,
			FrameRate:       st.FrameRate,
		}
	}
	return data
}
