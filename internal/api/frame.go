package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/capture"
	"github.com/smazurov/framegrab/internal/preview"
)

// registerFrameRoutes registers the still image endpoint.
func (s *Server) registerFrameRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-frame",
		Method:      http.MethodGet,
		Path:        "/api/frame",
		Summary:     "Get Frame",
		Description: "Latest delivered frame as an image. When continuous delivery is paused a single frame is polled instead; 204 means no frame was ready.",
		Tags:        []string{"frames"},
		Errors:      []int{401, 409, 415, 502},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.FrameRequest) (*models.FrameResponse, error) {
		frame, err := s.currentFrame()
		if err != nil {
			return nil, mapCaptureError(err)
		}
		if frame == nil {
			return &models.FrameResponse{Status: http.StatusNoContent}, nil
		}

		var buf bytes.Buffer
		err = preview.Frame(&buf, frame, preview.Options{
			Format:    input.Format,
			Quality:   input.Quality,
			MaxWidth:  input.MaxWidth,
			MaxHeight: input.MaxHeight,
		})
		if errors.Is(err, preview.ErrUnsupportedFormat) {
			return nil, huma.Error415UnsupportedMediaType(err.Error())
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode frame", err)
		}

		return &models.FrameResponse{
			Status:       http.StatusOK,
			ContentType:  preview.ContentType(input.Format),
			CacheControl: "no-store",
			Sequence:     strconv.Itoa(frame.Sequence),
			Body:         buf.Bytes(),
		}, nil
	})
}

func (s *Server) currentFrame() (*capture.Frame, error) {
	if s.capture.Delivering() {
		frame, _ := s.capture.Latest()
		return frame, nil
	}
	return s.capture.Pull()
}
