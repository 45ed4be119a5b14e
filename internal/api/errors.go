package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framegrab/internal/capture"
)

// mapCaptureError converts capture errors to HTTP errors.
func mapCaptureError(err error) error {
	if err == nil {
		return nil
	}
	switch capture.CodeOf(err) {
	case capture.ErrCodeBadState:
		return huma.Error409Conflict(err.Error(), err)
	case capture.ErrCodeCannotOpen:
		return huma.Error503ServiceUnavailable(err.Error(), err)
	case capture.ErrCodeWrongPixelFormat:
		return huma.Error422UnprocessableEntity(err.Error(), err)
	case capture.ErrCodeDeviceError:
		return huma.Error502BadGateway(err.Error(), err)
	default:
		return huma.Error500InternalServerError(err.Error(), err)
	}
}
