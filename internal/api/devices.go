package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/devices"
)

// DeviceScanner lists capture devices on the host.
type DeviceScanner interface {
	Scan() ([]devices.Info, error)
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List the video nodes that support streaming capture",
		Tags:        []string{"devices"},
		Errors:      []int{401, 500, 501},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct{}) (*models.DevicesResponse, error) {
		if s.devices == nil {
			return nil, huma.Error501NotImplemented("device listing is not configured")
		}
		found, err := s.devices.Scan()
		if errors.Is(err, errors.ErrUnsupported) {
			return nil, huma.Error501NotImplemented("device listing is not supported on this platform")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list devices", err)
		}

		current := ""
		if s.capture != nil {
			current = s.capture.Session().Device()
		}
		data := models.DevicesData{Devices: make([]models.DeviceData, 0, len(found))}
		for _, d := range found {
			data.Devices = append(data.Devices, models.DeviceData{
				Path:    d.Path,
				Name:    d.Name,
				Driver:  d.Driver,
				BusInfo: d.BusInfo,
				Caps:    d.Caps,
				Current: d.Path == current,
			})
		}
		data.Count = len(data.Devices)
		return &models.DevicesResponse{Body: data}, nil
	})
}
