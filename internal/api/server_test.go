package api

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/framegrab/internal/api/models"
	"github.com/smazurov/framegrab/internal/capture"
	"github.com/smazurov/framegrab/internal/capture/capturetest"
	"github.com/smazurov/framegrab/internal/devices"
	"github.com/smazurov/framegrab/internal/events"
	"github.com/smazurov/framegrab/internal/grabber"
)

const (
	testUser     = "admin"
	testPassword = "secret"
	testDevice   = "/dev/video-api"
)

type fakeScanner struct {
	found []devices.Info
	err   error
}

func (f fakeScanner) Scan() ([]devices.Info, error) {
	return f.found, f.err
}

type testServer struct {
	*httptest.Server
	grabber *grabber.Grabber
	device  *capturetest.Device
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dev := capturetest.NewDevice()
	bus := events.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := grabber.New(capturetest.NewDriver(map[string]*capturetest.Device{testDevice: dev}), &grabber.Options{
		Capture: capture.Options{
			Device:         testDevice,
			Width:          32,
			Height:         24,
			PollInterval:   2 * time.Millisecond,
			QuiesceTimeout: 500 * time.Millisecond,
			Logger:         logger,
		},
		Events: bus,
		Logger: logger,
	})
	scanner := fakeScanner{found: []devices.Info{
		{Path: testDevice, Name: "Test Camera", Driver: "capturetest"},
		{Path: "/dev/video9", Name: "Spare", Driver: "uvcvideo"},
	}}
	server := NewServer(&Options{
		AuthUsername:      testUser,
		AuthPassword:      testPassword,
		Capture:           g,
		Devices:           scanner,
		EventBus:          bus,
		PrometheusHandler: promhttp.Handler(),
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = g.Shutdown()
	})
	return &testServer{Server: ts, grabber: g, device: dev}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(testUser, testPassword)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func TestHealthWithoutAuth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/health", "/api/version"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Bearer token", "", http.StatusUnauthorized},
		{"wrong password", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nope")), "", http.StatusUnauthorized},
		{"valid header", "Basic " + base64.StdEncoding.EncodeToString([]byte(testUser + ":" + testPassword)), "", http.StatusOK},
		{"valid query", "", "?auth=" + base64.StdEncoding.EncodeToString([]byte(testUser+":"+testPassword)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/session"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	session := decode[models.SessionData](t, ts.do(t, http.MethodGet, "/api/session", nil))
	if session.State != "closed" || session.Device != testDevice {
		t.Fatalf("unexpected initial session %+v", session)
	}

	steps := []struct {
		action string
		state  string
	}{
		{"open", "stopped"},
		{"start", "started"},
		{"restart", "started"},
		{"stop", "stopped"},
		{"reopen", "stopped"},
		{"close", "closed"},
	}
	for _, step := range steps {
		resp := ts.do(t, http.MethodPost, "/api/session/"+step.action, nil)
		expectStatus(t, resp, http.StatusOK)
		data := decode[models.SessionActionData](t, resp)
		if data.Session.State != step.state {
			t.Errorf("%s: state = %s, want %s", step.action, data.Session.State, step.state)
		}
	}
}

func TestSessionActionErrors(t *testing.T) {
	ts := newTestServer(t)

	expectStatus(t, ts.do(t, http.MethodPost, "/api/session/start", nil), http.StatusConflict)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/session/explode", nil), http.StatusUnprocessableEntity)

	ts.device.OpenErr = syscall.EBUSY
	expectStatus(t, ts.do(t, http.MethodPost, "/api/session/open", nil), http.StatusServiceUnavailable)
}

func TestOpenReportsDifferentSize(t *testing.T) {
	ts := newTestServer(t)
	ts.device.Grant = func(want capture.Format) capture.Format {
		want.Width, want.Height = 16, 16
		return want
	}

	resp := ts.do(t, http.MethodPost, "/api/session/open", nil)
	expectStatus(t, resp, http.StatusOK)
	data := decode[models.SessionActionData](t, resp)
	if !data.DifferentSize {
		t.Error("expected different_size")
	}
	if data.Session.Format.Width != 16 || data.Session.State != "stopped" {
		t.Errorf("unexpected session %+v", data.Session)
	}
}

func TestFramePolledWhilePaused(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/session/open", nil), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/session/start", nil), http.StatusOK)

	ts.device.Hold(true)
	resp := ts.do(t, http.MethodGet, "/api/frame", nil)
	expectStatus(t, resp, http.StatusNoContent)

	ts.device.Hold(false)
	resp = ts.do(t, http.MethodGet, "/api/frame?format=png", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if resp.Header.Get("X-Frame-Sequence") == "" {
		t.Error("expected X-Frame-Sequence header")
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.HasPrefix(string(body), "\x89PNG") {
		t.Error("expected PNG data")
	}
}

func TestFrameWhileClosed(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/frame", nil), http.StatusConflict)
}

func TestFrameWhileDelivering(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.grabber.Run(t.Context()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := ts.do(t, http.MethodGet, "/api/frame?max_width=16", nil)
		if resp.StatusCode == http.StatusOK {
			if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("Content-Type = %q, want image/jpeg", ct)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no frame delivered, last status %d", resp.StatusCode)
		}
		time.Sleep(5 * time.Millisecond)
	}

	session := decode[models.SessionData](t, ts.do(t, http.MethodGet, "/api/session", nil))
	if !session.Delivering || session.Buffers == 0 {
		t.Errorf("unexpected session %+v", session)
	}

	resp := ts.do(t, http.MethodPost, "/api/session/pause", nil)
	expectStatus(t, resp, http.StatusOK)
	if data := decode[models.SessionActionData](t, resp); data.Session.State != "started" || data.Session.Delivering {
		t.Errorf("unexpected session after pause %+v", data.Session)
	}
}

func TestSetSizeAndDevice(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/session/open", nil), http.StatusOK)

	resp := ts.do(t, http.MethodPut, "/api/session/size", map[string]int{"width": 64, "height": 48})
	expectStatus(t, resp, http.StatusOK)
	settings := decode[models.SettingsData](t, resp)
	if settings.Width != 64 || settings.Height != 48 || settings.DifferentSize {
		t.Errorf("unexpected settings %+v", settings)
	}

	expectStatus(t, ts.do(t, http.MethodPut, "/api/session/size", map[string]int{"width": 0, "height": 48}), http.StatusUnprocessableEntity)

	resp = ts.do(t, http.MethodPut, "/api/session/device", map[string]string{"device": "/dev/missing"})
	expectStatus(t, resp, http.StatusServiceUnavailable)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/session/open", nil), http.StatusOK)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	want := fmt.Sprintf(`framegrab_capture_state{device=%q,state="stopped"} 1`, testDevice)
	if !strings.Contains(string(body), want) {
		t.Errorf("expected %s in metrics output", want)
	}
}

func TestLogsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/logs?limit=5", nil)
	expectStatus(t, resp, http.StatusOK)
	logs := decode[models.LogsData](t, resp)
	if logs.Count != len(logs.Entries) || logs.Count > 5 {
		t.Errorf("unexpected logs %+v", logs)
	}

	resp = ts.do(t, http.MethodPut, "/api/logs/levels", map[string]string{"module": "capture", "level": "debug"})
	expectStatus(t, resp, http.StatusOK)
	levels := decode[models.LogLevelsData](t, resp)
	if levels.Levels["capture"] != "debug" {
		t.Errorf("capture level = %q, want debug", levels.Levels["capture"])
	}

	expectStatus(t, ts.do(t, http.MethodPut, "/api/logs/levels", map[string]string{"module": "capture", "level": "loud"}), http.StatusUnprocessableEntity)
}

func TestSSEStreamsSessionEvents(t *testing.T) {
	ts := newTestServer(t)

	credentials := base64.StdEncoding.EncodeToString([]byte(testUser + ":" + testPassword))
	resp, err := http.Get(ts.URL + "/api/events?auth=" + credentials)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func(prefix string) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatal("stream closed")
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-timeout:
				t.Fatalf("timeout waiting for %q", prefix)
			}
		}
	}

	if line := next("data:"); !strings.Contains(line, `"new_state":"closed"`) {
		t.Errorf("expected initial closed state, got %s", line)
	}

	// Give the handler time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/session/open", nil), http.StatusOK)

	if line := next("event:"); !strings.Contains(line, "session-state") && !strings.Contains(line, "frame-size") {
		t.Errorf("unexpected event line %s", line)
	}
	if line := next("data:"); !strings.Contains(line, testDevice) {
		t.Errorf("expected device in event data, got %s", line)
	}
}

func TestMapCaptureError(t *testing.T) {
	tests := []struct {
		code capture.ErrorCode
		want int
	}{
		{capture.ErrCodeBadState, http.StatusConflict},
		{capture.ErrCodeCannotOpen, http.StatusServiceUnavailable},
		{capture.ErrCodeWrongPixelFormat, http.StatusUnprocessableEntity},
		{capture.ErrCodeDeviceError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := mapCaptureError(&capture.Error{Code: tt.code, Op: "test", Message: "failed"})
			var se interface{ GetStatus() int }
			if !errors.As(err, &se) || se.GetStatus() != tt.want {
				t.Errorf("status = %v, want %d", err, tt.want)
			}
		})
	}

	if mapCaptureError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestListDevices(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/devices", nil)
	expectStatus(t, resp, http.StatusOK)
	data := decode[models.DevicesData](t, resp)

	if data.Count != 2 || len(data.Devices) != 2 {
		t.Fatalf("unexpected devices %+v", data)
	}
	if !data.Devices[0].Current || data.Devices[1].Current {
		t.Errorf("current flag should mark only %s: %+v", testDevice, data.Devices)
	}
	if data.Devices[1].Driver != "uvcvideo" {
		t.Errorf("unexpected driver %q", data.Devices[1].Driver)
	}
}

func TestListDevicesErrors(t *testing.T) {
	tests := []struct {
		name    string
		scanner DeviceScanner
		want    int
	}{
		{"not configured", nil, http.StatusNotImplemented},
		{"unsupported platform", fakeScanner{err: errors.ErrUnsupported}, http.StatusNotImplemented},
		{"scan failure", fakeScanner{err: errors.New("glob failed")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(&Options{Devices: tt.scanner})
			ts := httptest.NewServer(server.Handler())
			defer ts.Close()

			resp, err := http.Get(ts.URL + "/api/devices")
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
