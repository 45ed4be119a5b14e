package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Port           int           `toml:"server.port" env:"PORT"`
	Device         string        `toml:"capture.device" env:"DEVICE"`
	Metrics        bool          `toml:"metrics.enabled" env:"METRICS"`
	QuiesceTimeout time.Duration `toml:"capture.quiesce_timeout_ms" env:"QUIESCE_TIMEOUT"`
	Origins        []string      `toml:"server.origins" env:"ORIGINS"`
	Gamma          float64       `toml:"preview.gamma" env:"GAMMA"`
	Username       string        `toml:"auth.username" env:"AUTH_USERNAME" name:"user"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framegrab.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const sampleTOML = `
[server]
port = 9090
origins = ["http://a", "http://b"]

[capture]
device = "/dev/video2"
quiesce_timeout_ms = 400

[metrics]
enabled = true

[preview]
gamma = 2

[auth]
username = "toml-user"
`

func TestLoadFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeConfig(t, sampleTOML), Port: 8090}

	if err := Load(opts, nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if opts.Port != 9090 {
		t.Errorf("Port = %d, want 9090", opts.Port)
	}
	if opts.Device != "/dev/video2" {
		t.Errorf("Device = %q, want /dev/video2", opts.Device)
	}
	if !opts.Metrics {
		t.Error("Metrics = false, want true")
	}
	if opts.QuiesceTimeout != 400*time.Millisecond {
		t.Errorf("QuiesceTimeout = %s, want 400ms", opts.QuiesceTimeout)
	}
	if !reflect.DeepEqual(opts.Origins, []string{"http://a", "http://b"}) {
		t.Errorf("Origins = %v", opts.Origins)
	}
	if opts.Gamma != 2 {
		t.Errorf("Gamma = %v, want 2", opts.Gamma)
	}
}

func TestLoadEnvOverridesTOML(t *testing.T) {
	t.Setenv("FRAMEGRAB_DEVICE", "/dev/video5")
	t.Setenv("FRAMEGRAB_QUIESCE_TIMEOUT", "1s")
	t.Setenv("FRAMEGRAB_ORIGINS", " x , y ,")
	opts := &testOptions{Config: writeConfig(t, sampleTOML)}

	if err := Load(opts, nil); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if opts.Device != "/dev/video5" {
		t.Errorf("Device = %q, want env value", opts.Device)
	}
	if opts.QuiesceTimeout != time.Second {
		t.Errorf("QuiesceTimeout = %s, want 1s", opts.QuiesceTimeout)
	}
	if !reflect.DeepEqual(opts.Origins, []string{"x", "y"}) {
		t.Errorf("Origins = %v, want [x y]", opts.Origins)
	}
	if opts.Port != 9090 {
		t.Errorf("Port = %d, want TOML value 9090", opts.Port)
	}
}

func TestLoadFlagsWin(t *testing.T) {
	t.Setenv("FRAMEGRAB_PORT", "7000")
	opts := &testOptions{Config: writeConfig(t, sampleTOML)}

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&opts.Port, "port", 8090, "")
	cmd.Flags().StringVar(&opts.Username, "user", "", "")
	if err := cmd.Flags().Parse([]string{"--port", "6000", "--user", "flag-user"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	if err := Load(opts, cmd); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if opts.Port != 6000 {
		t.Errorf("Port = %d, want flag value 6000", opts.Port)
	}
	if opts.Username != "flag-user" {
		t.Errorf("Username = %q, want flag value", opts.Username)
	}
}

func TestLoadMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 8090}

	if err := Load(opts, nil); err != nil {
		t.Fatalf("Load should tolerate a missing file: %v", err)
	}
	if opts.Port != 8090 {
		t.Errorf("Port = %d, want default kept", opts.Port)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{"invalid toml", "[server\nport = ", nil},
		{"wrong type", "[server]\nport = \"ninety\"\n", nil},
		{"bad env", "", map[string]string{"FRAMEGRAB_METRICS": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := &testOptions{Config: writeConfig(t, tt.content)}
			if err := Load(opts, nil); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if err := Load(testOptions{}, nil); err == nil {
		t.Error("expected an error for a non-pointer")
	}
}

func TestKebab(t *testing.T) {
	tests := map[string]string{
		"Port":             "port",
		"QuiesceTimeoutMS": "quiesce-timeout-ms",
		"LoggingLevel":     "logging-level",
		"HTTPPort":         "http-port",
	}
	for in, want := range tests {
		if got := kebab(in); got != want {
			t.Errorf("kebab(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	doc := map[string]any{
		"capture": map[string]any{"device": "/dev/video0"},
		"root":    "value",
	}

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"root", "value", true},
		{"capture.device", "/dev/video0", true},
		{"capture.width", nil, false},
		{"server.port", nil, false},
		{"root.child", nil, false},
	}
	for _, tt := range tests {
		got, ok := lookup(doc, tt.path)
		if ok != tt.ok || got != tt.want {
			t.Errorf("lookup(%q) = %v, %v; want %v, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadCaptureConfig(t *testing.T) {
	path := writeConfig(t, `
[capture]
device = "/dev/video1"
width = 1280
height = 720
pixel_format = "RGB3"
buffers = 6
`)

	cfg, err := LoadCaptureConfig(path)
	if err != nil {
		t.Fatalf("LoadCaptureConfig failed: %v", err)
	}
	want := CaptureConfig{Device: "/dev/video1", Width: 1280, Height: 720, PixelFormat: "RGB3", Buffers: 6}
	if cfg != want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}

	if _, err := LoadCaptureConfig(writeConfig(t, "[capture]\nwidth = 640\n")); err == nil {
		t.Error("expected width without height to be rejected")
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeConfig(t, `
[logging]
level = "warn"
format = "json"
capture = "debug"
api = "error"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("unexpected level/format %q/%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["capture"] != "debug" || cfg.Modules["api"] != "error" {
		t.Errorf("unexpected modules %v", cfg.Modules)
	}

	defaults := LoadLoggingConfig("")
	if defaults.Level != "info" || defaults.Format != "text" {
		t.Errorf("unexpected defaults %+v", defaults)
	}
}
