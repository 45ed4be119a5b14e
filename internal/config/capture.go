package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/framegrab/internal/logging"
)

// CaptureConfig is the [capture] section of the config file. These are the
// settings the service reapplies when the file changes.
type CaptureConfig struct {
	Device      string `toml:"device"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	PixelFormat string `toml:"pixel_format"`
	Buffers     int    `toml:"buffers"`
}

// Validate rejects sizes and counts the device layer cannot express.
func (c CaptureConfig) Validate() error {
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height)
	}
	if (c.Width == 0) != (c.Height == 0) {
		return fmt.Errorf("width and height must be set together, got %dx%d", c.Width, c.Height)
	}
	if c.Buffers < 0 {
		return fmt.Errorf("invalid buffer count %d", c.Buffers)
	}
	return nil
}

// LoadCaptureConfig reads the [capture] section of a TOML file.
func LoadCaptureConfig(path string) (CaptureConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CaptureConfig{}, fmt.Errorf("read config file: %w", err)
	}
	var doc struct {
		Capture CaptureConfig `toml:"capture"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return CaptureConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := doc.Capture.Validate(); err != nil {
		return CaptureConfig{}, err
	}
	return doc.Capture, nil
}

// LoadLoggingConfig reads the [logging] section of a TOML file. Keys other
// than level and format are per-module levels. A missing or unreadable file
// yields info level text logging.
func LoadLoggingConfig(path string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var doc struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return cfg
	}

	for key, value := range doc.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
