// Package devices finds V4L2 capture devices on the host.
package devices

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/smazurov/framegrab/internal/logging"
)

// DefaultGlob matches every V4L2 video node.
const DefaultGlob = "/dev/video*"

// ErrNotCapture is returned by a probe for nodes that cannot stream
// single-planar capture, such as metadata or output nodes.
var ErrNotCapture = errors.New("not a streaming capture device")

// Info describes one capture device node.
type Info struct {
	Path    string
	Name    string
	Driver  string
	BusInfo string
	Caps    uint32
}

// Scanner lists capture devices by probing every node matching Glob.
type Scanner struct {
	Glob   string
	probe  func(path string) (Info, error)
	logger logging.Logger
}

// NewScanner returns a scanner for DefaultGlob using the platform probe.
func NewScanner() *Scanner {
	return &Scanner{
		Glob:   DefaultGlob,
		probe:  probe,
		logger: logging.GetLogger("devices"),
	}
}

// Scan probes every matching node and returns the capture devices sorted
// by path. Nodes that fail to probe are skipped.
func (s *Scanner) Scan() ([]Info, error) {
	paths, err := filepath.Glob(s.Glob)
	if err != nil {
		return nil, fmt.Errorf("bad device pattern %q: %w", s.Glob, err)
	}
	slices.SortFunc(paths, comparePaths)

	found := make([]Info, 0, len(paths))
	for _, path := range paths {
		info, err := s.probe(path)
		switch {
		case errors.Is(err, errors.ErrUnsupported):
			return nil, err
		case errors.Is(err, ErrNotCapture):
			continue
		case err != nil:
			s.logger.Debug("Skipping video node", "path", path, "error", err)
			continue
		}
		info.Path = path
		found = append(found, info)
	}
	return found, nil
}

// comparePaths orders /dev/video2 before /dev/video10.
func comparePaths(a, b string) int {
	pa, na := splitIndex(a)
	pb, nb := splitIndex(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	if len(na) != len(nb) {
		return len(na) - len(nb)
	}
	return strings.Compare(na, nb)
}

func splitIndex(path string) (prefix, digits string) {
	i := len(path)
	for i > 0 && path[i-1] >= '0' && path[i-1] <= '9' {
		i--
	}
	return path[:i], path[i:]
}
