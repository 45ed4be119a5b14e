//go:build !linux

package devices

import (
	"errors"
	"fmt"
)

func probe(path string) (Info, error) {
	return Info{}, fmt.Errorf("probe %s: %w", path, errors.ErrUnsupported)
}
