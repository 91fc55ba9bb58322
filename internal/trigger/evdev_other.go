//go:build !linux

package trigger

import (
	"errors"
	"runtime"
)

func openDevice(path string) (device, error) {
	return nil, errors.New("input devices are not supported on " + runtime.GOOS)
}
