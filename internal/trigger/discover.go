package trigger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// DefaultDevicesFile lists the input devices known to the kernel
const DefaultDevicesFile = "/proc/bus/input/devices"

// Discoverer finds the device nodes of connected trigger devices
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// HelperDiscoverer runs a privileged helper through sudo. The helper prints
// one device node per line and makes the nodes readable for the caller.
type HelperDiscoverer struct {
	Path    string   // Helper executable
	Command []string // Command the helper runs under; defaults to sudo -n
}

// Discover runs the helper and returns the device nodes it printed
func (h HelperDiscoverer) Discover(ctx context.Context) ([]string, error) {
	command := h.Command
	if command == nil {
		command = []string{"sudo", "-n"}
	}
	args := append(append([]string{}, command[1:]...), h.Path)

	out, err := exec.CommandContext(ctx, command[0], args...).CombinedOutput()
	if bytes.Contains(bytes.ToLower(out), []byte("password")) {
		return nil, &DiscoveryError{
			Err:    fmt.Errorf("%s may not run %s without a password", command[0], h.Path),
			Output: string(out),
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DiscoveryError{
			Err:    fmt.Errorf("failed to run %s: %w", h.Path, err),
			Output: string(out),
		}
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// ProcDiscoverer reads the kernel's input device list directly.
// It finds the devices but cannot change their permissions.
type ProcDiscoverer struct {
	File string // Defaults to DefaultDevicesFile
}

// Discover returns the device nodes of all shutter remotes
func (p ProcDiscoverer) Discover(ctx context.Context) ([]string, error) {
	file := p.File
	if file == "" {
		file = DefaultDevicesFile
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, &DiscoveryError{Err: fmt.Errorf("failed to open %s: %w", file, err)}
	}
	defer f.Close()

	paths, err := ParseDevices(f)
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}
	return paths, nil
}

// ParseDevices extracts the event nodes of shutter remotes from the
// format of /proc/bus/input/devices. A device qualifies when its name
// contains both "Shutter" and "Control".
func ParseDevices(r io.Reader) ([]string, error) {
	var paths []string
	var name, handler string

	flush := func() {
		if handler != "" && strings.Contains(name, "Shutter") && strings.Contains(name, "Control") {
			paths = append(paths, "/dev/input/"+handler)
		}
		name, handler = "", ""
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "N:"):
			name = line
		case strings.HasPrefix(line, "H:"):
			for _, h := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if strings.HasPrefix(h, "event") {
					handler = h
				}
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read device list: %w", err)
	}
	return paths, nil
}

// IsDiscoveryError reports whether err means triggers cannot be discovered at all
func IsDiscoveryError(err error) bool {
	return errors.Is(err, ErrDiscovery)
}
