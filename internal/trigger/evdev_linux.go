//go:build linux

package trigger

import (
	"bytes"
	"fmt"
	"os"
	"time"
	"unsafe"

	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"

	"github.com/trigs/trigs/internal/event"
)

// ShutterKey is the key code Bluetooth camera shutter remotes send
const ShutterKey = evdev.KEY_VOLUMEUP

// evdevDevice is an input device node grabbed for exclusive use
type evdevDevice struct {
	dev      *evdev.InputDevice
	identity string
	queued   []event.Event
}

// openDevice opens and grabs the input device at path
func openDevice(path string) (device, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	if err := dev.Grab(); err != nil {
		dev.File.Close()
		return nil, fmt.Errorf("failed to grab %s: %w", path, err)
	}

	identity := uniq(dev)
	if identity == "" {
		identity = dev.Phys
	}
	if identity == "" {
		identity = path
	}

	// Fd() above left the file in blocking mode, where Close cannot
	// interrupt a pending read
	f, err := pollable(dev.File)
	if err != nil {
		dev.File.Close()
		return nil, fmt.Errorf("failed to prepare %s: %w", path, err)
	}
	dev.File = f

	return &evdevDevice{dev: dev, identity: identity}, nil
}

// pollable replaces f with a non-blocking file on the same open file
// description, so a read in progress returns os.ErrClosed on Close.
// The grab belongs to the description and survives the swap.
func pollable(f *os.File) (*os.File, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	name := f.Name()
	f.Close()
	return os.NewFile(uintptr(fd), name), nil
}

func (d *evdevDevice) Identity() string {
	return d.identity
}

// ReadPress returns the next shutter press, reading a new batch from the
// kernel only once the previous one is used up
func (d *evdevDevice) ReadPress() (event.Event, error) {
	for len(d.queued) == 0 {
		batch, err := d.dev.Read()
		if err != nil {
			return event.Event{}, fmt.Errorf("failed to read %s: %w", d.dev.Fn, err)
		}
		now := time.Now()
		for _, ev := range batch {
			if ev.Type != evdev.EV_KEY || ev.Code != ShutterKey || ev.Value != 1 {
				continue
			}
			at := event.FromKernel(int64(ev.Time.Sec), int64(ev.Time.Usec), now)
			d.queued = append(d.queued, event.At(d.identity, at))
		}
	}

	ev := d.queued[0]
	d.queued = d.queued[1:]
	return ev, nil
}

// Close drops the grab along with the last reference to the file.
// Release is not used since Fd() would put the file back into blocking mode.
func (d *evdevDevice) Close() error {
	return d.dev.File.Close()
}

// uniq reads the unique identifier of the device (usually the Bluetooth address)
func uniq(dev *evdev.InputDevice) string {
	buf := make([]byte, 256)
	// EVIOCGUNIQ(len) = _IOC(_IOC_READ, 'E', 0x08, len)
	req := uintptr(2)<<30 | uintptr(len(buf))<<16 | uintptr('E')<<8 | 0x08
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, dev.File.Fd(), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 || n == 0 {
		return ""
	}
	return string(bytes.TrimRight(buf[:n], "\x00"))
}
