package trigger

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/trigs/trigs/internal/event"
)

// fakeDevice feeds presses from a channel; a nil press simulates a read failure
type fakeDevice struct {
	identity string
	presses  chan time.Time
	fail     chan error
	closed   chan struct{}
	once     sync.Once
}

func newFakeDevice(identity string) *fakeDevice {
	return &fakeDevice{
		identity: identity,
		presses:  make(chan time.Time),
		fail:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (d *fakeDevice) Identity() string { return d.identity }

func (d *fakeDevice) ReadPress() (event.Event, error) {
	select {
	case at := <-d.presses:
		return event.At(d.identity, at), nil
	case err := <-d.fail:
		return event.Event{}, err
	case <-d.closed:
		return event.Event{}, errors.New("device closed")
	}
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func TestPhysicalNext(t *testing.T) {
	dev := newFakeDevice("aa:bb")
	p := newPhysical("/dev/input/event3", dev)
	defer p.Close()

	if p.ID() != "aa:bb" || p.Path() != "/dev/input/event3" {
		t.Fatalf("unexpected identity %q path %q", p.ID(), p.Path())
	}

	at := time.Now().Add(-time.Second)
	go func() { dev.presses <- at }()

	ev, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Source() != p {
		t.Errorf("event source = %v, want the trigger", ev.Source())
	}
	if !ev.Time().Equal(at) {
		t.Errorf("event time = %v, want %v", ev.Time(), at)
	}
}

func TestPhysicalCancelKeepsPress(t *testing.T) {
	dev := newFakeDevice("aa:bb")
	p := newPhysical("/dev/input/event3", dev)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	at := time.Now()
	go func() { dev.presses <- at }()

	ev, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !ev.Time().Equal(at) {
		t.Errorf("expected press after cancellation to be delivered")
	}
}

func TestPhysicalFailure(t *testing.T) {
	dev := newFakeDevice("aa:bb")
	p := newPhysical("/dev/input/event3", dev)
	defer p.Close()

	cause := errors.New("no such device")
	dev.fail <- cause

	_, err := p.Next(context.Background())
	if !errors.Is(err, ErrTrigger) {
		t.Fatalf("expected trigger error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
	var terr *Error
	if !errors.As(err, &terr) || terr.ID != "aa:bb" {
		t.Errorf("expected error for aa:bb, got %v", err)
	}
}

func TestPhysicalClosed(t *testing.T) {
	dev := newFakeDevice("aa:bb")
	p := newPhysical("/dev/input/event3", dev)

	done := make(chan error, 1)
	go func() {
		_, err := p.Next(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) || !errors.Is(err, ErrTrigger) {
			t.Errorf("expected closed trigger error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestPhysicalCloseStopsPendingRead(t *testing.T) {
	dev := newFakeDevice("aa:bb")
	p := newPhysical("/dev/input/event3", dev)

	// No Next is waiting, so the reader sits in ReadPress
	time.Sleep(10 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- p.Close() }()

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not return with a read pending")
	}
	select {
	case <-p.stopped:
	default:
		t.Error("reader still running after Close")
	}
}

func TestVirtual(t *testing.T) {
	v := NewVirtual("left")
	if v.ID() != NewVirtual("left").ID() {
		t.Error("same label should give the same identity")
	}
	if v.ID() == NewVirtual("right").ID() {
		t.Error("different labels should give different identities")
	}
	if NewVirtual("").ID() == NewVirtual("").ID() {
		t.Error("unlabelled triggers should get distinct identities")
	}

	if !v.Activate() {
		t.Fatal("first activation dropped")
	}
	if v.Activate() {
		t.Error("second pending activation should be dropped")
	}

	ev, err := v.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Source() != v {
		t.Errorf("event source = %v, want the trigger", ev.Source())
	}

	v.Close()
	if v.Activate() {
		t.Error("activation after Close should be dropped")
	}
	if _, err := v.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestKeyboard(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	k, err := NewKeyboard(r, []byte("ab"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewKeyboard failed: %v", err)
	}
	if err := k.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	triggers := k.Triggers()
	if len(triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(triggers))
	}

	if _, err := w.Write([]byte("xb")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := triggers[1].Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Source() != triggers[1] {
		t.Errorf("event from wrong trigger: %v", ev.Source())
	}

	if _, err := w.Write([]byte("q")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-k.Closed():
	case <-time.After(time.Second):
		t.Fatal("panel not closed by q")
	}

	if err := k.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := triggers[0].Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestKeyboardReservedKeys(t *testing.T) {
	tests := []struct {
		name string
		keys string
	}{
		{"quit", "aq"},
		{"interrupt", "\x03"},
		{"duplicate", "aa"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewKeyboard(strings.NewReader(""), []byte(tt.keys), nil); err == nil {
				t.Errorf("expected error for keys %q", tt.keys)
			}
		})
	}
}

func TestKeyboardEOF(t *testing.T) {
	k, err := NewKeyboard(strings.NewReader("a"), []byte("a"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-k.Closed():
	case <-time.After(time.Second):
		t.Fatal("panel not closed at end of input")
	}
}

const devicesFixture = `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
P: Phys=PNP0C0C/button/input0
H: Handlers=kbd event0

I: Bus=0005 Vendor=248a Product=8266 Version=0001
N: Name="AB Shutter3 Consumer Control"
P: Phys=dc:a6:32:00:00:01
U: Uniq=ff:ff:00:00:12:34
H: Handlers=kbd event4

I: Bus=0005 Vendor=248a Product=8266 Version=0001
N: Name="AB Shutter3 Keyboard"
H: Handlers=sysrq kbd leds event5

I: Bus=0005 Vendor=248a Product=8266 Version=0001
N: Name="AB Shutter3 Consumer Control"
H: Handlers=kbd event7`

func TestParseDevices(t *testing.T) {
	paths, err := ParseDevices(strings.NewReader(devicesFixture))
	if err != nil {
		t.Fatalf("ParseDevices failed: %v", err)
	}
	want := []string{"/dev/input/event4", "/dev/input/event7"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestProcDiscoverer(t *testing.T) {
	file := filepath.Join(t.TempDir(), "devices")
	if err := os.WriteFile(file, []byte(devicesFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := ProcDiscoverer{File: file}.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("expected 2 devices, got %v", paths)
	}

	_, err = ProcDiscoverer{File: filepath.Join(t.TempDir(), "missing")}.Discover(context.Background())
	if !IsDiscoveryError(err) {
		t.Errorf("expected discovery error, got %v", err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHelperDiscoverer(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    []string
		wantErr bool
	}{
		{
			name:   "devices",
			script: "echo /dev/input/event4\necho\necho /dev/input/event7\n",
			want:   []string{"/dev/input/event4", "/dev/input/event7"},
		},
		{
			name:   "none",
			script: "exit 0\n",
		},
		{
			name:    "password prompt",
			script:  "echo 'sudo: a password is required' >&2\nexit 1\n",
			wantErr: true,
		},
		{
			name:    "failure",
			script:  "echo broken >&2\nexit 3\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HelperDiscoverer{Path: writeScript(t, tt.script), Command: []string{"sh"}}
			paths, err := h.Discover(context.Background())
			if tt.wantErr {
				if !IsDiscoveryError(err) {
					t.Fatalf("expected discovery error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Discover failed: %v", err)
			}
			if len(paths) != len(tt.want) {
				t.Fatalf("got %v, want %v", paths, tt.want)
			}
			for i := range tt.want {
				if paths[i] != tt.want[i] {
					t.Errorf("paths[%d] = %q, want %q", i, paths[i], tt.want[i])
				}
			}
		})
	}
}

type staticDiscoverer struct {
	paths []string
	err   error
}

func (s staticDiscoverer) Discover(context.Context) ([]string, error) {
	return s.paths, s.err
}

func TestRegistryDiscover(t *testing.T) {
	devices := map[string]*fakeDevice{
		"/dev/input/event4": newFakeDevice("dev-a"),
		"/dev/input/event7": newFakeDevice("dev-b"),
	}

	r := NewRegistry(staticDiscoverer{paths: []string{"/dev/input/event4", "/dev/input/event7"}}, zaptest.NewLogger(t))
	r.open = func(path string) (device, error) {
		if d, ok := devices[path]; ok {
			return d, nil
		}
		return nil, errors.New("no such device")
	}
	v := NewVirtual("panel")
	r.Attach(v)
	defer r.CloseAll()

	triggers, err := r.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(triggers) != 3 {
		t.Fatalf("expected 3 triggers, got %d", len(triggers))
	}
	if triggers[0].ID() != "dev-a" || triggers[1].ID() != "dev-b" || triggers[2] != v {
		t.Errorf("unexpected triggers %v", triggers)
	}

	first := triggers[0]
	devices["/dev/input/event4"] = newFakeDevice("dev-a")
	devices["/dev/input/event7"] = newFakeDevice("dev-b")
	if _, err := r.Discover(context.Background()); err != nil {
		t.Fatalf("second Discover failed: %v", err)
	}
	if _, err := first.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected rediscovery to close old triggers, got %v", err)
	}
}

func TestRegistryOpenFailure(t *testing.T) {
	good := newFakeDevice("dev-a")
	r := NewRegistry(staticDiscoverer{paths: []string{"/dev/input/event4", "/dev/input/event9"}}, nil)
	r.open = func(path string) (device, error) {
		if path == "/dev/input/event4" {
			return good, nil
		}
		return nil, errors.New("permission denied")
	}

	_, err := r.Discover(context.Background())
	var terr *Error
	if !errors.As(err, &terr) || terr.ID != "/dev/input/event9" {
		t.Fatalf("expected trigger error for event9, got %v", err)
	}
	select {
	case <-good.closed:
	default:
		t.Error("opened device not closed after failure")
	}
	if n := len(r.Triggers()); n != 0 {
		t.Errorf("expected no triggers after failure, got %d", n)
	}
}

func TestRegistryDiscoveryFailure(t *testing.T) {
	r := NewRegistry(staticDiscoverer{err: &DiscoveryError{Err: errors.New("no helper")}}, nil)
	if _, err := r.Discover(context.Background()); !IsDiscoveryError(err) {
		t.Errorf("expected discovery error, got %v", err)
	}
}
