// Package hidraw implements the raw vendor HID channel as a controller
// source and sink. Vendor interfaces report buttons the generic gamepad
// interface does not carry (paddles, scroll wheel, quick-access keys) and
// accept vendor commands such as RGB programming through feature reports.
package hidraw

import (
	"fmt"

	"github.com/sstallion/go-hid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/antheas/hhd/internal/controller"
)

// ButtonField locates one vendor button inside a fixed-size report.
type ButtonField struct {
	Byte int
	Bit  uint8
	Code controller.Code
}

// ConfigField surfaces one report byte as a configuration event, scaled.
// Used for battery level and charging status fields.
type ConfigField struct {
	Byte  int
	Code  controller.Code
	Scale float64
}

// CommandFunc encodes a consumed configuration event into vendor feature
// reports. Events with codes the callback does not recognize are ignored.
type CommandFunc func(dev *hid.Device, ev controller.Event) error

// Gamepad reads fixed-size vendor reports from a hidraw node. Reports are
// diffed against the previously seen report so only edges are emitted.
//
// The node is located with hidapi by vendor/product id and usage page, read
// through a nonblocking file descriptor (so the aggregation loop can wait
// on it) and written through the hidapi handle.
type Gamepad struct {
	log *zap.Logger

	vendorID   uint16
	productIDs []uint16
	usagePage  uint16
	usage      uint16

	reportSize int
	buttons    []ButtonField
	configs    []ConfigField
	command    CommandFunc

	fd   int
	dev  *hid.Device
	prev []byte
}

type Option func(*Gamepad)

// WithButtons sets the vendor button bit map.
func WithButtons(fields []ButtonField) Option {
	return func(g *Gamepad) { g.buttons = fields }
}

// WithConfigFields sets the report bytes surfaced as configuration events.
func WithConfigFields(fields []ConfigField) Option {
	return func(g *Gamepad) { g.configs = fields }
}

// WithCommand installs the vendor command encoder used by Consume.
func WithCommand(fn CommandFunc) Option {
	return func(g *Gamepad) { g.command = fn }
}

func NewGamepad(log *zap.Logger, vendorID uint16, productIDs []uint16, usagePage, usage uint16, reportSize int, opts ...Option) *Gamepad {
	g := &Gamepad{
		log:        log,
		vendorID:   vendorID,
		productIDs: productIDs,
		usagePage:  usagePage,
		usage:      usage,
		reportSize: reportSize,
		fd:         -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gamepad) Open() ([]controller.Handle, error) {
	var info *hid.DeviceInfo
	err := hid.Enumerate(g.vendorID, hid.ProductIDAny, func(di *hid.DeviceInfo) error {
		if info != nil {
			return nil
		}
		if !contains(g.productIDs, di.ProductID) {
			return nil
		}
		if di.UsagePage != g.usagePage || di.Usage != g.usage {
			return nil
		}
		cp := *di
		info = &cp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate hid devices: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("no vendor interface found for %04x usage %04x:%04x",
			g.vendorID, g.usagePage, g.usage)
	}

	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", info.Path, err)
	}
	// With the hidraw backend the hidapi path is the device node itself;
	// a second nonblocking descriptor feeds the readiness wait.
	fd, err := unix.Open(info.Path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to open %s for polling: %w", info.Path, err)
	}

	g.dev = dev
	g.fd = fd
	g.prev = make([]byte, g.reportSize)
	g.log.Debug("opened vendor interface",
		zap.String("path", info.Path),
		zap.Uint16("pid", info.ProductID))
	return []controller.Handle{controller.Handle(fd)}, nil
}

func contains(vals []uint16, v uint16) bool {
	for _, have := range vals {
		if have == v {
			return true
		}
	}
	return false
}

func (g *Gamepad) Produce(ready []controller.Handle) ([]controller.Event, error) {
	mine := false
	for _, h := range ready {
		if int(h) == g.fd {
			mine = true
		}
	}
	if !mine || g.fd < 0 {
		return nil, nil
	}

	// Drain everything buffered and report edges against the last state,
	// so a burst of identical reports contributes nothing.
	buf := make([]byte, g.reportSize)
	latest := false
	for {
		n, err := unix.Read(g.fd, buf)
		if err == unix.EAGAIN {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read vendor report: %w", err)
		}
		if n < g.reportSize {
			g.log.Debug("short vendor report", zap.Int("len", n))
			continue
		}
		latest = true
	}
	if !latest {
		return nil, nil
	}
	out := g.diff(buf)
	copy(g.prev, buf)
	return out, nil
}

func (g *Gamepad) diff(report []byte) []controller.Event {
	var out []controller.Event
	for _, f := range g.buttons {
		if f.Byte >= len(report) {
			continue
		}
		now := report[f.Byte]&(1<<f.Bit) != 0
		before := g.prev[f.Byte]&(1<<f.Bit) != 0
		if now != before {
			out = append(out, controller.ButtonEvent(f.Code, now))
		}
	}
	for _, f := range g.configs {
		if f.Byte >= len(report) {
			continue
		}
		if report[f.Byte] != g.prev[f.Byte] {
			scale := f.Scale
			if scale == 0 {
				scale = 1
			}
			out = append(out, controller.ConfEvent(f.Code, float64(report[f.Byte])*scale))
		}
	}
	return out
}

// Consume routes configuration events to the vendor command encoder. All
// other events are irrelevant to the raw channel and ignored.
func (g *Gamepad) Consume(batch []controller.Event) error {
	if g.command == nil {
		return nil
	}
	for _, ev := range batch {
		if ev.Kind != controller.KindConfiguration {
			continue
		}
		if err := g.command(g.dev, ev); err != nil {
			return fmt.Errorf("vendor command for %s failed: %w", ev.Code, err)
		}
	}
	return nil
}

func (g *Gamepad) Close(forced bool) error {
	var err error
	if g.fd >= 0 {
		err = unix.Close(g.fd)
		g.fd = -1
	}
	if g.dev != nil {
		if cerr := g.dev.Close(); cerr != nil && err == nil {
			err = cerr
		}
		g.dev = nil
	}
	return err
}
