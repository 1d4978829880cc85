// Package evdev implements controller sources backed by Linux evdev nodes:
// the main gamepad interface, the touchpad and the vendor keyboard-shortcut
// channel are all instances of Gamepad with different event maps.
package evdev

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jochenvg/go-udev"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/antheas/hhd/internal/controller"
)

// AxisSpec maps an EV_ABS code to a logical axis. Reversed flips the sign
// of the normalized value for axes the kernel reports upside down.
type AxisSpec struct {
	Code     controller.Code
	Reversed bool
}

type deviceMatch struct {
	vendors  []uint16
	products []uint16
	names    []string
}

func (m deviceMatch) id(vendor, product uint16) bool {
	return contains(m.vendors, vendor) && contains(m.products, product)
}

func (m deviceMatch) name(name string) bool {
	if len(m.names) == 0 {
		return true
	}
	for _, n := range m.names {
		if n == name {
			return true
		}
	}
	return false
}

func contains(vals []uint16, v uint16) bool {
	for _, have := range vals {
		if have == v {
			return true
		}
	}
	return false
}

// Gamepad reads a single evdev input node, grabs it for exclusive access
// and translates input_event records through its button and axis maps.
// Consume is a no-op: evdev gamepads accept no events from the pipeline.
type Gamepad struct {
	log   *zap.Logger
	match deviceMatch

	btnMap  map[uint16]controller.Code
	axisMap map[uint16]AxisSpec

	fd      int
	grabbed bool
	ranges  map[uint16]absRange
	ffID    int16
}

type absRange struct {
	min, max int32
}

type Option func(*Gamepad)

// WithButtonMap replaces the default xpad button map.
func WithButtonMap(m map[uint16]controller.Code) Option {
	return func(g *Gamepad) { g.btnMap = m }
}

// WithAxisMap replaces the default xpad axis map.
func WithAxisMap(m map[uint16]AxisSpec) Option {
	return func(g *Gamepad) { g.axisMap = m }
}

// NewGamepad matches an evdev node by vendor/product id and, when names is
// non-empty, by exact device name. The node is located and opened in Open.
func NewGamepad(log *zap.Logger, vendors, products []uint16, names []string, opts ...Option) *Gamepad {
	g := &Gamepad{
		log:     log,
		match:   deviceMatch{vendors: vendors, products: products, names: names},
		btnMap:  XpadButtonMap(),
		axisMap: XpadAxisMap(),
		fd:      -1,
		ranges:  make(map[uint16]absRange),
		ffID:    -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gamepad) Open() ([]controller.Handle, error) {
	node, err := g.findNode()
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(node, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", node, err)
	}
	g.fd = fd

	for code := range g.axisMap {
		info, err := absInfo(fd, code)
		if err != nil {
			unix.Close(fd)
			g.fd = -1
			return nil, fmt.Errorf("failed to read absinfo for axis %#x: %w", code, err)
		}
		g.ranges[code] = absRange{min: info.Minimum, max: info.Maximum}
	}

	// Exclusive grab so the desktop does not see the device twice.
	if err := ioctl(fd, eviocGRAB, 1); err != nil {
		unix.Close(fd)
		g.fd = -1
		return nil, fmt.Errorf("failed to grab %s: %w", node, err)
	}
	g.grabbed = true

	g.log.Debug("opened evdev node", zap.String("node", node))
	return []controller.Handle{controller.Handle(fd)}, nil
}

// findNode walks the input subsystem through udev and returns the devnode
// of the first event device matching id and name.
func (g *Gamepad) findNode() (string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("input"); err != nil {
		return "", fmt.Errorf("failed to match input subsystem: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate input devices: %w", err)
	}
	for _, dev := range devices {
		if !strings.HasPrefix(dev.Sysname(), "event") || dev.Devnode() == "" {
			continue
		}
		ok, err := g.probe(dev.Devnode())
		if err != nil {
			g.log.Debug("skipping input node", zap.String("node", dev.Devnode()), zap.Error(err))
			continue
		}
		if ok {
			return dev.Devnode(), nil
		}
	}
	return "", fmt.Errorf("no evdev device found for %04x/%v", g.match.vendors, g.match.names)
}

func (g *Gamepad) probe(node string) (bool, error) {
	fd, err := unix.Open(node, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return false, err
	}
	defer unix.Close(fd)

	id, err := inputID(fd)
	if err != nil {
		return false, err
	}
	if !g.match.id(id.vendor, id.product) {
		return false, nil
	}
	name, err := inputName(fd)
	if err != nil {
		return false, err
	}
	return g.match.name(name), nil
}

const eventSize = 24 // struct input_event on 64-bit

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

	var out []controller.Event
	buf := make([]byte, eventSize*64)
	for {
		n, err := unix.Read(g.fd, buf)
		if err == unix.EAGAIN {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read evdev events: %w", err)
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			out = g.decode(out, buf[off:off+eventSize])
		}
		if n < len(buf) {
			break
		}
	}
	return out, nil
}

func (g *Gamepad) decode(out []controller.Event, rec []byte) []controller.Event {
	typ := binary.LittleEndian.Uint16(rec[16:18])
	code := binary.LittleEndian.Uint16(rec[18:20])
	value := int32(binary.LittleEndian.Uint32(rec[20:24]))

	switch typ {
	case evKey:
		logical, ok := g.btnMap[code]
		if !ok {
			return out
		}
		return append(out, controller.ButtonEvent(logical, value != 0))
	case evAbs:
		spec, ok := g.axisMap[code]
		if !ok {
			return out
		}
		v := g.normalize(code, value)
		if spec.Reversed {
			v = -v
		}
		return append(out, controller.AxisEvent(spec.Code, v))
	}
	return out
}

// normalize maps a raw absolute value into [-1, 1] using the range the
// kernel advertised at open time.
func (g *Gamepad) normalize(code uint16, value int32) float64 {
	r, ok := g.ranges[code]
	if !ok || r.max <= r.min {
		return float64(value)
	}
	return 2*float64(value-r.min)/float64(r.max-r.min) - 1
}

// Consume forwards rumble requests to the pad through force feedback.
// Everything else is irrelevant to an evdev gamepad. FF errors are not
// fatal: nodes without a rumble motor just log once per request.
func (g *Gamepad) Consume(batch []controller.Event) error {
	if g.fd < 0 {
		return nil
	}
	for _, ev := range batch {
		if ev.Kind != controller.KindConfiguration || ev.Code != controller.CodeRumble {
			continue
		}
		r, ok := ev.Conf.(controller.Rumble)
		if !ok {
			continue
		}
		if err := g.rumble(r); err != nil {
			g.log.Debug("failed to apply rumble", zap.Error(err))
		}
	}
	return nil
}

func (g *Gamepad) rumble(r controller.Rumble) error {
	eff := ffEffect{
		typ:             ffRumble,
		id:              g.ffID,
		strongMagnitude: magnitude(r.Strong),
		weakMagnitude:   magnitude(r.Weak),
	}
	if err := uploadEffect(g.fd, &eff); err != nil {
		return fmt.Errorf("failed to upload ff effect: %w", err)
	}
	g.ffID = eff.id

	var play [eventSize]byte
	binary.LittleEndian.PutUint16(play[16:18], evFF)
	binary.LittleEndian.PutUint16(play[18:20], uint16(eff.id))
	binary.LittleEndian.PutUint32(play[20:24], 1)
	if _, err := unix.Write(g.fd, play[:]); err != nil {
		return fmt.Errorf("failed to play ff effect: %w", err)
	}
	return nil
}

func magnitude(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(v * 0xffff)
}

func (g *Gamepad) Close(forced bool) error {
	if g.fd < 0 {
		return nil
	}
	if g.grabbed && !forced {
		if err := ioctl(g.fd, eviocGRAB, 0); err != nil {
			g.log.Warn("failed to release evdev grab", zap.Error(err))
		}
	}
	err := unix.Close(g.fd)
	g.fd = -1
	g.grabbed = false
	return err
}
