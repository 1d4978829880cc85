// Package imu implements motion sensor sources on top of the Linux IIO
// buffer interface. Handhelds expose accelerometer and gyroscope through
// hid-sensor drivers as iio devices; enabling their scan elements yields a
// character device the aggregation loop can wait on.
package imu

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/antheas/hhd/internal/controller"
)

const iioRoot = "/sys/bus/iio/devices"

// Sensor reads one 3-axis IIO device. Records are decoded with the layout
// advertised by the scan_elements directory, scaled by the device scale
// attribute and emitted as axis events in physical units.
type Sensor struct {
	log    *zap.Logger
	name   string // iio name attribute, e.g. "accel_3d"
	prefix string // channel prefix, e.g. "in_accel"
	codes  [3]controller.Code

	sysdir  string
	fd      int
	scale   float64
	layout  []channel
	recSize int
	enabled bool
}

type channel struct {
	axis    int // 0..2 for x/y/z
	index   int
	signed  bool
	bits    uint
	storage uint // storage size in bits
	shift   uint
	offset  int // byte offset within a record
}

// NewAccel returns the accelerometer source.
func NewAccel(log *zap.Logger) *Sensor {
	return &Sensor{
		log:    log,
		name:   "accel_3d",
		prefix: "in_accel",
		codes:  [3]controller.Code{"accel_x", "accel_y", "accel_z"},
		fd:     -1,
	}
}

// NewGyro returns the gyroscope source.
func NewGyro(log *zap.Logger) *Sensor {
	return &Sensor{
		log:    log,
		name:   "gyro_3d",
		prefix: "in_anglvel",
		codes:  [3]controller.Code{"gyro_x", "gyro_y", "gyro_z"},
		fd:     -1,
	}
}

func (s *Sensor) Open() ([]controller.Handle, error) {
	dir, err := findDevice(s.name)
	if err != nil {
		return nil, err
	}
	s.sysdir = dir

	scale, err := readFloat(filepath.Join(dir, s.prefix+"_scale"))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s scale: %w", s.name, err)
	}
	s.scale = scale

	if err := s.configureScan(); err != nil {
		return nil, err
	}

	if err := writeAttr(filepath.Join(dir, "buffer", "length"), "32"); err != nil {
		return nil, fmt.Errorf("failed to size %s buffer: %w", s.name, err)
	}
	if err := writeAttr(filepath.Join(dir, "buffer", "enable"), "1"); err != nil {
		return nil, fmt.Errorf("failed to enable %s buffer: %w", s.name, err)
	}
	s.enabled = true

	node := "/dev/" + filepath.Base(dir)
	fd, err := unix.Open(node, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", node, err)
	}
	s.fd = fd
	s.log.Debug("opened iio sensor",
		zap.String("node", node),
		zap.Float64("scale", s.scale),
		zap.Int("recordSize", s.recSize))
	return []controller.Handle{controller.Handle(fd)}, nil
}

func findDevice(name string) (string, error) {
	entries, err := os.ReadDir(iioRoot)
	if err != nil {
		return "", fmt.Errorf("failed to list iio devices: %w", err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "iio:device") {
			continue
		}
		dir := filepath.Join(iioRoot, e.Name())
		b, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(b)) == name {
			return dir, nil
		}
	}
	return "", fmt.Errorf("iio device %q not found", name)
}

// configureScan enables the x/y/z channels, disables the timestamp and
// derives the in-buffer record layout from the index and type attributes.
func (s *Sensor) configureScan() error {
	scanDir := filepath.Join(s.sysdir, "scan_elements")

	// Timestamps only widen the records; the loop supplies its own timing.
	tsEn := filepath.Join(scanDir, "in_timestamp_en")
	if _, err := os.Stat(tsEn); err == nil {
		if err := writeAttr(tsEn, "0"); err != nil {
			return fmt.Errorf("failed to disable timestamp channel: %w", err)
		}
	}

	s.layout = s.layout[:0]
	for axis, suffix := range []string{"_x", "_y", "_z"} {
		base := filepath.Join(scanDir, s.prefix+suffix)
		if err := writeAttr(base+"_en", "1"); err != nil {
			return fmt.Errorf("failed to enable channel %s: %w", s.prefix+suffix, err)
		}
		index, err := readInt(base + "_index")
		if err != nil {
			return fmt.Errorf("failed to read channel index: %w", err)
		}
		typ, err := os.ReadFile(base + "_type")
		if err != nil {
			return fmt.Errorf("failed to read channel type: %w", err)
		}
		ch, err := parseChannelType(strings.TrimSpace(string(typ)))
		if err != nil {
			return fmt.Errorf("channel %s: %w", s.prefix+suffix, err)
		}
		ch.axis = axis
		ch.index = index
		s.layout = append(s.layout, ch)
	}

	// Offsets follow scan index order, each channel aligned to its storage.
	sort.Slice(s.layout, func(i, j int) bool { return s.layout[i].index < s.layout[j].index })
	off := 0
	for i := range s.layout {
		size := int(s.layout[i].storage / 8)
		if rem := off % size; rem != 0 {
			off += size - rem
		}
		s.layout[i].offset = off
		off += size
	}
	s.recSize = off
	return nil
}

// parseChannelType decodes an IIO scan element type such as "le:s16/32>>0".
func parseChannelType(t string) (channel, error) {
	var (
		endian string
		sign   byte
		ch     channel
	)
	n, err := fmt.Sscanf(t, "%2s:%c%d/%d>>%d", &endian, &sign, &ch.bits, &ch.storage, &ch.shift)
	if err != nil || n != 5 {
		return channel{}, fmt.Errorf("unsupported scan element type %q", t)
	}
	if endian != "le" {
		return channel{}, fmt.Errorf("unsupported endianness in %q", t)
	}
	if ch.storage != 16 && ch.storage != 32 && ch.storage != 64 {
		return channel{}, fmt.Errorf("unsupported storage size in %q", t)
	}
	ch.signed = sign == 's'
	return ch, nil
}

func (s *Sensor) Produce(ready []controller.Handle) ([]controller.Event, error) {
	mine := false
	for _, h := range ready {
		if int(h) == s.fd {
			mine = true
		}
	}
	if !mine || s.fd < 0 || s.recSize == 0 {
		return nil, nil
	}

	// Keep only the newest record: motion data is state, not edges.
	buf := make([]byte, s.recSize*32)
	var last []byte
	for {
		n, err := unix.Read(s.fd, buf)
		if err == unix.EAGAIN {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s records: %w", s.name, err)
		}
		if n >= s.recSize {
			rec := n / s.recSize * s.recSize
			last = append(last[:0], buf[rec-s.recSize:rec]...)
		}
		if n < len(buf) {
			break
		}
	}
	if last == nil {
		return nil, nil
	}

	out := make([]controller.Event, 0, 3)
	for _, ch := range s.layout {
		out = append(out, controller.AxisEvent(s.codes[ch.axis], float64(ch.decode(last))*s.scale))
	}
	return out, nil
}

func (c channel) decode(rec []byte) int64 {
	var raw uint64
	for i := 0; i < int(c.storage/8); i++ {
		raw |= uint64(rec[c.offset+i]) << (8 * i)
	}
	raw >>= c.shift
	raw &= (1 << c.bits) - 1
	if c.signed && raw&(1<<(c.bits-1)) != 0 {
		return int64(raw) - (1 << c.bits)
	}
	return int64(raw)
}

func (s *Sensor) Close(forced bool) error {
	var err error
	if s.fd >= 0 {
		err = unix.Close(s.fd)
		s.fd = -1
	}
	// Leave the buffer running on forced teardown: the device may already
	// be gone and sysfs writes would only delay the restart.
	if s.enabled && !forced {
		if werr := writeAttr(filepath.Join(s.sysdir, "buffer", "enable"), "0"); werr != nil && err == nil {
			err = werr
		}
	}
	s.enabled = false
	return err
}

func writeAttr(path, value string) error {
	return os.WriteFile(path, []byte(value), 0644)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}
