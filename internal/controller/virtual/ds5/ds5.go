// Package ds5 emulates a DualSense controller through the uhid kernel
// interface. It is a sink for the merged event stream (reports) and a
// source of configuration events (rumble and lightbar requests from the
// host), surfaced through a self-pipe the aggregation loop can wait on.
package ds5

import (
	"context"
	"fmt"
	"sync"

	"github.com/psanford/uhid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/antheas/hhd/internal/controller"
)

const (
	vendorID  = 0x054c
	productID = 0x0ce6
)

// reportDescriptor describes one 64-byte input report (sticks, triggers,
// hat, 15 buttons, vendor block carrying sensors and touch) and one
// 64-byte output report (rumble, lightbar).
var reportDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x05, // Usage (Gamepad)
	0xa1, 0x01, // Collection (Application)
	0x85, inputReportID, //   Report ID
	0x09, 0x30, //   Usage (X)
	0x09, 0x31, //   Usage (Y)
	0x09, 0x32, //   Usage (Z)
	0x09, 0x35, //   Usage (Rz)
	0x09, 0x33, //   Usage (Rx)
	0x09, 0x34, //   Usage (Ry)
	0x15, 0x00, //   Logical Minimum (0)
	0x26, 0xff, 0x00, //   Logical Maximum (255)
	0x75, 0x08, //   Report Size (8)
	0x95, 0x06, //   Report Count (6)
	0x81, 0x02, //   Input (Data,Var,Abs)
	0x95, 0x01, //   Report Count (1), sequence counter
	0x81, 0x03, //   Input (Const,Var,Abs)
	0x09, 0x39, //   Usage (Hat switch)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x07, //   Logical Maximum (7)
	0x35, 0x00, //   Physical Minimum (0)
	0x46, 0x3b, 0x01, //   Physical Maximum (315)
	0x65, 0x14, //   Unit (Degrees)
	0x75, 0x04, //   Report Size (4)
	0x95, 0x01, //   Report Count (1)
	0x81, 0x42, //   Input (Data,Var,Abs,Null)
	0x65, 0x00, //   Unit (None)
	0x05, 0x09, //   Usage Page (Button)
	0x19, 0x01, //   Usage Minimum (1)
	0x29, 0x0f, //   Usage Maximum (15)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x0f, //   Report Count (15)
	0x81, 0x02, //   Input (Data,Var,Abs)
	0x95, 0x05, //   Report Count (5), padding
	0x81, 0x03, //   Input (Const,Var,Abs)
	0x06, 0x00, 0xff, //   Usage Page (Vendor)
	0x09, 0x01, //   Usage (1), sensors and touch block
	0x75, 0x08, //   Report Size (8)
	0x95, 0x35, //   Report Count (53)
	0x81, 0x02, //   Input (Data,Var,Abs)
	0x85, outputReportID, //   Report ID
	0x09, 0x02, //   Usage (2)
	0x75, 0x08, //   Report Size (8)
	0x95, 0x3f, //   Report Count (63)
	0x91, 0x02, //   Output (Data,Var,Abs)
	0xc0, // End Collection
}

// DualSense is the virtual controller device.
type DualSense struct {
	log *zap.Logger

	dev    *uhid.Device
	cancel context.CancelFunc

	pipeR, pipeW int

	mu    sync.Mutex
	queue []controller.Event
	last  output

	state reportState
	seq   uint8
}

func NewDualSense(log *zap.Logger) *DualSense {
	return &DualSense{log: log, pipeR: -1, pipeW: -1, state: newReportState()}
}

func (d *DualSense) Open() ([]controller.Handle, error) {
	dev, err := uhid.NewDevice("hhd-ds5", reportDescriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to create uhid device: %w", err)
	}
	dev.Data.Bus = 0x03
	dev.Data.VendorID = vendorID
	dev.Data.ProductID = productID

	ctx, cancel := context.WithCancel(context.Background())
	events, err := dev.Open(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open uhid device: %w", err)
	}

	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("failed to create uhid event pipe: %w", err)
	}

	d.dev = dev
	d.cancel = cancel
	d.pipeR, d.pipeW = pipe[0], pipe[1]
	go d.run(ctx, events)

	d.log.Debug("virtual dualsense created")
	return []controller.Handle{controller.Handle(d.pipeR)}, nil
}

// run pumps uhid kernel events into the configuration event queue. A byte
// on the self-pipe marks the queue non-empty for the readiness wait.
func (d *DualSense) run(ctx context.Context, events chan uhid.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != uhid.Output {
				continue
			}
			out, ok := parseOutput(ev.Data)
			if !ok {
				continue
			}
			d.enqueue(out)
		}
	}
}

func (d *DualSense) enqueue(out output) {
	d.mu.Lock()
	defer d.mu.Unlock()
	notify := false
	if out.rumble != d.last.rumble {
		d.queue = append(d.queue, controller.ConfEvent(controller.CodeRumble, out.rumble))
		d.last.rumble = out.rumble
		notify = true
	}
	if out.hasLed && out.led != d.last.led {
		d.queue = append(d.queue, controller.ConfEvent(controller.CodeLedMain, out.led))
		d.last.led = out.led
		notify = true
	}
	if notify {
		unix.Write(d.pipeW, []byte{0})
	}
}

func (d *DualSense) Produce(ready []controller.Handle) ([]controller.Event, error) {
	mine := false
	for _, h := range ready {
		if int(h) == d.pipeR {
			mine = true
		}
	}
	if !mine || d.pipeR < 0 {
		return nil, nil
	}
	buf := make([]byte, 16)
	unix.Read(d.pipeR, buf)

	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.queue
	d.queue = nil
	return out, nil
}

// Consume folds the batch into the report state and pushes one input
// report, so bursts merged upstream cost a single uhid write.
func (d *DualSense) Consume(batch []controller.Event) error {
	if d.dev == nil {
		return nil
	}
	for _, ev := range batch {
		d.state.apply(ev)
	}
	d.seq++
	if err := d.dev.InjectEvent(d.state.encode(d.seq)); err != nil {
		return fmt.Errorf("failed to write input report: %w", err)
	}
	return nil
}

func (d *DualSense) Close(forced bool) error {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	var err error
	if d.dev != nil {
		err = d.dev.Close()
		d.dev = nil
	}
	if d.pipeR >= 0 {
		unix.Close(d.pipeR)
		unix.Close(d.pipeW)
		d.pipeR, d.pipeW = -1, -1
	}
	return err
}
