// Package legion is the Legion Go controller plugin: it discovers the
// controllers, builds one aggregation session around the interfaces they
// expose in xinput mode and supervises it across disconnects.
package legion

import (
	"context"
	"fmt"

	"github.com/sstallion/go-hid"
	"go.uber.org/zap"

	"github.com/antheas/hhd/internal/controller"
	"github.com/antheas/hhd/internal/controller/physical/evdev"
	"github.com/antheas/hhd/internal/controller/physical/hidraw"
	"github.com/antheas/hhd/internal/controller/physical/imu"
	"github.com/antheas/hhd/internal/controller/virtual/ds5"
)

// Device is one discovered controller pair.
type Device struct {
	ProductID uint16
	Mode      Mode
	Name      string
}

func (d Device) Address() string {
	return fmt.Sprintf("%04x:%04x", VendorID, d.ProductID)
}

// Discover returns the first supported controller found, or nil when none
// is connected.
func Discover() (*Device, error) {
	devices, err := Enumerate()
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, nil
	}
	return &devices[0], nil
}

// Enumerate lists every connected Legion Go controller interface set.
func Enumerate() ([]Device, error) {
	seen := make(map[uint16]struct{})
	var out []Device
	err := hid.Enumerate(VendorID, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		mode, ok := productModes[info.ProductID]
		if !ok {
			return nil
		}
		if _, dup := seen[info.ProductID]; dup {
			return nil
		}
		seen[info.ProductID] = struct{}{}
		out = append(out, Device{
			ProductID: info.ProductID,
			Mode:      mode,
			Name:      info.ProductStr,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate controllers: %w", err)
	}
	return out, nil
}

// SessionConfig is the per-session configuration snapshot. It is fixed for
// the lifetime of one session; changes apply on the next one.
type SessionConfig struct {
	Accel      bool
	Gyro       bool
	SwapLegion bool

	ReportFreqMin float64
	ReportFreqMax float64
}

// RunSession emulates a DualSense for one connected controller pair in
// xinput mode and blocks until cancellation or a device error.
func RunSession(ctx context.Context, log *zap.Logger, cfg SessionConfig) error {
	virtual := ds5.NewDualSense(log.Named("ds5"))

	xinput := evdev.NewGamepad(log.Named("xinput"),
		[]uint16{VendorID}, []uint16{0x6182}, []string{xinputName})
	touchpad := evdev.NewGamepad(log.Named("touchpad"),
		[]uint16{VendorID}, []uint16{0x6182}, []string{touchpadName},
		evdev.WithButtonMap(evdev.TouchpadButtonMap()),
		evdev.WithAxisMap(evdev.TouchpadAxisMap()))
	shortcuts := evdev.NewGamepad(log.Named("shortcuts"),
		[]uint16{VendorID}, productIDs(), []string{keyboardName},
		evdev.WithButtonMap(shortcutsButtonMap()),
		evdev.WithAxisMap(nil))

	raw := hidraw.NewGamepad(log.Named("raw"),
		VendorID, productIDs(), rawUsagePage, rawUsage, rawReportSize,
		hidraw.WithButtons(rawButtons()),
		hidraw.WithConfigFields(rawConfigs()),
		hidraw.WithCommand(rgbCommand))
	gate := controller.NewPassthroughGate(raw, rawModifiers(), rawEssentials())

	sources := []controller.Source{virtual}
	if cfg.Accel {
		sources = append(sources, imu.NewAccel(log.Named("accel")))
	}
	if cfg.Gyro {
		sources = append(sources, imu.NewGyro(log.Named("gyro")))
	}
	sources = append(sources, xinput, shortcuts, touchpad, gate)

	sinks := []controller.Sink{virtual, xinput, gate}

	muxCfg := controller.MuxConfig{
		Trigger: controller.TriggerAnalogToDiscrete,
		Dpad:    controller.DpadAnalogToDiscrete,
		LED:     controller.LEDMainToSides,
		Status:  controller.StatusBothToMain,
	}
	if cfg.SwapLegion {
		muxCfg.SwapGuide = controller.GuideIsSelect
	}
	mux := controller.NewMultiplexer(muxCfg)

	loop, err := controller.NewLoop(log.Named("loop"), sources, sinks, mux.Process,
		cfg.ReportFreqMin, cfg.ReportFreqMax)
	if err != nil {
		return err
	}

	log.Info("dualsense session starting")
	return loop.Run(ctx)
}
