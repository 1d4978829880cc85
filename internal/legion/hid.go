package legion

import (
	"fmt"

	"github.com/sstallion/go-hid"

	"github.com/antheas/hhd/internal/controller"
)

// RGB programming goes through vendor feature reports on the raw
// interface, one report per controller side.
const (
	rgbReportID  = 0x04
	rgbSet       = 0x01
	rgbModeSolid = 0x01

	rgbSideLeft  = 0x01
	rgbSideRight = 0x02
)

func rgbReport(side uint8, c controller.RGB) []byte {
	rep := make([]byte, rawReportSize)
	rep[0] = rgbReportID
	rep[1] = rgbSet
	rep[2] = side
	rep[3] = rgbModeSolid
	rep[4] = c.R
	rep[5] = c.G
	rep[6] = c.B
	rep[7] = 0x64 // brightness, percent
	rep[8] = 0x01 // animation speed, unused for solid
	return rep
}

// rgbCommand routes lightbar configuration events to the controllers.
// Rumble and status events are not for the raw channel and are skipped.
func rgbCommand(dev *hid.Device, ev controller.Event) error {
	var side uint8
	switch ev.Code {
	case controller.CodeLedLeft:
		side = rgbSideLeft
	case controller.CodeLedRight:
		side = rgbSideRight
	default:
		return nil
	}
	c, ok := ev.Conf.(controller.RGB)
	if !ok {
		return nil
	}
	if dev == nil {
		return fmt.Errorf("raw device not open")
	}
	if _, err := dev.SendFeatureReport(rgbReport(side, c)); err != nil {
		return fmt.Errorf("failed to send rgb report: %w", err)
	}
	return nil
}
