package ds5

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antheas/hhd/internal/controller"
)

func TestReportStateEncode(t *testing.T) {
	var s reportState
	for _, ev := range []controller.Event{
		controller.ButtonEvent("a", true),
		controller.ButtonEvent("lb", true),
		controller.ButtonEvent(controller.CodeMode, true),
		controller.AxisEvent("ls_x", 1),
		controller.AxisEvent("ls_y", -1),
		controller.AxisEvent(controller.CodeRT, 1),
		controller.ButtonEvent(controller.CodeDpadUp, true),
	} {
		s.apply(ev)
	}

	rep := s.encode(7)
	require.Len(t, rep, inputReportLen)
	assert.Equal(t, uint8(inputReportID), rep[0])
	assert.Equal(t, uint8(255), rep[1], "left stick x full right")
	assert.Equal(t, uint8(0), rep[2], "left stick y full up")
	assert.Equal(t, uint8(0x80), rep[3], "right stick x centered")
	assert.Equal(t, uint8(255), rep[6], "right trigger")
	assert.Equal(t, uint8(7), rep[7], "sequence counter")
	assert.Equal(t, uint8(0), rep[8]&0x0f, "hat north")
	assert.NotZero(t, rep[8]&(1<<5), "cross")
	assert.NotZero(t, rep[9]&(1<<0), "l1")
	assert.NotZero(t, rep[10]&(1<<0), "ps")
}

func TestReportStateHat(t *testing.T) {
	var s reportState
	assert.Equal(t, uint8(8), s.hat(), "released")
	s.apply(controller.ButtonEvent(controller.CodeDpadDown, true))
	s.apply(controller.ButtonEvent(controller.CodeDpadLeft, true))
	assert.Equal(t, uint8(5), s.hat(), "south west")
	s.apply(controller.ButtonEvent(controller.CodeDpadDown, false))
	assert.Equal(t, uint8(6), s.hat(), "west")
}

func TestReportStateTouch(t *testing.T) {
	var s reportState
	rep := s.encode(0)
	assert.Equal(t, uint8(0x80), rep[33], "inactive touch point")

	s.apply(controller.ButtonEvent("touch", true))
	s.apply(controller.AxisEvent("touch_x", 1))
	s.apply(controller.AxisEvent("touch_y", -1))
	rep = s.encode(0)
	assert.Zero(t, rep[33]&0x80, "active touch point")
	x := uint16(rep[34]) | uint16(rep[35]&0x0f)<<8
	y := uint16(rep[35]>>4) | uint16(rep[36])<<4
	assert.Equal(t, uint16(touchMaxX-1), x)
	assert.Equal(t, uint16(0), y)

	// A new contact bumps the slot id.
	s.apply(controller.ButtonEvent("touch", false))
	s.apply(controller.ButtonEvent("touch", true))
	rep = s.encode(0)
	assert.Equal(t, uint8(2), rep[33]&0x7f)
}

func TestReportStateIgnoresUnknownCodes(t *testing.T) {
	var s reportState
	before := s
	s.apply(controller.ButtonEvent("y1", true))
	s.apply(controller.AxisEvent("wheel", 0.4))
	s.apply(controller.ConfEvent(controller.CodeLedMain, controller.RGB{}))
	assert.Equal(t, before, s)
}

func TestParseOutput(t *testing.T) {
	_, ok := parseOutput([]byte{0x05, 0, 0})
	assert.False(t, ok, "foreign report id")

	data := make([]byte, 48)
	data[0] = outputReportID
	data[3] = 255
	data[4] = 51
	data[45], data[46], data[47] = 0x10, 0x20, 0x30
	out, ok := parseOutput(data)
	require.True(t, ok)
	assert.InDelta(t, 1.0, out.rumble.Weak, 1e-9)
	assert.InDelta(t, 0.2, out.rumble.Strong, 1e-9)
	require.True(t, out.hasLed)
	assert.Equal(t, controller.RGB{R: 0x10, G: 0x20, B: 0x30}, out.led)

	short := []byte{outputReportID, 0, 0, 10, 20}
	out, ok = parseOutput(short)
	require.True(t, ok)
	assert.False(t, out.hasLed)
}

func TestSensorClamp(t *testing.T) {
	assert.Equal(t, uint16(32767), sensor(1e6, gyroScale))
	assert.Equal(t, uint16(0x8000), sensor(-1e6, gyroScale))
	assert.Equal(t, uint16(0), sensor(0, accelScale))
}
