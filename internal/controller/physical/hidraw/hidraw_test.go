package hidraw

import (
	"testing"

	"github.com/sstallion/go-hid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/antheas/hhd/internal/controller"
)

func testGamepad(t *testing.T) *Gamepad {
	return NewGamepad(zaptest.NewLogger(t), 0x17ef, []uint16{0x6182}, 0xffa0, 0x0001, 8,
		WithButtons([]ButtonField{
			{Byte: 1, Bit: 0, Code: "y1"},
			{Byte: 1, Bit: 1, Code: "y2"},
			{Byte: 2, Bit: 7, Code: "scroll_up"},
		}),
		WithConfigFields([]ConfigField{
			{Byte: 3, Code: controller.CodeStatusLeft, Scale: 1.0 / 255},
		}))
}

func TestGamepadDiffEmitsEdgesOnly(t *testing.T) {
	g := testGamepad(t)
	g.prev = make([]byte, 8)

	out := g.diff([]byte{0, 0b11, 0, 0, 0, 0, 0, 0})
	assert.Equal(t, []controller.Event{
		controller.ButtonEvent("y1", true),
		controller.ButtonEvent("y2", true),
	}, out)

	// Same report again: no edges.
	copy(g.prev, []byte{0, 0b11, 0, 0, 0, 0, 0, 0})
	assert.Nil(t, g.diff([]byte{0, 0b11, 0, 0, 0, 0, 0, 0}))

	out = g.diff([]byte{0, 0b01, 0x80, 0, 0, 0, 0, 0})
	assert.Equal(t, []controller.Event{
		controller.ButtonEvent("y2", false),
		controller.ButtonEvent("scroll_up", true),
	}, out)
}

func TestGamepadDiffConfigScaled(t *testing.T) {
	g := testGamepad(t)
	g.prev = make([]byte, 8)

	out := g.diff([]byte{0, 0, 0, 255, 0, 0, 0, 0})
	assert.Equal(t, []controller.Event{
		controller.ConfEvent(controller.CodeStatusLeft, 1.0),
	}, out)
}

func TestGamepadConsumeRoutesConfigOnly(t *testing.T) {
	g := testGamepad(t)
	var got []controller.Event
	g.command = func(_ *hid.Device, ev controller.Event) error {
		got = append(got, ev)
		return nil
	}

	err := g.Consume([]controller.Event{
		controller.ButtonEvent("a", true),
		controller.ConfEvent(controller.CodeLedLeft, "ff0000"),
		controller.AxisEvent("ls_x", 0.5),
		controller.ConfEvent("rumble", nil),
	})
	assert.NoError(t, err)
	assert.Equal(t, []controller.Event{
		controller.ConfEvent(controller.CodeLedLeft, "ff0000"),
		controller.ConfEvent("rumble", nil),
	}, got)
}
