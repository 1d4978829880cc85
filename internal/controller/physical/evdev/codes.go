package evdev

import "github.com/antheas/hhd/internal/controller"

// Event types and codes from linux/input-event-codes.h, limited to what the
// gamepad maps use.
const (
	evKey = 0x01
	evAbs = 0x03
	evFF  = 0x15

	ffRumble = 0x50

	btnSouth  = 0x130
	btnEast   = 0x131
	btnNorth  = 0x133
	btnWest   = 0x134
	btnTL     = 0x136
	btnTR     = 0x137
	btnSelect = 0x13a
	btnStart  = 0x13b
	btnMode   = 0x13c
	btnThumbL = 0x13d
	btnThumbR = 0x13e

	btnLeft  = 0x110
	btnTouch = 0x14a

	absX     = 0x00
	absY     = 0x01
	absZ     = 0x02
	absRX    = 0x03
	absRY    = 0x04
	absRZ    = 0x05
	absHat0X = 0x10
	absHat0Y = 0x11
)

// XpadButtonMap is the layout the kernel xpad driver exposes for X-Box
// compatible pads.
func XpadButtonMap() map[uint16]controller.Code {
	return map[uint16]controller.Code{
		btnSouth:  "a",
		btnEast:   "b",
		btnNorth:  "y",
		btnWest:   "x",
		btnTL:     "lb",
		btnTR:     "rb",
		btnSelect: controller.CodeSelect,
		btnStart:  controller.CodeStart,
		btnMode:   controller.CodeMode,
		btnThumbL: "ls",
		btnThumbR: "rs",
	}
}

func XpadAxisMap() map[uint16]AxisSpec {
	return map[uint16]AxisSpec{
		absX:     {Code: "ls_x"},
		absY:     {Code: "ls_y"},
		absRX:    {Code: "rs_x"},
		absRY:    {Code: "rs_y"},
		absZ:     {Code: controller.CodeLT},
		absRZ:    {Code: controller.CodeRT},
		absHat0X: {Code: controller.CodeHatX},
		absHat0Y: {Code: controller.CodeHatY},
	}
}

// TouchpadButtonMap covers the synthetic touchpads vendors expose next to
// the main gamepad interface.
func TouchpadButtonMap() map[uint16]controller.Code {
	return map[uint16]controller.Code{
		btnTouch: "touch",
		btnLeft:  "touch_click",
	}
}

func TouchpadAxisMap() map[uint16]AxisSpec {
	return map[uint16]AxisSpec{
		absX: {Code: "touch_x"},
		absY: {Code: "touch_y"},
	}
}
