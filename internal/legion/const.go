package legion

import (
	"github.com/antheas/hhd/internal/controller"
	"github.com/antheas/hhd/internal/controller/physical/hidraw"
)

// Legion Go controllers enumerate under the Lenovo vendor id with one
// product id per controller mode.
const VendorID = 0x17ef

type Mode string

const (
	ModeXinput  Mode = "xinput"
	ModeDinput  Mode = "dinput"
	ModeDDinput Mode = "ddinput"
	ModeFPS     Mode = "fps"
)

var productModes = map[uint16]Mode{
	0x6182: ModeXinput,
	0x6183: ModeDinput,
	0x6184: ModeDDinput,
	0x6185: ModeFPS,
}

func productIDs() []uint16 {
	return []uint16{0x6182, 0x6183, 0x6184, 0x6185}
}

// evdev interface names exposed by the controllers in xinput mode. The
// leading spaces are part of the device names as reported by the kernel.
const (
	xinputName   = "Generic X-Box pad"
	touchpadName = "  Legion Controller for Windows  Touchpad"
	keyboardName = "  Legion Controller for Windows  Keyboard"
)

// Vendor HID interface carrying the buttons the xinput interface omits.
const (
	rawUsagePage  = 0xffa0
	rawUsage      = 0x0001
	rawReportSize = 64
)

// rawButtons locates the extra buttons inside the 64-byte vendor report:
// the back paddles and mouse keys of both controllers, the Legion L/R menu
// buttons and the scroll wheel clicks.
func rawButtons() []hidraw.ButtonField {
	return []hidraw.ButtonField{
		{Byte: 18, Bit: 0, Code: "y1"},
		{Byte: 18, Bit: 1, Code: "y2"},
		{Byte: 18, Bit: 2, Code: "y3"},
		{Byte: 18, Bit: 3, Code: "m2"},
		{Byte: 18, Bit: 4, Code: "m3"},
		{Byte: 19, Bit: 0, Code: controller.CodeMode},
		{Byte: 19, Bit: 1, Code: controller.CodeShare},
		{Byte: 19, Bit: 2, Code: "btn_quick"},
		{Byte: 19, Bit: 3, Code: "scroll_up"},
		{Byte: 19, Bit: 4, Code: "scroll_down"},
	}
}

// rawConfigs surfaces the per-controller battery bytes as status events.
func rawConfigs() []hidraw.ConfigField {
	return []hidraw.ConfigField{
		{Byte: 28, Code: controller.CodeStatusLeft, Scale: 1.0 / 255},
		{Byte: 29, Code: controller.CodeStatusRight, Scale: 1.0 / 255},
	}
}

// rawModifiers are the buttons that expose the raw channel while held.
func rawModifiers() []controller.Code {
	return []controller.Code{controller.CodeShare, controller.CodeMode}
}

// rawEssentials are always forwarded from the vendor channel; they have no
// counterpart on any other interface.
func rawEssentials() []controller.Code {
	return []controller.Code{"btn_quick", "scroll_up", "scroll_down"}
}

const keyMicMute = 0xf8 // KEY_MICMUTE

// shortcutsButtonMap translates the vendor keyboard interface. Only the
// microphone mute key is interesting; it maps to the mute button of the
// emulated controller.
func shortcutsButtonMap() map[uint16]controller.Code {
	return map[uint16]controller.Code{
		keyMicMute: controller.CodeShare,
	}
}
