package ds5

import (
	"encoding/binary"
	"math"

	"github.com/antheas/hhd/internal/controller"
)

const (
	inputReportID  = 0x01
	outputReportID = 0x02
	inputReportLen = 64

	// Sensor resolution of the emulated controller: +-2000 deg/s and
	// +-16 g over int16, expressed per rad/s and per m/s^2.
	gyroScale  = 938
	accelScale = 209

	touchMaxX = 1920
	touchMaxY = 1080
)

// newReportState returns the rest state. Triggers rest at -1 on the
// normalized axis scale, everything else at its zero value.
func newReportState() reportState {
	return reportState{lt: -1, rt: -1}
}

// reportState accumulates the controller state between consume calls.
// Events only carry changes, so the full state is kept here and re-encoded
// into every input report.
type reportState struct {
	lsX, lsY, rsX, rsY float64
	lt, rt             float64

	square, cross, circle, triangle bool
	l1, r1, l2, r2                  bool
	create, options, l3, r3         bool
	ps, mute                        bool
	touchClick                      bool

	dpadUp, dpadDown, dpadLeft, dpadRight bool

	touch          bool
	touchX, touchY float64
	touchID        uint8

	gyro  [3]float64
	accel [3]float64
}

// apply folds one event into the state. Unknown codes are ignored, as
// required of every sink.
func (s *reportState) apply(ev controller.Event) {
	switch ev.Kind {
	case controller.KindButton:
		s.applyButton(ev.Code, ev.Pressed)
	case controller.KindAxis:
		s.applyAxis(ev.Code, ev.Value)
	}
}

func (s *reportState) applyButton(code controller.Code, pressed bool) {
	switch code {
	case "a":
		s.cross = pressed
	case "b":
		s.circle = pressed
	case "x":
		s.square = pressed
	case "y":
		s.triangle = pressed
	case "lb":
		s.l1 = pressed
	case "rb":
		s.r1 = pressed
	case controller.CodeLT:
		s.l2 = pressed
	case controller.CodeRT:
		s.r2 = pressed
	case controller.CodeSelect:
		s.create = pressed
	case controller.CodeStart:
		s.options = pressed
	case controller.CodeMode:
		s.ps = pressed
	case controller.CodeShare:
		s.mute = pressed
	case "ls":
		s.l3 = pressed
	case "rs":
		s.r3 = pressed
	case controller.CodeDpadUp:
		s.dpadUp = pressed
	case controller.CodeDpadDown:
		s.dpadDown = pressed
	case controller.CodeDpadLeft:
		s.dpadLeft = pressed
	case controller.CodeDpadRight:
		s.dpadRight = pressed
	case "touch":
		if pressed && !s.touch {
			s.touchID++
		}
		s.touch = pressed
	case "touch_click":
		s.touchClick = pressed
	}
}

func (s *reportState) applyAxis(code controller.Code, v float64) {
	switch code {
	case "ls_x":
		s.lsX = v
	case "ls_y":
		s.lsY = v
	case "rs_x":
		s.rsX = v
	case "rs_y":
		s.rsY = v
	case controller.CodeLT:
		s.lt = v
	case controller.CodeRT:
		s.rt = v
	case "touch_x":
		s.touchX = v
	case "touch_y":
		s.touchY = v
	case "gyro_x":
		s.gyro[0] = v
	case "gyro_y":
		s.gyro[1] = v
	case "gyro_z":
		s.gyro[2] = v
	case "accel_x":
		s.accel[0] = v
	case "accel_y":
		s.accel[1] = v
	case "accel_z":
		s.accel[2] = v
	}
}

// hat encodes the dpad as the usual 8-direction nibble, 8 meaning released.
func (s *reportState) hat() uint8 {
	switch {
	case s.dpadUp && s.dpadRight:
		return 1
	case s.dpadDown && s.dpadRight:
		return 3
	case s.dpadDown && s.dpadLeft:
		return 5
	case s.dpadUp && s.dpadLeft:
		return 7
	case s.dpadUp:
		return 0
	case s.dpadRight:
		return 2
	case s.dpadDown:
		return 4
	case s.dpadLeft:
		return 6
	}
	return 8
}

func axisByte(v float64) uint8 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	// Rounded so a centered stick lands on 0x80, not 0x7f.
	return uint8(math.Round((v + 1) / 2 * 255))
}

func triggerByte(v float64) uint8 {
	// Triggers arrive normalized to [-1, 1] like every axis; rest is -1.
	return axisByte(v)
}

func sensor(v float64, scale float64) uint16 {
	c := v * scale
	if c > 32767 {
		c = 32767
	} else if c < -32768 {
		c = -32768
	}
	return uint16(int16(c))
}

// encode builds one full input report around the current state.
func (s *reportState) encode(seq uint8) []byte {
	rep := make([]byte, inputReportLen)
	rep[0] = inputReportID
	rep[1] = axisByte(s.lsX)
	rep[2] = axisByte(s.lsY)
	rep[3] = axisByte(s.rsX)
	rep[4] = axisByte(s.rsY)
	rep[5] = triggerByte(s.lt)
	rep[6] = triggerByte(s.rt)
	rep[7] = seq

	rep[8] = s.hat()
	setBit(rep, 8, 4, s.square)
	setBit(rep, 8, 5, s.cross)
	setBit(rep, 8, 6, s.circle)
	setBit(rep, 8, 7, s.triangle)

	setBit(rep, 9, 0, s.l1)
	setBit(rep, 9, 1, s.r1)
	setBit(rep, 9, 2, s.l2)
	setBit(rep, 9, 3, s.r2)
	setBit(rep, 9, 4, s.create)
	setBit(rep, 9, 5, s.options)
	setBit(rep, 9, 6, s.l3)
	setBit(rep, 9, 7, s.r3)

	setBit(rep, 10, 0, s.ps)
	setBit(rep, 10, 1, s.touchClick)
	setBit(rep, 10, 2, s.mute)

	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint16(rep[16+2*i:], sensor(s.gyro[i], gyroScale))
		binary.LittleEndian.PutUint16(rep[22+2*i:], sensor(s.accel[i], accelScale))
	}

	// Single touch point, DS4-style packing: bit 7 clear means active.
	x := uint16((s.touchX + 1) / 2 * (touchMaxX - 1))
	y := uint16((s.touchY + 1) / 2 * (touchMaxY - 1))
	if s.touch {
		rep[33] = s.touchID & 0x7f
	} else {
		rep[33] = 0x80
	}
	rep[34] = uint8(x)
	rep[35] = uint8(x>>8) | uint8(y&0xf)<<4
	rep[36] = uint8(y >> 4)

	return rep
}

func setBit(rep []byte, byteIdx int, bit uint8, on bool) {
	if on {
		rep[byteIdx] |= 1 << bit
	}
}

// output is the decoded interesting part of a host output report.
type output struct {
	rumble controller.Rumble
	led    controller.RGB
	hasLed bool
}

// parseOutput extracts rumble and lightbar values from an output report.
func parseOutput(data []byte) (output, bool) {
	if len(data) < 5 || data[0] != outputReportID {
		return output{}, false
	}
	out := output{
		rumble: controller.Rumble{
			Weak:   float64(data[3]) / 255,
			Strong: float64(data[4]) / 255,
		},
	}
	if len(data) >= 48 {
		out.led = controller.RGB{R: data[45], G: data[46], B: data[47]}
		out.hasLed = true
	}
	return out, true
}
