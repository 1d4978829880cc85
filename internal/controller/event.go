// Package controller implements the device-agnostic controller pipeline:
// the Source/Sink capability contracts, the aggregation loop that merges
// independently-paced hardware streams into rate-bounded batches, the
// selective passthrough gate over the raw vendor channel, and the
// multiplexer that normalizes merged batches before dispatch.
package controller

import "fmt"

// Kind discriminates the event union.
type Kind uint8

const (
	KindButton Kind = iota
	KindAxis
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindButton:
		return "button"
	case KindAxis:
		return "axis"
	case KindConfiguration:
		return "configuration"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Code identifies a logical button, axis or configuration channel
// ("a", "lt", "hat_x", "led_main", ...). Codes are shared between all
// devices of a session; sinks ignore codes they do not recognize.
type Code string

// Common codes emitted by the physical sources and consumed by the
// virtual controller. Device packages may define additional vendor codes.
const (
	CodeMode   Code = "mode"
	CodeShare  Code = "share"
	CodeStart  Code = "start"
	CodeSelect Code = "select"

	CodeLT Code = "lt"
	CodeRT Code = "rt"

	CodeHatX Code = "hat_x"
	CodeHatY Code = "hat_y"

	CodeDpadUp    Code = "dpad_up"
	CodeDpadDown  Code = "dpad_down"
	CodeDpadLeft  Code = "dpad_left"
	CodeDpadRight Code = "dpad_right"

	CodeRumble Code = "rumble"

	CodeLedMain  Code = "led_main"
	CodeLedLeft  Code = "led_left"
	CodeLedRight Code = "led_right"

	CodeStatus      Code = "status"
	CodeStatusLeft  Code = "status_left"
	CodeStatusRight Code = "status_right"
)

// RGB is the payload of LED configuration events.
type RGB struct {
	R, G, B uint8
}

// Rumble is the payload of force-feedback configuration events, with both
// motors normalized to [0, 1].
type Rumble struct {
	Strong float64
	Weak   float64
}

// Event is the immutable unit exchanged between sources and sinks.
// Exactly one of Pressed, Value or Conf is meaningful depending on Kind.
type Event struct {
	Kind    Kind
	Code    Code
	Pressed bool    // KindButton
	Value   float64 // KindAxis, normalized to [-1, 1]
	Conf    any     // KindConfiguration payload, opaque to the pipeline
}

func (e Event) String() string {
	switch e.Kind {
	case KindButton:
		if e.Pressed {
			return "+" + string(e.Code)
		}
		return "-" + string(e.Code)
	case KindAxis:
		return fmt.Sprintf("%s=%.3f", e.Code, e.Value)
	default:
		return fmt.Sprintf("%s(%v)", e.Code, e.Conf)
	}
}

// ButtonEvent returns a press/release event for code.
func ButtonEvent(code Code, pressed bool) Event {
	return Event{Kind: KindButton, Code: code, Pressed: pressed}
}

// AxisEvent returns a normalized axis event for code.
func AxisEvent(code Code, value float64) Event {
	return Event{Kind: KindAxis, Code: code, Value: value}
}

// ConfEvent returns a configuration event carrying an opaque payload.
// Configuration events pass through every filter and are never dropped.
func ConfEvent(code Code, conf any) Event {
	return Event{Kind: KindConfiguration, Code: code, Conf: conf}
}
