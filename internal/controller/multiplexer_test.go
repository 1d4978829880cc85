package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiplexerProcess(t *testing.T) {
	testCases := []struct {
		name string
		cfg  MuxConfig
		in   []Event
		out  []Event
	}{
		{
			name: "zero config is identity",
			in:   []Event{ButtonEvent("a", true), AxisEvent(CodeLT, 0.9)},
			out:  []Event{ButtonEvent("a", true), AxisEvent(CodeLT, 0.9)},
		},
		{
			name: "guide swap",
			cfg:  MuxConfig{SwapGuide: GuideIsSelect},
			in: []Event{
				ButtonEvent(CodeMode, true),
				ButtonEvent(CodeSelect, true),
				ButtonEvent(CodeShare, false),
				ButtonEvent("a", true),
			},
			out: []Event{
				ButtonEvent(CodeSelect, true),
				ButtonEvent(CodeMode, true),
				ButtonEvent(CodeStart, false),
				ButtonEvent("a", true),
			},
		},
		{
			name: "trigger analog to discrete",
			cfg:  MuxConfig{Trigger: TriggerAnalogToDiscrete},
			in: []Event{
				AxisEvent(CodeLT, 0.8),
				AxisEvent(CodeRT, 0.1),
				AxisEvent("ls_x", 0.8),
			},
			out: []Event{
				ButtonEvent(CodeLT, true),
				ButtonEvent(CodeRT, false),
				AxisEvent("ls_x", 0.8),
			},
		},
		{
			name: "trigger threshold override",
			cfg:  MuxConfig{Trigger: TriggerAnalogToDiscrete, TriggerThreshold: 0.9},
			in:   []Event{AxisEvent(CodeLT, 0.8)},
			out:  []Event{ButtonEvent(CodeLT, false)},
		},
		{
			name: "dpad analog to discrete",
			cfg:  MuxConfig{Dpad: DpadAnalogToDiscrete},
			in: []Event{
				AxisEvent(CodeHatX, -1),
				AxisEvent(CodeHatY, 1),
			},
			out: []Event{
				ButtonEvent(CodeDpadLeft, true),
				ButtonEvent(CodeDpadRight, false),
				ButtonEvent(CodeDpadUp, false),
				ButtonEvent(CodeDpadDown, true),
			},
		},
		{
			name: "dpad centered releases both directions",
			cfg:  MuxConfig{Dpad: DpadAnalogToDiscrete},
			in:   []Event{AxisEvent(CodeHatX, 0)},
			out: []Event{
				ButtonEvent(CodeDpadLeft, false),
				ButtonEvent(CodeDpadRight, false),
			},
		},
		{
			name: "led main to sides",
			cfg:  MuxConfig{LED: LEDMainToSides},
			in:   []Event{ConfEvent(CodeLedMain, "ff00ff")},
			out: []Event{
				ConfEvent(CodeLedLeft, "ff00ff"),
				ConfEvent(CodeLedRight, "ff00ff"),
			},
		},
		{
			name: "status both to main",
			cfg:  MuxConfig{Status: StatusBothToMain},
			in: []Event{
				ConfEvent(CodeStatusLeft, 80),
				ConfEvent(CodeStatusRight, 75),
			},
			out: []Event{
				ConfEvent(CodeStatus, 80),
				ConfEvent(CodeStatus, 75),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMultiplexer(tc.cfg)
			in := make([]Event, len(tc.in))
			copy(in, tc.in)
			assert.Equal(t, tc.out, m.Process(tc.in))
			assert.Equal(t, in, tc.in, "input batch must not be modified")
		})
	}
}
