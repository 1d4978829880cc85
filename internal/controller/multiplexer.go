package controller

// Multiplexer modes. The zero value of each mode disables the remap.
type (
	GuideMode   string
	TriggerMode string
	DpadMode    string
	LEDMode     string
	StatusMode  string
)

const (
	GuideIsSelect GuideMode = "guide_is_select"

	TriggerAnalogToDiscrete TriggerMode = "analog_to_discrete"

	DpadAnalogToDiscrete DpadMode = "analog_to_discrete"

	LEDMainToSides LEDMode = "main_to_sides"

	StatusBothToMain StatusMode = "both_to_main"
)

// MuxConfig is the static configuration of a Multiplexer. It is fixed for
// the lifetime of a session, keeping Process deterministic.
type MuxConfig struct {
	SwapGuide GuideMode
	Trigger   TriggerMode
	Dpad      DpadMode
	LED       LEDMode
	Status    StatusMode

	// TriggerThreshold is the analog value at which a trigger counts as
	// pressed when Trigger is analog_to_discrete. Defaults to 0.5.
	TriggerThreshold float64
}

// Multiplexer derives semantically-equivalent events from a merged batch:
// button remaps, axis-to-discrete conversion and LED/status routing. It is
// a pure function of its input batch and static configuration.
type Multiplexer struct {
	cfg MuxConfig
}

func NewMultiplexer(cfg MuxConfig) *Multiplexer {
	if cfg.TriggerThreshold == 0 {
		cfg.TriggerThreshold = 0.5
	}
	return &Multiplexer{cfg: cfg}
}

// Process remaps batch. The input slice is not modified; relative order of
// surviving events is preserved and derived events take the place of the
// event they were derived from.
func (m *Multiplexer) Process(batch []Event) []Event {
	out := make([]Event, 0, len(batch)+4)
	for _, ev := range batch {
		out = m.process(out, ev)
	}
	return out
}

func (m *Multiplexer) process(out []Event, ev Event) []Event {
	if m.cfg.SwapGuide == GuideIsSelect && ev.Kind == KindButton {
		switch ev.Code {
		case CodeMode:
			ev.Code = CodeSelect
		case CodeSelect:
			ev.Code = CodeMode
		case CodeShare:
			ev.Code = CodeStart
		case CodeStart:
			ev.Code = CodeShare
		}
	}

	if m.cfg.Trigger == TriggerAnalogToDiscrete && ev.Kind == KindAxis &&
		(ev.Code == CodeLT || ev.Code == CodeRT) {
		return append(out, ButtonEvent(ev.Code, ev.Value >= m.cfg.TriggerThreshold))
	}

	if m.cfg.Dpad == DpadAnalogToDiscrete && ev.Kind == KindAxis &&
		(ev.Code == CodeHatX || ev.Code == CodeHatY) {
		neg, pos := CodeDpadLeft, CodeDpadRight
		if ev.Code == CodeHatY {
			neg, pos = CodeDpadUp, CodeDpadDown
		}
		return append(out,
			ButtonEvent(neg, ev.Value < -0.5),
			ButtonEvent(pos, ev.Value > 0.5))
	}

	if m.cfg.LED == LEDMainToSides && ev.Kind == KindConfiguration && ev.Code == CodeLedMain {
		return append(out,
			ConfEvent(CodeLedLeft, ev.Conf),
			ConfEvent(CodeLedRight, ev.Conf))
	}

	if m.cfg.Status == StatusBothToMain && ev.Kind == KindConfiguration &&
		(ev.Code == CodeStatusLeft || ev.Code == CodeStatusRight) {
		return append(out, ConfEvent(CodeStatus, ev.Conf))
	}

	return append(out, ev)
}
